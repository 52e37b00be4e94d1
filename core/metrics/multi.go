package metrics

// MultiSink fans events out to several sinks. Optional recorder interfaces
// are forwarded only to sinks implementing them.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// Close closes every sink that holds resources.
func (m *MultiSink) Close() {
	for _, s := range m.Sinks {
		CloseSink(s)
	}
}

// RecordPlan forwards the plan event to all sinks, returning the first error.
func (m *MultiSink) RecordPlan(ev PlanEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordPlan(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordPower forwards power samples.
func (m *MultiSink) RecordPower(ev PowerEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(PowerRecorder); ok {
			if err := rec.RecordPower(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordActuation forwards actuation results.
func (m *MultiSink) RecordActuation(ev ActuationEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(ActuationRecorder); ok {
			if err := rec.RecordActuation(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordShortfall forwards shortfall transitions.
func (m *MultiSink) RecordShortfall(ev ShortfallEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(ShortfallRecorder); ok {
			if err := rec.RecordShortfall(ev); err != nil {
				return err
			}
		}
	}
	return nil
}
