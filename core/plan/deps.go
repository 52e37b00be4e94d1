package plan

import (
	"context"
	"time"

	"github.com/kilianp07/loadguard/core/energy"
	"github.com/kilianp07/loadguard/core/model"
	"github.com/kilianp07/loadguard/core/settings"
)

// DeviceSource supplies the device snapshot before each cycle.
type DeviceSource interface {
	Devices(ctx context.Context) ([]model.Device, error)
}

// Settings exposes the runtime settings consumed by the projector.
type Settings interface {
	Priority(id string) int
	ShedBehavior(id string) settings.ShedBehavior
	ModeTargets() map[string]float64
	PriceOptimization(id string) settings.PriceOptimization
	IsCheapHour(t time.Time) bool
	IsExpensiveHour(t time.Time) bool
}

// Actuator applies device commands. Implementations are expected to honour
// their own dry-run mode.
type Actuator interface {
	SetCapability(ctx context.Context, deviceID, capabilityID string, value float64) error
	TurnOnOff(ctx context.Context, deviceID string, on bool) error
}

// StateStore persists the engine's durable state.
type StateStore interface {
	LoadTracker(ctx context.Context) (*energy.State, error)
	SaveTracker(ctx context.Context, s *energy.State) error
	LoadEngine(ctx context.Context) (*EngineState, error)
	SaveEngine(ctx context.Context, s *EngineState) error
	LoadPlan(ctx context.Context) (*model.DevicePlan, error)
	SavePlan(ctx context.Context, p *model.DevicePlan) error
}

// Notifier delivers user-facing notifications and automation triggers.
type Notifier interface {
	CreateNotification(ctx context.Context, text string) error
	TriggerFlow(ctx context.Context, name string, payload map[string]any) error
}

// staticSettings is used when no settings store is wired.
type staticSettings struct{}

func (staticSettings) Priority(string) int { return 0 }
func (staticSettings) ShedBehavior(string) settings.ShedBehavior {
	return settings.ShedBehavior{Action: model.ShedTurnOff}
}
func (staticSettings) ModeTargets() map[string]float64                     { return nil }
func (staticSettings) PriceOptimization(string) settings.PriceOptimization { return settings.PriceOptimization{} }
func (staticSettings) IsCheapHour(time.Time) bool                          { return false }
func (staticSettings) IsExpensiveHour(time.Time) bool                      { return false }
