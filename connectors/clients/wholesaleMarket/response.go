package wholesalemarket

import (
	"fmt"
	"sort"
	"time"

	"github.com/kilianp07/loadguard/connectors"
)

type Response struct {
	FrancePowerExchanges []struct {
		StartDate   string `json:"start_date"`
		EndDate     string `json:"end_date"`
		UpdatedDate string `json:"updated_date"`
		Values      []struct {
			StartDate string  `json:"start_date"`
			EndDate   string  `json:"end_date"`
			Value     float64 `json:"value"`
			Price     float64 `json:"price"`
		} `json:"values"`
	} `json:"france_power_exchanges"`
}

// Points flattens the response into price points starting in [start, end),
// ordered by start.
func (r *Response) Points(start, end time.Time) ([]connectors.PricePoint, error) {
	var out []connectors.PricePoint
	for _, exchange := range r.FrancePowerExchanges {
		for _, v := range exchange.Values {
			s, err := time.Parse(time.RFC3339, v.StartDate)
			if err != nil {
				return nil, fmt.Errorf("failed to parse time: %w", err)
			}
			e, err := time.Parse(time.RFC3339, v.EndDate)
			if err != nil {
				return nil, fmt.Errorf("failed to parse time: %w", err)
			}
			if s.Before(start) || !s.Before(end) {
				continue
			}
			out = append(out, connectors.PricePoint{Start: s, End: e, PriceEURMWh: v.Price})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}
