package model

import (
	"fmt"
	"strings"
)

// ReasonKind classifies why a device got its planned state. Control code
// branches on the kind; the text is only for display.
type ReasonKind int

const (
	ReasonNone ReasonKind = iota
	ReasonKeep
	ReasonNotControllable
	ReasonShed
	ReasonShedHolding
	ReasonSwappedOut
	ReasonSwapPending
	ReasonRestore
	ReasonInsufficientHeadroom
	ReasonCooldown
	ReasonSheddingActive
	ReasonOverLimit
	ReasonHeadroomUnknown
	ReasonBlockedBySwap
	ReasonBlockedByPendingSwap
	ReasonActionPending
)

var reasonKindNames = map[ReasonKind]string{
	ReasonNone:                 "none",
	ReasonKeep:                 "keep",
	ReasonNotControllable:      "not_controllable",
	ReasonShed:                 "shed",
	ReasonShedHolding:          "shed_holding",
	ReasonSwappedOut:           "swapped_out",
	ReasonSwapPending:          "swap_pending",
	ReasonRestore:              "restore",
	ReasonInsufficientHeadroom: "insufficient_headroom",
	ReasonCooldown:             "cooldown",
	ReasonSheddingActive:       "shedding_active",
	ReasonOverLimit:            "over_limit",
	ReasonHeadroomUnknown:      "headroom_unknown",
	ReasonBlockedBySwap:        "blocked_by_swap",
	ReasonBlockedByPendingSwap: "blocked_by_pending_swap",
	ReasonActionPending:        "action_pending",
}

// String returns the stable identifier of the kind.
func (k ReasonKind) String() string {
	if n, ok := reasonKindNames[k]; ok {
		return n
	}
	return "unknown"
}

// MarshalText encodes the kind by name.
func (k ReasonKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText decodes a kind name.
func (k *ReasonKind) UnmarshalText(b []byte) error {
	for kind, name := range reasonKindNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown reason kind %q", string(b))
}

// Cooldown names used in ReasonCooldown.
const (
	CooldownRestore  = "restore"
	CooldownShedding = "shedding"
)

// Reason is the structured explanation attached to a planned device.
type Reason struct {
	Kind       ReasonKind  `json:"kind"`
	Source     LimitSource `json:"source,omitempty"`
	NeedKW     float64     `json:"need_kw,omitempty"`
	HeadroomKW float64     `json:"headroom_kw,omitempty"`
	Seconds    float64     `json:"seconds,omitempty"`
	Cooldown   string      `json:"cooldown,omitempty"`
	Device     string      `json:"device,omitempty"`
	Devices    []string    `json:"devices,omitempty"`
	Temp       *float64    `json:"temp,omitempty"`
	Note       string      `json:"note,omitempty"`
}

// IsShed reports whether the reason belongs to a shed decision.
func (r Reason) IsShed() bool {
	switch r.Kind {
	case ReasonShed, ReasonShedHolding, ReasonSwappedOut:
		return true
	}
	return false
}

// String renders the reason for display.
func (r Reason) String() string {
	switch r.Kind {
	case ReasonNone:
		return ""
	case ReasonKeep:
		return "keep"
	case ReasonNotControllable:
		return "not controllable"
	case ReasonShed:
		return fmt.Sprintf("shed due to %s", sourceLabel(r.Source))
	case ReasonShedHolding:
		if r.Temp != nil {
			return fmt.Sprintf("shed (holding at %s°)", formatNumber(*r.Temp))
		}
		return "shed (holding)"
	case ReasonSwappedOut:
		return fmt.Sprintf("shed (swapped out for %s)", r.Device)
	case ReasonSwapPending:
		return fmt.Sprintf("restore pending (swapping out %s)", strings.Join(r.Devices, ", "))
	case ReasonRestore:
		return fmt.Sprintf("restore (need %.2f kW, headroom %.2f kW)", r.NeedKW, r.HeadroomKW)
	case ReasonInsufficientHeadroom:
		return fmt.Sprintf("insufficient headroom (need %.2f kW, headroom %.2f kW)", r.NeedKW, r.HeadroomKW)
	case ReasonCooldown:
		if r.Note != "" {
			return fmt.Sprintf("cooldown (%s, %s)", r.Cooldown, r.Note)
		}
		return fmt.Sprintf("cooldown (%s, %.0fs remaining)", r.Cooldown, r.Seconds)
	case ReasonSheddingActive:
		return "shedding active"
	case ReasonOverLimit:
		return fmt.Sprintf("over limit (headroom %.2f kW)", r.HeadroomKW)
	case ReasonHeadroomUnknown:
		return "headroom unknown"
	case ReasonBlockedBySwap:
		return fmt.Sprintf("waiting for %s (swapped out)", r.Device)
	case ReasonBlockedByPendingSwap:
		return fmt.Sprintf("waiting for pending swap of %s", r.Device)
	case ReasonActionPending:
		return fmt.Sprintf("%s in progress", r.Note)
	}
	return r.Kind.String()
}

func sourceLabel(s LimitSource) string {
	switch s {
	case LimitDaily:
		return "daily budget"
	case LimitBoth:
		return "capacity and daily budget"
	default:
		return "capacity"
	}
}

func formatNumber(v float64) string {
	s := fmt.Sprintf("%.1f", v)
	return strings.TrimSuffix(s, ".0")
}
