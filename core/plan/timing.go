package plan

import (
	"time"
)

// timing is the cooldown state of one cycle.
type timing struct {
	shedCooldownLeft    time.Duration
	restoreCooldownLeft time.Duration
	restoreCooldown     time.Duration
}

func (t timing) shedCooldownActive() bool    { return t.shedCooldownLeft > 0 }
func (t timing) restoreCooldownActive() bool { return t.restoreCooldownLeft > 0 }

// noteOvershoot records an overshoot seen on a fresh measurement. A new
// overshoot that starts while the restore cooldown since the last restore is
// still running doubles the restore cooldown, up to the configured maximum.
func noteOvershoot(st *EngineState, now time.Time, overshoot bool, cfg Config) {
	if !overshoot {
		st.WasOvershoot = false
		return
	}
	st.LastOvershootMs = toMs(now)
	if st.WasOvershoot {
		return
	}
	st.WasOvershoot = true
	cur := currentRestoreCooldown(st, cfg)
	if since(now, st.LastRestoreMs) < cur {
		next := cur * 2
		if next > cfg.restoreMax() {
			next = cfg.restoreMax()
		}
		st.RestoreCooldownMs = next.Milliseconds()
		st.LastRestoreCooldownBumpMs = toMs(now)
	}
}

func currentRestoreCooldown(st *EngineState, cfg Config) time.Duration {
	if st.RestoreCooldownMs <= 0 {
		return cfg.restoreBase()
	}
	return time.Duration(st.RestoreCooldownMs) * time.Millisecond
}

// computeTiming derives both cooldowns. The restore backoff falls back to the
// base value once neither a bump nor an overshoot happened for the stability
// window.
func computeTiming(st *EngineState, now time.Time, cfg Config) timing {
	lastUnstable := st.LastRestoreCooldownBumpMs
	if st.LastOvershootMs > lastUnstable {
		lastUnstable = st.LastOvershootMs
	}
	if st.RestoreCooldownMs > cfg.restoreBase().Milliseconds() &&
		since(now, lastUnstable) >= cfg.stabilityWindow() {
		st.RestoreCooldownMs = cfg.restoreBase().Milliseconds()
	}
	if st.RestoreCooldownMs <= 0 {
		st.RestoreCooldownMs = cfg.restoreBase().Milliseconds()
	}
	var t timing
	t.restoreCooldown = currentRestoreCooldown(st, cfg)

	lastShed := st.LastSheddingMs
	if st.LastOvershootMs > lastShed {
		lastShed = st.LastOvershootMs
	}
	if left := cfg.shedCooldown() - since(now, lastShed); left > 0 {
		t.shedCooldownLeft = left
	}
	if left := t.restoreCooldown - since(now, st.LastRestoreMs); left > 0 {
		t.restoreCooldownLeft = left
	}
	return t
}
