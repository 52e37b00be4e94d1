// Package store persists the plan engine state: tracker buckets, engine
// state and the latest plan. Each value is stored as one JSON document under
// a fixed key.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kilianp07/loadguard/core/energy"
	"github.com/kilianp07/loadguard/core/model"
	"github.com/kilianp07/loadguard/core/plan"
)

const (
	keyTracker = "tracker_state"
	keyEngine  = "engine_state"
	keyPlan    = "device_plan"
)

// kv is the byte-level backend shared by the stores.
type kv interface {
	get(ctx context.Context, key string) ([]byte, bool, error)
	put(ctx context.Context, key string, value []byte) error
}

// docStore implements plan.StateStore on top of a kv backend.
type docStore struct {
	kv kv
}

func load[T any](ctx context.Context, b kv, key string) (*T, error) {
	data, ok, err := b.get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", key, err)
	}
	if !ok {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("store: decode %s: %w", key, err)
	}
	return &v, nil
}

func save(ctx context.Context, b kv, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", key, err)
	}
	if err := b.put(ctx, key, data); err != nil {
		return fmt.Errorf("store: write %s: %w", key, err)
	}
	return nil
}

func (d docStore) LoadTracker(ctx context.Context) (*energy.State, error) {
	return load[energy.State](ctx, d.kv, keyTracker)
}

func (d docStore) SaveTracker(ctx context.Context, s *energy.State) error {
	return save(ctx, d.kv, keyTracker, s)
}

func (d docStore) LoadEngine(ctx context.Context) (*plan.EngineState, error) {
	return load[plan.EngineState](ctx, d.kv, keyEngine)
}

func (d docStore) SaveEngine(ctx context.Context, s *plan.EngineState) error {
	return save(ctx, d.kv, keyEngine, s)
}

func (d docStore) LoadPlan(ctx context.Context) (*model.DevicePlan, error) {
	return load[model.DevicePlan](ctx, d.kv, keyPlan)
}

func (d docStore) SavePlan(ctx context.Context, p *model.DevicePlan) error {
	return save(ctx, d.kv, keyPlan, p)
}
