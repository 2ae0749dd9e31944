package ledger

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/go-redis/redis/v8"

	bserr "github.com/R3E-Network/stablecoin_bootstrap/internal/errors"
)

// DefaultRedisPrefix namespaces ledger keys.
const DefaultRedisPrefix = "bootstrap:ledger"

// Redis is a ledger stored in two hashes per network:
// <prefix>:<network>:components and <prefix>:<network>:steps.
type Redis struct {
	client *redis.Client
	prefix string
}

var _ Ledger = (*Redis)(nil)

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

// OpenRedis connects with opts and verifies the connection with PING.
func OpenRedis(ctx context.Context, opts *redis.Options, prefix string) (*Redis, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, bserr.New(bserr.KindLedgerUnavailable, "ledger.open", err)
	}
	return NewRedis(client, prefix), nil
}

func (r *Redis) componentsKey(network string) string {
	return r.prefix + ":" + network + ":components"
}

func (r *Redis) stepsKey(network string) string {
	return r.prefix + ":" + network + ":steps"
}

func (r *Redis) Component(ctx context.Context, network, kind string) (ComponentRecord, error) {
	var rec ComponentRecord
	if err := r.hget(ctx, "ledger.component", r.componentsKey(network), kind, &rec); err != nil {
		return ComponentRecord{}, err
	}
	return rec, nil
}

func (r *Redis) PutComponent(ctx context.Context, rec ComponentRecord) error {
	rec.RecordedAt = stamp(rec.RecordedAt)
	return r.hset(ctx, "ledger.put_component", r.componentsKey(rec.Network), rec.Kind, rec)
}

func (r *Redis) Step(ctx context.Context, network, step string) (StepRecord, error) {
	var rec StepRecord
	if err := r.hget(ctx, "ledger.step", r.stepsKey(network), step, &rec); err != nil {
		return StepRecord{}, err
	}
	return rec, nil
}

func (r *Redis) PutStep(ctx context.Context, rec StepRecord) error {
	rec.RecordedAt = stamp(rec.RecordedAt)
	return r.hset(ctx, "ledger.put_step", r.stepsKey(rec.Network), rec.Step, rec)
}

func (r *Redis) Snapshot(ctx context.Context, network string) (Snapshot, error) {
	snap := Snapshot{Network: network, Components: []ComponentRecord{}, Steps: []StepRecord{}}

	components, err := r.client.HGetAll(ctx, r.componentsKey(network)).Result()
	if err != nil {
		return Snapshot{}, bserr.New(bserr.KindLedgerUnavailable, "ledger.snapshot", err)
	}
	for _, raw := range components {
		var rec ComponentRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return Snapshot{}, bserr.New(bserr.KindLedgerUnavailable, "ledger.snapshot", err)
		}
		snap.Components = append(snap.Components, rec)
	}

	steps, err := r.client.HGetAll(ctx, r.stepsKey(network)).Result()
	if err != nil {
		return Snapshot{}, bserr.New(bserr.KindLedgerUnavailable, "ledger.snapshot", err)
	}
	for _, raw := range steps {
		var rec StepRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return Snapshot{}, bserr.New(bserr.KindLedgerUnavailable, "ledger.snapshot", err)
		}
		snap.Steps = append(snap.Steps, rec)
	}

	sortSnapshot(&snap)
	return snap, nil
}

func (r *Redis) Close() error { return r.client.Close() }

func (r *Redis) hget(ctx context.Context, op, key, field string, out interface{}) error {
	raw, err := r.client.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return bserr.New(bserr.KindLedgerUnavailable, op, err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return bserr.New(bserr.KindLedgerUnavailable, op, err)
	}
	return nil
}

func (r *Redis) hset(ctx context.Context, op, key, field string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return bserr.New(bserr.KindLedgerUnavailable, op, err)
	}
	if err := r.client.HSet(ctx, key, field, data).Err(); err != nil {
		return bserr.New(bserr.KindLedgerUnavailable, op, err)
	}
	return nil
}
