// Package ledger persists what a bootstrap run has already done on a network
// so that a rerun can reuse components and skip satisfied steps.
package ledger

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/R3E-Network/stablecoin_bootstrap/internal/chain"
)

// ErrNotFound is returned when no record exists for the requested key.
var ErrNotFound = errors.New("ledger: record not found")

// ComponentRecord remembers a successful component creation.
type ComponentRecord struct {
	Network         string          `json:"network"`
	Kind            string          `json:"kind"`
	Address         chain.Address   `json:"address"`
	ConstructorArgs []chain.Address `json:"constructor_args"`
	TxHash          string          `json:"tx_hash,omitempty"`
	RunID           string          `json:"run_id,omitempty"`
	RecordedAt      time.Time       `json:"recorded_at"`
}

// ArgsEqual reports whether the recorded constructor args equal args.
func (r ComponentRecord) ArgsEqual(args []chain.Address) bool {
	if len(r.ConstructorArgs) != len(args) {
		return false
	}
	for i := range args {
		if !r.ConstructorArgs[i].Equal(args[i]) {
			return false
		}
	}
	return true
}

// StepRecord remembers a committed configuration step. Fingerprint covers the
// step's target addresses, the runs that created the target components and
// the amounts; a record only satisfies a later run whose fingerprint is
// identical.
type StepRecord struct {
	Network     string          `json:"network"`
	Step        string          `json:"step"`
	Fingerprint string          `json:"fingerprint"`
	Targets     []chain.Address `json:"targets"`
	Amount      string          `json:"amount,omitempty"`
	Outcome     string          `json:"outcome"`
	TxHash      string          `json:"tx_hash,omitempty"`
	RunID       string          `json:"run_id,omitempty"`
	RecordedAt  time.Time       `json:"recorded_at"`
}

// Snapshot is every record held for one network.
type Snapshot struct {
	Network    string            `json:"network"`
	Components []ComponentRecord `json:"components"`
	Steps      []StepRecord      `json:"steps"`
}

// Ledger stores component and step records keyed by network.
type Ledger interface {
	// Component returns the record for kind on network or ErrNotFound.
	Component(ctx context.Context, network, kind string) (ComponentRecord, error)
	PutComponent(ctx context.Context, rec ComponentRecord) error
	// Step returns the record for step on network or ErrNotFound.
	Step(ctx context.Context, network, step string) (StepRecord, error)
	PutStep(ctx context.Context, rec StepRecord) error
	Snapshot(ctx context.Context, network string) (Snapshot, error)
	Close() error
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

func sortSnapshot(s *Snapshot) {
	sort.SliceStable(s.Components, func(i, j int) bool {
		return s.Components[i].RecordedAt.Before(s.Components[j].RecordedAt)
	})
	sort.SliceStable(s.Steps, func(i, j int) bool {
		return s.Steps[i].RecordedAt.Before(s.Steps[j].RecordedAt)
	})
}
