package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	bserr "github.com/R3E-Network/stablecoin_bootstrap/internal/errors"
)

// File is a ledger persisted as a single JSON document. Every write replaces
// the document atomically via a temp file and rename.
type File struct {
	mu       sync.Mutex
	path     string
	networks map[string]*networkRecords
}

var _ Ledger = (*File)(nil)

type fileDocument struct {
	Version  int                        `json:"version"`
	Networks map[string]*networkRecords `json:"networks"`
}

// OpenFile loads path, creating an empty ledger when it does not exist.
func OpenFile(path string) (*File, error) {
	f := &File{path: path, networks: make(map[string]*networkRecords)}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		return f, nil
	case err != nil:
		return nil, bserr.New(bserr.KindLedgerUnavailable, "ledger.open", err)
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, bserr.New(bserr.KindLedgerUnavailable, "ledger.open", fmt.Errorf("parse %s: %w", path, err))
	}
	for name, n := range doc.Networks {
		if n == nil {
			continue
		}
		if n.Components == nil {
			n.Components = make(map[string]ComponentRecord)
		}
		if n.Steps == nil {
			n.Steps = make(map[string]StepRecord)
		}
		f.networks[name] = n
	}
	return f, nil
}

// Path returns the backing file path.
func (f *File) Path() string { return f.path }

func (f *File) networkLocked(name string) *networkRecords {
	n, ok := f.networks[name]
	if !ok {
		n = newNetworkRecords()
		f.networks[name] = n
	}
	return n
}

func (f *File) Component(_ context.Context, network, kind string) (ComponentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.networks[network]; ok {
		if rec, ok := n.Components[kind]; ok {
			return cloneComponent(rec), nil
		}
	}
	return ComponentRecord{}, ErrNotFound
}

func (f *File) PutComponent(_ context.Context, rec ComponentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := f.networkLocked(rec.Network)
	prev, had := n.Components[rec.Kind]
	rec.RecordedAt = stamp(rec.RecordedAt)
	n.Components[rec.Kind] = cloneComponent(rec)
	if err := f.flushLocked(); err != nil {
		if had {
			n.Components[rec.Kind] = prev
		} else {
			delete(n.Components, rec.Kind)
		}
		return err
	}
	return nil
}

func (f *File) Step(_ context.Context, network, step string) (StepRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.networks[network]; ok {
		if rec, ok := n.Steps[step]; ok {
			return cloneStep(rec), nil
		}
	}
	return StepRecord{}, ErrNotFound
}

func (f *File) PutStep(_ context.Context, rec StepRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := f.networkLocked(rec.Network)
	prev, had := n.Steps[rec.Step]
	rec.RecordedAt = stamp(rec.RecordedAt)
	n.Steps[rec.Step] = cloneStep(rec)
	if err := f.flushLocked(); err != nil {
		if had {
			n.Steps[rec.Step] = prev
		} else {
			delete(n.Steps, rec.Step)
		}
		return err
	}
	return nil
}

func (f *File) Snapshot(_ context.Context, network string) (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return snapshotOf(network, f.networks[network]), nil
}

func (f *File) Close() error { return nil }

func (f *File) flushLocked() error {
	data, err := json.MarshalIndent(fileDocument{Version: 1, Networks: f.networks}, "", "  ")
	if err != nil {
		return bserr.New(bserr.KindLedgerUnavailable, "ledger.write", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return bserr.New(bserr.KindLedgerUnavailable, "ledger.write", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return bserr.New(bserr.KindLedgerUnavailable, "ledger.write", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return bserr.New(bserr.KindLedgerUnavailable, "ledger.write", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return bserr.New(bserr.KindLedgerUnavailable, "ledger.write", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return bserr.New(bserr.KindLedgerUnavailable, "ledger.write", err)
	}
	return nil
}
