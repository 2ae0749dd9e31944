package ledger

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/stablecoin_bootstrap/internal/chain"
	bserr "github.com/R3E-Network/stablecoin_bootstrap/internal/errors"
)

var (
	issuerAddr   = chain.MustParseAddress("0x5fbdb2315678afecb367f032d93f642f64180aa3")
	exchangeAddr = chain.MustParseAddress("0xe7f1725e7734ce288f8367e1bb143e90bb3f0512")
)

// exerciseLedger runs the behaviour every backend must share.
func exerciseLedger(t *testing.T, l Ledger) {
	t.Helper()
	ctx := context.Background()

	_, err := l.Component(ctx, "hardhat", "Issuer")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = l.Step(ctx, "hardhat", "approve-exchange")
	assert.ErrorIs(t, err, ErrNotFound)

	t0 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, l.PutComponent(ctx, ComponentRecord{Network: "hardhat", Kind: "Issuer", Address: issuerAddr, TxHash: "0x01", RunID: "run-1", RecordedAt: t0}))
	require.NoError(t, l.PutComponent(ctx, ComponentRecord{Network: "hardhat", Kind: "Exchange", Address: exchangeAddr, ConstructorArgs: []chain.Address{issuerAddr}, RecordedAt: t0.Add(time.Second)}))
	require.NoError(t, l.PutStep(ctx, StepRecord{Network: "hardhat", Step: "approve-exchange", Fingerprint: "fp", Targets: []chain.Address{issuerAddr, exchangeAddr}, Amount: "1000", Outcome: "applied", RecordedAt: t0.Add(2 * time.Second)}))

	rec, err := l.Component(ctx, "hardhat", "Exchange")
	require.NoError(t, err)
	assert.Equal(t, exchangeAddr, rec.Address)
	assert.True(t, rec.ArgsEqual([]chain.Address{issuerAddr}))
	assert.False(t, rec.ArgsEqual([]chain.Address{exchangeAddr}))

	step, err := l.Step(ctx, "hardhat", "approve-exchange")
	require.NoError(t, err)
	assert.Equal(t, "fp", step.Fingerprint)
	assert.Equal(t, "1000", step.Amount)
	assert.Equal(t, []chain.Address{issuerAddr, exchangeAddr}, step.Targets)

	// Networks are isolated.
	_, err = l.Component(ctx, "sepolia", "Issuer")
	assert.ErrorIs(t, err, ErrNotFound)

	// Overwrite replaces the record.
	require.NoError(t, l.PutComponent(ctx, ComponentRecord{Network: "hardhat", Kind: "Issuer", Address: exchangeAddr, RecordedAt: t0}))
	rec, err = l.Component(ctx, "hardhat", "Issuer")
	require.NoError(t, err)
	assert.Equal(t, exchangeAddr, rec.Address)

	snap, err := l.Snapshot(ctx, "hardhat")
	require.NoError(t, err)
	require.Len(t, snap.Components, 2)
	assert.Equal(t, "Issuer", snap.Components[0].Kind)
	assert.Equal(t, "Exchange", snap.Components[1].Kind)
	require.Len(t, snap.Steps, 1)

	empty, err := l.Snapshot(ctx, "nowhere")
	require.NoError(t, err)
	assert.Empty(t, empty.Components)
	assert.Empty(t, empty.Steps)
}

// =============================================================================
// Memory Tests
// =============================================================================

func TestMemory(t *testing.T) {
	exerciseLedger(t, NewMemory())
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()
	args := []chain.Address{issuerAddr}
	require.NoError(t, l.PutComponent(ctx, ComponentRecord{Network: "n", Kind: "Exchange", ConstructorArgs: args}))

	args[0] = exchangeAddr
	rec, err := l.Component(ctx, "n", "Exchange")
	require.NoError(t, err)
	assert.Equal(t, issuerAddr, rec.ConstructorArgs[0])
	assert.False(t, rec.RecordedAt.IsZero())
}

// =============================================================================
// File Tests
// =============================================================================

func TestFile(t *testing.T) {
	l, err := OpenFile(filepath.Join(t.TempDir(), "ledger.json"))
	require.NoError(t, err)
	exerciseLedger(t, l)
}

func TestFile_PersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "ledger.json")

	l, err := OpenFile(path)
	require.NoError(t, err)
	require.NoError(t, l.PutComponent(ctx, ComponentRecord{Network: "localhost", Kind: "Issuer", Address: issuerAddr}))
	require.NoError(t, l.PutStep(ctx, StepRecord{Network: "localhost", Step: "mint-mover", Fingerprint: "x", Outcome: "applied"}))

	reopened, err := OpenFile(path)
	require.NoError(t, err)
	rec, err := reopened.Component(ctx, "localhost", "Issuer")
	require.NoError(t, err)
	assert.Equal(t, issuerAddr, rec.Address)
	step, err := reopened.Step(ctx, "localhost", "mint-mover")
	require.NoError(t, err)
	assert.Equal(t, "x", step.Fingerprint)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are renamed away")
}

func TestFile_CorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := OpenFile(path)
	assert.True(t, stderrors.Is(err, bserr.ErrLedgerUnavailable))
}

func TestFile_WriteFailureLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "state")

	l, err := OpenFile(filepath.Join(dir, "ledger.json"))
	require.NoError(t, err)

	// Replace the parent directory with a regular file so every write fails.
	require.NoError(t, os.WriteFile(dir, nil, 0o644))

	err = l.PutStep(ctx, StepRecord{Network: "n", Step: "s"})
	assert.True(t, stderrors.Is(err, bserr.ErrLedgerUnavailable))
	_, err = l.Step(ctx, "n", "s")
	assert.ErrorIs(t, err, ErrNotFound)
}

// =============================================================================
// Open Tests
// =============================================================================

func TestOpen(t *testing.T) {
	ctx := context.Background()

	l, err := Open(ctx, Options{})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, l)

	l, err = Open(ctx, Options{Backend: BackendFile, Path: filepath.Join(t.TempDir(), "l.json")})
	require.NoError(t, err)
	assert.IsType(t, &File{}, l)

	for _, opts := range []Options{
		{Backend: BackendFile},
		{Backend: BackendPostgres},
		{Backend: BackendRedis},
		{Backend: "etcd"},
	} {
		_, err := Open(ctx, opts)
		assert.True(t, stderrors.Is(err, bserr.ErrInvalidConfig), opts.Backend)
	}
}
