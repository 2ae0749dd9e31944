package ledger

import (
	"context"
	"database/sql"
	stderrors "errors"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/stablecoin_bootstrap/internal/chain"
	bserr "github.com/R3E-Network/stablecoin_bootstrap/internal/errors"
)

func newMockPostgres(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgres(sqlx.NewDb(db, "postgres")), mock
}

func TestPostgres_Component(t *testing.T) {
	p, mock := newMockPostgres(t)
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM ledger_components").
		WithArgs("hardhat", "Exchange").
		WillReturnRows(sqlmock.NewRows([]string{"network", "kind", "address", "constructor_args", "tx_hash", "run_id", "recorded_at"}).
			AddRow("hardhat", "Exchange", exchangeAddr.String(), `["`+issuerAddr.String()+`"]`, "0xab", "run", at))

	rec, err := p.Component(context.Background(), "hardhat", "Exchange")
	require.NoError(t, err)
	assert.Equal(t, exchangeAddr, rec.Address)
	assert.Equal(t, []chain.Address{issuerAddr}, rec.ConstructorArgs)
	assert.Equal(t, at, rec.RecordedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ComponentNotFound(t *testing.T) {
	p, mock := newMockPostgres(t)
	mock.ExpectQuery("SELECT (.+) FROM ledger_components").
		WithArgs("hardhat", "Issuer").
		WillReturnError(sql.ErrNoRows)

	_, err := p.Component(context.Background(), "hardhat", "Issuer")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgres_PutComponentUpserts(t *testing.T) {
	p, mock := newMockPostgres(t)
	mock.ExpectExec("INSERT INTO ledger_components (.+) ON CONFLICT \\(network, kind\\) DO UPDATE").
		WithArgs("hardhat", "Issuer", issuerAddr.String(), "[]", "0x01", "run", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := p.PutComponent(context.Background(), ComponentRecord{Network: "hardhat", Kind: "Issuer", Address: issuerAddr, TxHash: "0x01", RunID: "run"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_PutStepFailureIsLedgerUnavailable(t *testing.T) {
	p, mock := newMockPostgres(t)
	mock.ExpectExec("INSERT INTO ledger_steps").WillReturnError(stderrors.New("connection reset"))

	err := p.PutStep(context.Background(), StepRecord{Network: "hardhat", Step: "mint-mover"})
	assert.True(t, stderrors.Is(err, bserr.ErrLedgerUnavailable))
}

func TestPostgres_Snapshot(t *testing.T) {
	p, mock := newMockPostgres(t)
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT (.+) FROM ledger_components").
		WithArgs("hardhat").
		WillReturnRows(sqlmock.NewRows([]string{"network", "kind", "address", "constructor_args", "tx_hash", "run_id", "recorded_at"}).
			AddRow("hardhat", "Issuer", issuerAddr.String(), "[]", "", "", at))
	mock.ExpectQuery("SELECT (.+) FROM ledger_steps").
		WithArgs("hardhat").
		WillReturnRows(sqlmock.NewRows([]string{"network", "step", "fingerprint", "targets", "amount", "outcome", "tx_hash", "run_id", "recorded_at"}).
			AddRow("hardhat", "mint-mover", "fp", `["`+issuerAddr.String()+`"]`, "10", "applied", "0x02", "run", at))

	snap, err := p.Snapshot(context.Background(), "hardhat")
	require.NoError(t, err)
	require.Len(t, snap.Components, 1)
	require.Len(t, snap.Steps, 1)
	assert.Equal(t, "mint-mover", snap.Steps[0].Step)
	assert.Equal(t, []chain.Address{issuerAddr}, snap.Steps[0].Targets)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	l, err := OpenPostgres(context.Background(), dsn)
	require.NoError(t, err)
	defer l.Close()

	network := "it-" + time.Now().UTC().Format("20060102150405.000000000")
	ctx := context.Background()
	require.NoError(t, l.PutComponent(ctx, ComponentRecord{Network: network, Kind: "Issuer", Address: issuerAddr}))
	rec, err := l.Component(ctx, network, "Issuer")
	require.NoError(t, err)
	assert.Equal(t, issuerAddr, rec.Address)
}
