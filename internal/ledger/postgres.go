package ledger

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/R3E-Network/stablecoin_bootstrap/internal/chain"
	bserr "github.com/R3E-Network/stablecoin_bootstrap/internal/errors"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// MigrationsTable keeps the ledger schema version apart from other tables in
// a shared database.
const MigrationsTable = "ledger_schema_migrations"

// Migrate applies the embedded ledger schema to db.
func Migrate(db *sql.DB) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return bserr.New(bserr.KindLedgerUnavailable, "ledger.migrate", err)
	}
	driver, err := migratepg.WithInstance(db, &migratepg.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		return bserr.New(bserr.KindLedgerUnavailable, "ledger.migrate", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return bserr.New(bserr.KindLedgerUnavailable, "ledger.migrate", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return bserr.New(bserr.KindLedgerUnavailable, "ledger.migrate", err)
	}
	return nil
}

// Postgres is a ledger backed by PostgreSQL.
type Postgres struct {
	db *sqlx.DB
}

var _ Ledger = (*Postgres)(nil)

// NewPostgres wraps an open database handle. The schema must already exist;
// see Migrate.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

// OpenPostgres connects to dsn and applies migrations.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, bserr.New(bserr.KindLedgerUnavailable, "ledger.open", err)
	}
	if err := Migrate(db.DB); err != nil {
		db.Close()
		return nil, err
	}
	return NewPostgres(db), nil
}

type componentRow struct {
	Network         string    `db:"network"`
	Kind            string    `db:"kind"`
	Address         string    `db:"address"`
	ConstructorArgs string    `db:"constructor_args"`
	TxHash          string    `db:"tx_hash"`
	RunID           string    `db:"run_id"`
	RecordedAt      time.Time `db:"recorded_at"`
}

func (r componentRow) record() (ComponentRecord, error) {
	rec := ComponentRecord{
		Network:    r.Network,
		Kind:       r.Kind,
		Address:    chain.Address(r.Address),
		TxHash:     r.TxHash,
		RunID:      r.RunID,
		RecordedAt: r.RecordedAt.UTC(),
	}
	if r.ConstructorArgs != "" {
		if err := json.Unmarshal([]byte(r.ConstructorArgs), &rec.ConstructorArgs); err != nil {
			return ComponentRecord{}, err
		}
	}
	return rec, nil
}

type stepRow struct {
	Network     string    `db:"network"`
	Step        string    `db:"step"`
	Fingerprint string    `db:"fingerprint"`
	Targets     string    `db:"targets"`
	Amount      string    `db:"amount"`
	Outcome     string    `db:"outcome"`
	TxHash      string    `db:"tx_hash"`
	RunID       string    `db:"run_id"`
	RecordedAt  time.Time `db:"recorded_at"`
}

func (r stepRow) record() (StepRecord, error) {
	rec := StepRecord{
		Network:     r.Network,
		Step:        r.Step,
		Fingerprint: r.Fingerprint,
		Amount:      r.Amount,
		Outcome:     r.Outcome,
		TxHash:      r.TxHash,
		RunID:       r.RunID,
		RecordedAt:  r.RecordedAt.UTC(),
	}
	if r.Targets != "" {
		if err := json.Unmarshal([]byte(r.Targets), &rec.Targets); err != nil {
			return StepRecord{}, err
		}
	}
	return rec, nil
}

const (
	componentColumns = `network, kind, address, constructor_args, tx_hash, run_id, recorded_at`
	stepColumns      = `network, step, fingerprint, targets, amount, outcome, tx_hash, run_id, recorded_at`
)

func (p *Postgres) Component(ctx context.Context, network, kind string) (ComponentRecord, error) {
	var row componentRow
	err := p.db.GetContext(ctx, &row, `
		SELECT `+componentColumns+`
		FROM ledger_components
		WHERE network = $1 AND kind = $2
	`, network, kind)
	if errors.Is(err, sql.ErrNoRows) {
		return ComponentRecord{}, ErrNotFound
	}
	if err != nil {
		return ComponentRecord{}, bserr.New(bserr.KindLedgerUnavailable, "ledger.component", err)
	}
	rec, err := row.record()
	if err != nil {
		return ComponentRecord{}, bserr.New(bserr.KindLedgerUnavailable, "ledger.component", err)
	}
	return rec, nil
}

func (p *Postgres) PutComponent(ctx context.Context, rec ComponentRecord) error {
	args, err := json.Marshal(nonNilAddresses(rec.ConstructorArgs))
	if err != nil {
		return bserr.New(bserr.KindLedgerUnavailable, "ledger.put_component", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO ledger_components (`+componentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (network, kind) DO UPDATE
		SET address = EXCLUDED.address,
		    constructor_args = EXCLUDED.constructor_args,
		    tx_hash = EXCLUDED.tx_hash,
		    run_id = EXCLUDED.run_id,
		    recorded_at = EXCLUDED.recorded_at
	`, rec.Network, rec.Kind, rec.Address.String(), string(args), rec.TxHash, rec.RunID, stamp(rec.RecordedAt))
	if err != nil {
		return bserr.New(bserr.KindLedgerUnavailable, "ledger.put_component", err)
	}
	return nil
}

func (p *Postgres) Step(ctx context.Context, network, step string) (StepRecord, error) {
	var row stepRow
	err := p.db.GetContext(ctx, &row, `
		SELECT `+stepColumns+`
		FROM ledger_steps
		WHERE network = $1 AND step = $2
	`, network, step)
	if errors.Is(err, sql.ErrNoRows) {
		return StepRecord{}, ErrNotFound
	}
	if err != nil {
		return StepRecord{}, bserr.New(bserr.KindLedgerUnavailable, "ledger.step", err)
	}
	rec, err := row.record()
	if err != nil {
		return StepRecord{}, bserr.New(bserr.KindLedgerUnavailable, "ledger.step", err)
	}
	return rec, nil
}

func (p *Postgres) PutStep(ctx context.Context, rec StepRecord) error {
	targets, err := json.Marshal(nonNilAddresses(rec.Targets))
	if err != nil {
		return bserr.New(bserr.KindLedgerUnavailable, "ledger.put_step", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO ledger_steps (`+stepColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (network, step) DO UPDATE
		SET fingerprint = EXCLUDED.fingerprint,
		    targets = EXCLUDED.targets,
		    amount = EXCLUDED.amount,
		    outcome = EXCLUDED.outcome,
		    tx_hash = EXCLUDED.tx_hash,
		    run_id = EXCLUDED.run_id,
		    recorded_at = EXCLUDED.recorded_at
	`, rec.Network, rec.Step, rec.Fingerprint, string(targets), rec.Amount, rec.Outcome, rec.TxHash, rec.RunID, stamp(rec.RecordedAt))
	if err != nil {
		return bserr.New(bserr.KindLedgerUnavailable, "ledger.put_step", err)
	}
	return nil
}

func (p *Postgres) Snapshot(ctx context.Context, network string) (Snapshot, error) {
	snap := Snapshot{Network: network, Components: []ComponentRecord{}, Steps: []StepRecord{}}

	var components []componentRow
	if err := p.db.SelectContext(ctx, &components, `
		SELECT `+componentColumns+`
		FROM ledger_components
		WHERE network = $1
		ORDER BY recorded_at
	`, network); err != nil {
		return Snapshot{}, bserr.New(bserr.KindLedgerUnavailable, "ledger.snapshot", err)
	}
	for _, row := range components {
		rec, err := row.record()
		if err != nil {
			return Snapshot{}, bserr.New(bserr.KindLedgerUnavailable, "ledger.snapshot", err)
		}
		snap.Components = append(snap.Components, rec)
	}

	var steps []stepRow
	if err := p.db.SelectContext(ctx, &steps, `
		SELECT `+stepColumns+`
		FROM ledger_steps
		WHERE network = $1
		ORDER BY recorded_at
	`, network); err != nil {
		return Snapshot{}, bserr.New(bserr.KindLedgerUnavailable, "ledger.snapshot", err)
	}
	for _, row := range steps {
		rec, err := row.record()
		if err != nil {
			return Snapshot{}, bserr.New(bserr.KindLedgerUnavailable, "ledger.snapshot", err)
		}
		snap.Steps = append(snap.Steps, rec)
	}
	return snap, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func nonNilAddresses(in []chain.Address) []chain.Address {
	if in == nil {
		return []chain.Address{}
	}
	return in
}
