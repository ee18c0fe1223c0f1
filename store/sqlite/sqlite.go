/*
Package sqlite provides a SQLite-backed implementation of the Ledger.

PURPOSE:
  Persists contracts, tariff brackets and saved installment schedules.
  The schedule engine only reads brackets and writes whole schedules;
  the contract and bracket CRUD serves the administration endpoints.

INTERFACES IMPLEMENTED:
  generic.BracketSource:  ListBrackets, ListAllBrackets, CurrentYearFor
  generic.ScheduleWriter: SaveSchedule

SCHEDULE WRITES:
  A schedule is always replaced as a whole, never patched:
  - DELETE the contract's previous schedule (installments cascade)
  - INSERT the schedule header and every installment
  - all inside one SQL transaction, so a failure writes nothing
  Concurrent saves for the same contract are last-write-wins.
  SQLITE_BUSY / SQLITE_LOCKED are retried with exponential backoff.

KEY TABLES:
  contracts:    client contract with activation date (anchors bracket year)
  brackets:     year-scoped pricing tiers, max_units NULL = unbounded
  schedules:    one row per contract with the saved total
  installments: ordered rows of a schedule

MONEY:
  Percentages, amounts, rates and hours are stored as decimal TEXT so
  no value ever passes through float64.

USAGE:
  store, err := sqlite.New("./data/billing.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  catalog := tariff.NewCatalog(store, generic.SystemClock{})

SEE ALSO:
  - generic/ledger.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/generic"
)

// Store implements the Ledger using SQLite.
type Store struct {
	// Clock stamps saved_at and created_at. Defaults to the system clock.
	Clock generic.Clock

	db          *sql.DB
	mu          sync.RWMutex
	retryConfig retry.Config
}

var _ generic.Ledger = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &Store{
		Clock: generic.SystemClock{},
		db:    db,
		retryConfig: retry.Config{
			MaxAttempts:   3,
			InitialDelay:  10 * time.Millisecond,
			BackoffPolicy: retry.BackoffExponential,
		},
	}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS contracts (
		id TEXT PRIMARY KEY,
		client_name TEXT NOT NULL,
		activation_date TEXT NOT NULL,
		units INTEGER NOT NULL DEFAULT 0,
		total TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS brackets (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		year INTEGER NOT NULL,
		min_units INTEGER NOT NULL DEFAULT 1,
		max_units INTEGER,
		rate TEXT NOT NULL,
		hours TEXT NOT NULL DEFAULT '1',
		created_at TEXT NOT NULL
	);

	-- Matching walks one year's brackets in min_units order
	CREATE INDEX IF NOT EXISTS idx_brackets_year_min
		ON brackets(year, min_units);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_brackets_year_name
		ON brackets(year, name);

	CREATE TABLE IF NOT EXISTS schedules (
		id TEXT PRIMARY KEY,
		contract_id TEXT NOT NULL UNIQUE REFERENCES contracts(id) ON DELETE CASCADE,
		total TEXT NOT NULL,
		saved_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS installments (
		schedule_id TEXT NOT NULL REFERENCES schedules(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		due_date TEXT NOT NULL,
		percentage TEXT NOT NULL,
		amount TEXT NOT NULL,
		PRIMARY KEY (schedule_id, seq)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// BRACKET SOURCE (generic.BracketSource interface)
// =============================================================================

const bracketColumns = "id, name, year, min_units, max_units, rate, hours"

// ListBrackets returns the brackets of one year in min_units order.
func (s *Store) ListBrackets(ctx context.Context, year int) ([]generic.Bracket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryBrackets(ctx,
		"SELECT "+bracketColumns+" FROM brackets WHERE year = ? ORDER BY min_units, name", year)
}

// ListAllBrackets returns every bracket ordered by year then min_units.
func (s *Store) ListAllBrackets(ctx context.Context) ([]generic.Bracket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryBrackets(ctx,
		"SELECT "+bracketColumns+" FROM brackets ORDER BY year, min_units, name")
}

// CurrentYearFor returns the activation year of a contract.
func (s *Store) CurrentYearFor(ctx context.Context, contractID generic.ContractID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var activation string
	err := s.db.QueryRowContext(ctx,
		"SELECT activation_date FROM contracts WHERE id = ?", string(contractID),
	).Scan(&activation)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, generic.ErrContractNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read contract %s: %w", contractID, err)
	}

	day, err := generic.ParseDate(activation)
	if err != nil {
		return 0, fmt.Errorf("contract %s has a corrupt activation date: %w", contractID, err)
	}
	return day.Year(), nil
}

func (s *Store) queryBrackets(ctx context.Context, query string, args ...any) ([]generic.Bracket, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query brackets: %w", err)
	}
	defer rows.Close()

	var brackets []generic.Bracket
	for rows.Next() {
		b, err := scanBracket(rows)
		if err != nil {
			return nil, err
		}
		brackets = append(brackets, b)
	}
	return brackets, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBracket(row rowScanner) (generic.Bracket, error) {
	var b generic.Bracket
	var id, rate, hours string
	var maxUnits sql.NullInt64

	if err := row.Scan(&id, &b.Name, &b.Year, &b.MinUnits, &maxUnits, &rate, &hours); err != nil {
		return generic.Bracket{}, err
	}
	b.ID = generic.BracketID(id)
	if maxUnits.Valid {
		v := int(maxUnits.Int64)
		b.MaxUnits = &v
	}

	var err error
	if b.Rate, err = decimal.NewFromString(rate); err != nil {
		return generic.Bracket{}, fmt.Errorf("bracket %s rate: %w", id, err)
	}
	if b.Hours, err = decimal.NewFromString(hours); err != nil {
		return generic.Bracket{}, fmt.Errorf("bracket %s hours: %w", id, err)
	}
	return b, nil
}

// =============================================================================
// SCHEDULE WRITER (generic.ScheduleWriter interface)
// =============================================================================

// SaveSchedule replaces the saved schedule of a contract atomically.
// Lock contention is retried; every other failure is returned at once
// and leaves the previous schedule in place.
func (s *Store) SaveSchedule(ctx context.Context, contractID generic.ContractID, rows []generic.Installment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var permanent error
	retryer := retry.New[struct{}](s.retryConfig)
	_, err := retryer.Do(ctx, func(ctx context.Context) (struct{}, error) {
		err := s.replaceSchedule(ctx, contractID, rows)
		if err != nil && !isBusyError(err) {
			permanent = err
			return struct{}{}, nil
		}
		return struct{}{}, err
	})
	if permanent != nil {
		return permanent
	}
	if err != nil {
		return fmt.Errorf("failed to save schedule for %s: %w", contractID, err)
	}
	return nil
}

func (s *Store) replaceSchedule(ctx context.Context, contractID generic.ContractID, rows []generic.Installment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM contracts WHERE id = ?", string(contractID),
	).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return generic.ErrContractNotFound
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM schedules WHERE contract_id = ?", string(contractID)); err != nil {
		return fmt.Errorf("failed to clear previous schedule: %w", err)
	}

	scheduleID := uuid.NewString()
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schedules (id, contract_id, total, saved_at) VALUES (?, ?, ?, ?)",
		scheduleID, string(contractID),
		generic.AmountSum(rows).StringFixed(generic.MinorUnits),
		s.timestamp(),
	); err != nil {
		return fmt.Errorf("failed to insert schedule: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO installments (schedule_id, seq, due_date, percentage, amount) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			scheduleID, i,
			r.DueDate.String(),
			r.Percentage.StringFixed(generic.MinorUnits),
			r.Amount.StringFixed(generic.MinorUnits),
		); err != nil {
			return fmt.Errorf("failed to insert installment %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// ScheduleRecord is a saved schedule with its storage metadata.
type ScheduleRecord struct {
	ID string
	generic.Schedule
	SavedAt time.Time
}

// LoadSchedule returns the saved schedule of a contract, or nil if none.
func (s *Store) LoadSchedule(ctx context.Context, contractID generic.ContractID) (*ScheduleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rec ScheduleRecord
	var total, savedAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT id, total, saved_at FROM schedules WHERE contract_id = ?", string(contractID),
	).Scan(&rec.ID, &total, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.ContractID = contractID
	rec.Total = generic.MustParseDecimal(total)
	rec.SavedAt, _ = time.Parse(time.RFC3339, savedAt)

	rows, err := s.db.QueryContext(ctx,
		"SELECT due_date, percentage, amount FROM installments WHERE schedule_id = ? ORDER BY seq", rec.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var due, pct, amt string
		if err := rows.Scan(&due, &pct, &amt); err != nil {
			return nil, err
		}
		day, err := generic.ParseDate(due)
		if err != nil {
			return nil, err
		}
		rec.Installments = append(rec.Installments, generic.Installment{
			DueDate:    day,
			Percentage: generic.MustParseDecimal(pct),
			Amount:     generic.MustParseDecimal(amt),
		})
	}
	return &rec, rows.Err()
}

// =============================================================================
// BRACKET ADMINISTRATION
// =============================================================================

// SaveBracket inserts or updates a bracket.
func (s *Store) SaveBracket(ctx context.Context, b generic.Bracket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.saveBracket(ctx, s.db, b)
}

// SaveBrackets stores a whole catalog import atomically. Imports are
// keyed on (year, name): a bracket already stored under that key keeps
// its ID and is updated in place, so documents without ids can be
// imported again.
func (s *Store) SaveBrackets(ctx context.Context, brackets []generic.Bracket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, b := range brackets {
		var storedID string
		err := tx.QueryRowContext(ctx,
			"SELECT id FROM brackets WHERE year = ? AND name = ?", b.Year, b.Name,
		).Scan(&storedID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("failed to look up bracket %s: %w", b.Name, err)
		default:
			b.ID = generic.BracketID(storedID)
		}
		if err := s.saveBracket(ctx, tx, b); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) saveBracket(ctx context.Context, db interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}, b generic.Bracket) error {
	query := `
		INSERT INTO brackets (id, name, year, min_units, max_units, rate, hours, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			year = excluded.year,
			min_units = excluded.min_units,
			max_units = excluded.max_units,
			rate = excluded.rate,
			hours = excluded.hours
	`

	var maxUnits sql.NullInt64
	if b.MaxUnits != nil {
		maxUnits = sql.NullInt64{Int64: int64(*b.MaxUnits), Valid: true}
	}

	_, err := db.ExecContext(ctx, query,
		string(b.ID), b.Name, b.Year, b.MinUnits, maxUnits,
		b.Rate.String(), b.Hours.String(),
		s.timestamp(),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %d already has a bracket named %q", generic.ErrInvalidBracket, b.Year, b.Name)
		}
		return fmt.Errorf("failed to save bracket %s: %w", b.Name, err)
	}
	return nil
}

// GetBracket retrieves a bracket by ID, or nil if it doesn't exist.
func (s *Store) GetBracket(ctx context.Context, id generic.BracketID) (*generic.Bracket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, err := scanBracket(s.db.QueryRowContext(ctx,
		"SELECT "+bracketColumns+" FROM brackets WHERE id = ?", string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// DeleteBracket removes a bracket.
func (s *Store) DeleteBracket(ctx context.Context, id generic.BracketID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM brackets WHERE id = ?", string(id))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return generic.ErrBracketNotFound
	}
	return nil
}

// ListBracketYears returns the catalog years present, ascending.
func (s *Store) ListBracketYears(ctx context.Context) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT year FROM brackets ORDER BY year")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var years []int
	for rows.Next() {
		var y int
		if err := rows.Scan(&y); err != nil {
			return nil, err
		}
		years = append(years, y)
	}
	return years, rows.Err()
}

// =============================================================================
// CONTRACT STORE
// =============================================================================

const contractColumns = "id, client_name, activation_date, units, total"

// SaveContract inserts or updates a contract.
func (s *Store) SaveContract(ctx context.Context, c generic.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO contracts (id, client_name, activation_date, units, total, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			client_name = excluded.client_name,
			activation_date = excluded.activation_date,
			units = excluded.units,
			total = excluded.total,
			updated_at = excluded.updated_at
	`

	now := s.timestamp()
	_, err := s.db.ExecContext(ctx, query,
		string(c.ID), c.ClientName, c.ActivationDate.String(), c.Units,
		c.Total.StringFixed(generic.MinorUnits), now, now,
	)
	return err
}

// GetContract retrieves a contract by ID, or nil if it doesn't exist.
func (s *Store) GetContract(ctx context.Context, id generic.ContractID) (*generic.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := scanContract(s.db.QueryRowContext(ctx,
		"SELECT "+contractColumns+" FROM contracts WHERE id = ?", string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListContracts returns all contracts ordered by client name.
func (s *Store) ListContracts(ctx context.Context) ([]generic.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+contractColumns+" FROM contracts ORDER BY client_name, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contracts []generic.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, c)
	}
	return contracts, rows.Err()
}

// DeleteContract removes a contract and its saved schedule.
func (s *Store) DeleteContract(ctx context.Context, id generic.ContractID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM contracts WHERE id = ?", string(id))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return generic.ErrContractNotFound
	}
	return nil
}

func scanContract(row rowScanner) (generic.Contract, error) {
	var c generic.Contract
	var id, activation, total string
	if err := row.Scan(&id, &c.ClientName, &activation, &c.Units, &total); err != nil {
		return generic.Contract{}, err
	}
	c.ID = generic.ContractID(id)

	day, err := generic.ParseDate(activation)
	if err != nil {
		return generic.Contract{}, fmt.Errorf("contract %s activation date: %w", id, err)
	}
	c.ActivationDate = day
	if c.Total, err = decimal.NewFromString(total); err != nil {
		return generic.Contract{}, fmt.Errorf("contract %s total: %w", id, err)
	}
	return c, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"installments", "schedules", "contracts", "brackets"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func (s *Store) timestamp() string {
	return s.Clock.Now().UTC().Format(time.RFC3339)
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isBusyError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	return false
}
