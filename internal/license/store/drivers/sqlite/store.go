package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/licensor/internal/license/domain"
	"github.com/aussiebroadwan/licensor/internal/license/store"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type Store struct {
	db  *sql.DB
	q   *queries
	dsn string
}

// NewStore opens the database at dsn (a path, or ":memory:"). The pool is
// limited to one connection, which serializes transactions and keeps an
// in-memory database alive for the lifetime of the store.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.ExecContext(context.Background(), `PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite store: %w", err)
	}

	return &Store{
		db:  db,
		q:   &queries{db: db},
		dsn: dsn,
	}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Tx starts a read/write transaction and returns a Tx-scoped Store.
func (s *Store) Tx(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return newTx(tx), nil
}

// WithTx executes fn within a transaction, automatically handling commit/rollback.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.Tx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback() // safe to call even after commit
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Licenses() store.Licenses { return &licensesRepo{q: s.q} }

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func mapConstraint(err error) error {
	var serr *msqlite.Error
	if errors.As(err, &serr) {
		switch serr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return store.ErrAlreadyExists
		}
	}
	return err
}

func mapTxDone(err error) error {
	if errors.Is(err, sql.ErrTxDone) {
		return store.ErrTxDone
	}
	return err
}

func mapLicense(row licenseRow) (domain.License, error) {
	exp, err := parseTime("expiration_date", row.ExpirationDate)
	if err != nil {
		return domain.License{}, err
	}
	created, err := parseTime("created_at", row.CreatedAt)
	if err != nil {
		return domain.License{}, err
	}
	updated, err := parseTime("updated_at", row.UpdatedAt)
	if err != nil {
		return domain.License{}, err
	}

	return domain.License{
		ID:             row.ID,
		LicenseKey:     row.LicenseKey,
		PlayerID:       row.PlayerID,
		Token:          row.Token,
		RefreshToken:   row.RefreshToken,
		ExpirationDate: exp,
		CreatedAt:      created,
		UpdatedAt:      updated,
	}, nil
}

func mapLicenseRow(l domain.License) licenseRow {
	return licenseRow{
		ID:             l.ID,
		LicenseKey:     l.LicenseKey,
		PlayerID:       l.PlayerID,
		Token:          l.Token,
		RefreshToken:   l.RefreshToken,
		ExpirationDate: formatTime(l.ExpirationDate),
		CreatedAt:      formatTime(l.CreatedAt),
		UpdatedAt:      formatTime(l.UpdatedAt),
	}
}
