package store

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/licensor/internal/license/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrConflict is returned when a transaction lost a race with another
	// writer. WithTx retries on it where the driver can.
	ErrConflict = errors.New("store: write conflict")

	// ErrTxDone is returned when a finished transaction is used again, or
	// when a transaction is started from inside one.
	ErrTxDone = errors.New("store: transaction has already been committed or rolled back")

	ErrClosed = errors.New("store: closed")
)

// Store is the root data access interface. Concrete drivers (memory, file,
// sqlite, redis) implement it.
//
// Every mutating lifecycle operation runs inside WithTx. Drivers guarantee
// that transactions are serialized: a transaction never observes another
// one half applied, and a failed commit leaves the previous state intact.
// While a transaction is open the root repositories must not be used from
// the same goroutine.
type Store interface {
	Licenses() Licenses

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	// fn may run more than once when the driver retries a conflicting commit.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error

	// Ping verifies the backing storage is reachable.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// Licenses is the license record repository. Lookups that can match several
// records return the first one in insertion order.
type Licenses interface {
	// GetLicense finds a record by its (licenseKey, playerID) pair.
	GetLicense(ctx context.Context, licenseKey, playerID string) (domain.License, error)

	// GetLicenseByRefreshToken finds a record by refresh token alone.
	GetLicenseByRefreshToken(ctx context.Context, refreshToken string) (domain.License, error)

	// GetPlayerLicenseByRefreshToken finds a record by refresh token owned by playerID.
	GetPlayerLicenseByRefreshToken(ctx context.Context, refreshToken, playerID string) (domain.License, error)

	// FindPlayerLicenseByKeyPrefix finds a record of playerID whose key starts with prefix.
	FindPlayerLicenseByKeyPrefix(ctx context.Context, playerID, prefix string) (domain.License, error)

	// ListLicenses returns every record in insertion order.
	ListLicenses(ctx context.Context) ([]domain.License, error)

	// CreateLicense appends a record. The ID is provided by the caller.
	CreateLicense(ctx context.Context, l domain.License) error

	// UpdateLicense replaces the record with the same ID.
	UpdateLicense(ctx context.Context, l domain.License) error

	// DeleteLicense removes the record with the given ID.
	DeleteLicense(ctx context.Context, id string) error
}
