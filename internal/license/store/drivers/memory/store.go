package memory

import (
	"context"
	"sync/atomic"

	"github.com/aussiebroadwan/licensor/internal/license/domain"
	"github.com/aussiebroadwan/licensor/internal/license/store"
)

// PersistFunc is called with the full candidate document before a commit is
// applied. A non-nil error aborts the commit and keeps the previous state.
type PersistFunc func(ctx context.Context, doc Document) error

// Store keeps every record in process memory behind a single lock. A
// transaction owns the lock from Tx until Commit or Rollback and mutates a
// private copy, which replaces the live document only once persisted.
type Store struct {
	sem     chan struct{}
	doc     Document
	persist PersistFunc
	closed  atomic.Bool
}

// NewStore returns an empty, purely in-memory store.
func NewStore() *Store {
	return New(Document{}, nil)
}

// New returns a store seeded with doc that calls persist on every commit.
func New(doc Document, persist PersistFunc) *Store {
	doc = doc.Clone()
	doc.Normalize()
	return &Store{
		sem:     make(chan struct{}, 1),
		doc:     doc,
		persist: persist,
	}
}

func (s *Store) lock(ctx context.Context) error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) unlock() { <-s.sem }

func (s *Store) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *Store) Ping(context.Context) error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	return nil
}

// ApplyMigrations is a no-op; there is no schema.
func (s *Store) ApplyMigrations() error { return nil }

// Tx starts a transaction over a private copy of the document.
func (s *Store) Tx(ctx context.Context) (store.Tx, error) {
	if err := s.lock(ctx); err != nil {
		return nil, err
	}
	return &txStore{s: s, ctx: ctx, doc: s.doc.Clone()}, nil
}

// WithTx executes fn within a transaction, automatically handling commit/rollback.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.Tx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Licenses() store.Licenses { return &rootLicenses{s: s} }

// rootLicenses serves calls made outside a transaction. Reads take the lock
// for the duration of the lookup; writes run as a one-shot transaction.
type rootLicenses struct {
	s *Store
}

func (r *rootLicenses) read(ctx context.Context, fn func(store.Licenses) error) error {
	if err := r.s.lock(ctx); err != nil {
		return err
	}
	defer r.s.unlock()
	return fn(NewLicenses(&r.s.doc))
}

func (r *rootLicenses) write(ctx context.Context, fn func(store.Licenses) error) error {
	return r.s.WithTx(ctx, func(tx store.Tx) error {
		return fn(tx.Licenses())
	})
}

func (r *rootLicenses) GetLicense(ctx context.Context, licenseKey, playerID string) (l domain.License, err error) {
	err = r.read(ctx, func(repo store.Licenses) error {
		l, err = repo.GetLicense(ctx, licenseKey, playerID)
		return err
	})
	return l, err
}

func (r *rootLicenses) GetLicenseByRefreshToken(ctx context.Context, refreshToken string) (l domain.License, err error) {
	err = r.read(ctx, func(repo store.Licenses) error {
		l, err = repo.GetLicenseByRefreshToken(ctx, refreshToken)
		return err
	})
	return l, err
}

func (r *rootLicenses) GetPlayerLicenseByRefreshToken(
	ctx context.Context,
	refreshToken, playerID string,
) (l domain.License, err error) {
	err = r.read(ctx, func(repo store.Licenses) error {
		l, err = repo.GetPlayerLicenseByRefreshToken(ctx, refreshToken, playerID)
		return err
	})
	return l, err
}

func (r *rootLicenses) FindPlayerLicenseByKeyPrefix(
	ctx context.Context,
	playerID, prefix string,
) (l domain.License, err error) {
	err = r.read(ctx, func(repo store.Licenses) error {
		l, err = repo.FindPlayerLicenseByKeyPrefix(ctx, playerID, prefix)
		return err
	})
	return l, err
}

func (r *rootLicenses) ListLicenses(ctx context.Context) (ls []domain.License, err error) {
	err = r.read(ctx, func(repo store.Licenses) error {
		ls, err = repo.ListLicenses(ctx)
		return err
	})
	return ls, err
}

func (r *rootLicenses) CreateLicense(ctx context.Context, l domain.License) error {
	return r.write(ctx, func(repo store.Licenses) error {
		return repo.CreateLicense(ctx, l)
	})
}

func (r *rootLicenses) UpdateLicense(ctx context.Context, l domain.License) error {
	return r.write(ctx, func(repo store.Licenses) error {
		return repo.UpdateLicense(ctx, l)
	})
}

func (r *rootLicenses) DeleteLicense(ctx context.Context, id string) error {
	return r.write(ctx, func(repo store.Licenses) error {
		return repo.DeleteLicense(ctx, id)
	})
}
