// Package redis keeps the license document as one JSON value under a single
// key. Commits use WATCH/MULTI so concurrent writers from several processes
// cannot overwrite each other; a losing transaction is retried.
package redis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/licensor/internal/license/domain"
	"github.com/aussiebroadwan/licensor/internal/license/store"
	"github.com/aussiebroadwan/licensor/internal/license/store/drivers/memory"
	"github.com/aussiebroadwan/licensor/pkg/slogx"
	goredis "github.com/redis/go-redis/v9"
)

const (
	DefaultKey        = "licensor:licenses"
	DefaultMaxRetries = 16

	migrateTimeout = 10 * time.Second
)

type Store struct {
	rdb        goredis.UniversalClient
	key        string
	maxRetries int

	// sem serializes transactions of this process so retries are only
	// needed against other processes.
	sem chan struct{}
}

// NewStore wraps an existing client. An empty key selects DefaultKey.
func NewStore(rdb goredis.UniversalClient, key string) *Store {
	if key == "" {
		key = DefaultKey
	}
	return &Store{
		rdb:        rdb,
		key:        key,
		maxRetries: DefaultMaxRetries,
		sem:        make(chan struct{}, 1),
	}
}

func (s *Store) Close() error { return s.rdb.Close() }

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// ApplyMigrations gives legacy rows their ids once, at startup, and logs
// rows that do not decode. Those stay in the document untouched.
func (s *Store) ApplyMigrations() error {
	ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
	defer cancel()

	return s.normalize(ctx, true)
}

// normalize persists ids for rows that have none, so every reader sees the
// same id for a row.
func (s *Store) normalize(ctx context.Context, report bool) error {
	log := slogx.FromContext(ctx).With("redis_key", s.key)

	for attempt := 0; ; attempt++ {
		raw, err := s.rdb.Get(ctx, s.key).Bytes()
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("redis store: get: %w", err)
		}

		doc, rowErrs, err := memory.DecodeDocument(raw)
		if err != nil {
			return fmt.Errorf("redis store: decode %s: %w", s.key, err)
		}
		if report && attempt == 0 {
			for _, re := range rowErrs {
				log.Warn("license row unreadable, kept as is", "row", re.Index, "err", re.Err)
			}
		}
		if !doc.Normalize() {
			return nil
		}

		err = s.commit(ctx, raw, doc)
		if !errors.Is(err, store.ErrConflict) || attempt >= s.maxRetries {
			return err
		}
	}
}

// load returns the raw value as stored, for conflict detection, and the
// decoded document. A missing key is an empty document. Rows another writer
// added without an id get one persisted before the document is returned.
func (s *Store) load(ctx context.Context, c goredis.Cmdable) ([]byte, memory.Document, error) {
	raw, doc, err := s.read(ctx, c)
	if err != nil || !doc.MissingIDs() {
		return raw, doc, err
	}

	if err := s.normalize(ctx, false); err != nil {
		return nil, memory.Document{}, err
	}
	return s.read(ctx, c)
}

func (s *Store) read(ctx context.Context, c goredis.Cmdable) ([]byte, memory.Document, error) {
	raw, err := c.Get(ctx, s.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, memory.Document{Licenses: []domain.License{}}, nil
	}
	if err != nil {
		return nil, memory.Document{}, fmt.Errorf("redis store: get: %w", err)
	}

	doc, _, err := memory.DecodeDocument(raw)
	if err != nil {
		return nil, memory.Document{}, fmt.Errorf("redis store: decode %s: %w", s.key, err)
	}
	if doc.Licenses == nil {
		doc.Licenses = []domain.License{}
	}
	return raw, doc, nil
}

func (s *Store) lock(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) unlock() { <-s.sem }

// Tx reads the current document and returns a transaction over a copy.
func (s *Store) Tx(ctx context.Context) (store.Tx, error) {
	if err := s.lock(ctx); err != nil {
		return nil, err
	}

	raw, doc, err := s.load(ctx, s.rdb)
	if err != nil {
		s.unlock()
		return nil, err
	}
	return &txStore{s: s, ctx: ctx, raw: raw, doc: doc}, nil
}

// WithTx executes fn within a transaction, automatically handling
// commit/rollback. When another writer changed the document first, fn is
// run again on the fresh state, up to the retry limit.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	for attempt := 0; ; attempt++ {
		err := s.withTxOnce(ctx, fn)
		if !errors.Is(err, store.ErrConflict) || attempt >= s.maxRetries {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (s *Store) withTxOnce(ctx context.Context, fn func(tx store.Tx) error) error {
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

// commit writes doc if the stored value still equals base.
func (s *Store) commit(ctx context.Context, base []byte, doc memory.Document) error {
	next, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("redis store: encode: %w", err)
	}

	err = s.rdb.Watch(ctx, func(rtx *goredis.Tx) error {
		cur, err := rtx.Get(ctx, s.key).Bytes()
		if err != nil && !errors.Is(err, goredis.Nil) {
			return err
		}
		if !bytes.Equal(cur, base) {
			return store.ErrConflict
		}

		_, err = rtx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.Set(ctx, s.key, next, 0)
			return nil
		})
		return err
	}, s.key)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, goredis.TxFailedErr), errors.Is(err, store.ErrConflict):
		return store.ErrConflict
	default:
		return fmt.Errorf("redis store: commit: %w", err)
	}
}

func (s *Store) Licenses() store.Licenses { return &rootLicenses{s: s} }

// rootLicenses reads a fresh snapshot per call; writes run as a one-shot
// transaction.
type rootLicenses struct {
	s *Store
}

func (r *rootLicenses) snapshot(ctx context.Context) (store.Licenses, error) {
	_, doc, err := r.s.load(ctx, r.s.rdb)
	if err != nil {
		return nil, err
	}
	return memory.NewLicenses(&doc), nil
}

func (r *rootLicenses) write(ctx context.Context, fn func(store.Licenses) error) error {
	return r.s.WithTx(ctx, func(tx store.Tx) error {
		return fn(tx.Licenses())
	})
}

func (r *rootLicenses) GetLicense(ctx context.Context, licenseKey, playerID string) (domain.License, error) {
	repo, err := r.snapshot(ctx)
	if err != nil {
		return domain.License{}, err
	}
	return repo.GetLicense(ctx, licenseKey, playerID)
}

func (r *rootLicenses) GetLicenseByRefreshToken(ctx context.Context, refreshToken string) (domain.License, error) {
	repo, err := r.snapshot(ctx)
	if err != nil {
		return domain.License{}, err
	}
	return repo.GetLicenseByRefreshToken(ctx, refreshToken)
}

func (r *rootLicenses) GetPlayerLicenseByRefreshToken(
	ctx context.Context,
	refreshToken, playerID string,
) (domain.License, error) {
	repo, err := r.snapshot(ctx)
	if err != nil {
		return domain.License{}, err
	}
	return repo.GetPlayerLicenseByRefreshToken(ctx, refreshToken, playerID)
}

func (r *rootLicenses) FindPlayerLicenseByKeyPrefix(
	ctx context.Context,
	playerID, prefix string,
) (domain.License, error) {
	repo, err := r.snapshot(ctx)
	if err != nil {
		return domain.License{}, err
	}
	return repo.FindPlayerLicenseByKeyPrefix(ctx, playerID, prefix)
}

func (r *rootLicenses) ListLicenses(ctx context.Context) ([]domain.License, error) {
	repo, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return repo.ListLicenses(ctx)
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
