// Package storetest holds the behaviour every store driver must share. Driver
// packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/licensor/internal/license/domain"
	"github.com/aussiebroadwan/licensor/internal/license/store"
	"github.com/aussiebroadwan/licensor/pkg/idx"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, migrated, empty store.
type Factory func(t *testing.T) store.Store

var (
	exp2030 = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	created = time.Date(2025, 6, 1, 12, 30, 15, 123456789, time.UTC)
)

// NewLicense builds a record with a fresh id and tokens derived from the pair.
func NewLicense(licenseKey, playerID string) domain.License {
	return domain.License{
		ID:             idx.New().String(),
		LicenseKey:     licenseKey,
		PlayerID:       playerID,
		Token:          "tok-" + licenseKey + "-" + playerID,
		RefreshToken:   "rt-" + licenseKey + "-" + playerID,
		ExpirationDate: exp2030,
		CreatedAt:      created,
		UpdatedAt:      created,
	}
}

// RequireSameLicense compares records field by field, times by instant.
func RequireSameLicense(t *testing.T, want, got domain.License) {
	t.Helper()

	require.Equal(t, want.ID, got.ID)
	require.Equal(t, want.LicenseKey, got.LicenseKey)
	require.Equal(t, want.PlayerID, got.PlayerID)
	require.Equal(t, want.Token, got.Token)
	require.Equal(t, want.RefreshToken, got.RefreshToken)
	require.True(t, want.ExpirationDate.Equal(got.ExpirationDate), "expirationDate: want %s got %s", want.ExpirationDate, got.ExpirationDate)
	require.True(t, want.CreatedAt.Equal(got.CreatedAt), "createdAt: want %s got %s", want.CreatedAt, got.CreatedAt)
	require.True(t, want.UpdatedAt.Equal(got.UpdatedAt), "updatedAt: want %s got %s", want.UpdatedAt, got.UpdatedAt)
}

// Run exercises the full store contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newStore(t)) })
	t.Run("Lookups", func(t *testing.T) { testLookups(t, newStore(t)) })
	t.Run("FirstMatchInInsertionOrder", func(t *testing.T) { testFirstMatch(t, newStore(t)) })
	t.Run("DuplicateID", func(t *testing.T) { testDuplicateID(t, newStore(t)) })
	t.Run("UpdateByID", func(t *testing.T) { testUpdate(t, newStore(t)) })
	t.Run("DeleteByID", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("TxCommit", func(t *testing.T) { testTxCommit(t, newStore(t)) })
	t.Run("TxRollback", func(t *testing.T) { testTxRollback(t, newStore(t)) })
	t.Run("TxFinished", func(t *testing.T) { testTxFinished(t, newStore(t)) })
	t.Run("NoLostUpdates", func(t *testing.T) { testNoLostUpdates(t, newStore(t)) })
	t.Run("Ping", func(t *testing.T) { require.NoError(t, newStore(t).Ping(context.Background())) })
}

func testCreateAndGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	l := NewLicense("K1", "p1")

	_, err := s.Licenses().GetLicense(ctx, "K1", "p1")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.Licenses().CreateLicense(ctx, l))

	got, err := s.Licenses().GetLicense(ctx, "K1", "p1")
	require.NoError(t, err)
	RequireSameLicense(t, l, got)

	_, err = s.Licenses().GetLicense(ctx, "K1", "p2")
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.Licenses().GetLicense(ctx, "K2", "p1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testLookups(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := NewLicense("K1", "p1")
	b := NewLicense("TRIAL-abc", "p1")
	c := NewLicense("K1", "p2")
	for _, l := range []domain.License{a, b, c} {
		require.NoError(t, s.Licenses().CreateLicense(ctx, l))
	}

	got, err := s.Licenses().GetLicenseByRefreshToken(ctx, c.RefreshToken)
	require.NoError(t, err)
	RequireSameLicense(t, c, got)

	_, err = s.Licenses().GetLicenseByRefreshToken(ctx, "nope")
	require.ErrorIs(t, err, store.ErrNotFound)

	got, err = s.Licenses().GetPlayerLicenseByRefreshToken(ctx, a.RefreshToken, "p1")
	require.NoError(t, err)
	RequireSameLicense(t, a, got)

	_, err = s.Licenses().GetPlayerLicenseByRefreshToken(ctx, a.RefreshToken, "p2")
	require.ErrorIs(t, err, store.ErrNotFound)

	got, err = s.Licenses().FindPlayerLicenseByKeyPrefix(ctx, "p1", domain.TrialKeyPrefix)
	require.NoError(t, err)
	RequireSameLicense(t, b, got)

	_, err = s.Licenses().FindPlayerLicenseByKeyPrefix(ctx, "p2", domain.TrialKeyPrefix)
	require.ErrorIs(t, err, store.ErrNotFound)

	all, err := s.Licenses().ListLicenses(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, want := range []domain.License{a, b, c} {
		RequireSameLicense(t, want, all[i])
	}
}

func testFirstMatch(t *testing.T, s store.Store) {
	ctx := context.Background()

	first := NewLicense("K1", "p1")
	second := NewLicense("K1", "p1")
	second.Token = "tok-second"
	second.RefreshToken = first.RefreshToken

	require.NoError(t, s.Licenses().CreateLicense(ctx, first))
	require.NoError(t, s.Licenses().CreateLicense(ctx, second))

	got, err := s.Licenses().GetLicense(ctx, "K1", "p1")
	require.NoError(t, err)
	require.Equal(t, first.ID, got.ID)

	got, err = s.Licenses().GetLicenseByRefreshToken(ctx, first.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, first.ID, got.ID)

	require.NoError(t, s.Licenses().DeleteLicense(ctx, first.ID))

	got, err = s.Licenses().GetLicense(ctx, "K1", "p1")
	require.NoError(t, err)
	require.Equal(t, second.ID, got.ID)
}

func testDuplicateID(t *testing.T, s store.Store) {
	ctx := context.Background()
	l := NewLicense("K1", "p1")

	require.NoError(t, s.Licenses().CreateLicense(ctx, l))
	require.ErrorIs(t, s.Licenses().CreateLicense(ctx, l), store.ErrAlreadyExists)

	all, err := s.Licenses().ListLicenses(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func testUpdate(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := NewLicense("K1", "p1")
	b := NewLicense("K2", "p1")
	require.NoError(t, s.Licenses().CreateLicense(ctx, a))
	require.NoError(t, s.Licenses().CreateLicense(ctx, b))

	a.LicenseKey = "K1-renamed"
	a.Token = "tok-new"
	a.RefreshToken = "rt-new"
	a.ExpirationDate = exp2030.AddDate(1, 0, 0)
	a.UpdatedAt = created.Add(time.Hour)
	require.NoError(t, s.Licenses().UpdateLicense(ctx, a))

	_, err := s.Licenses().GetLicense(ctx, "K1", "p1")
	require.ErrorIs(t, err, store.ErrNotFound)

	got, err := s.Licenses().GetLicense(ctx, "K1-renamed", "p1")
	require.NoError(t, err)
	RequireSameLicense(t, a, got)

	all, err := s.Licenses().ListLicenses(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, a.ID, all[0].ID, "update keeps the insertion position")

	missing := NewLicense("K9", "p9")
	require.ErrorIs(t, s.Licenses().UpdateLicense(ctx, missing), store.ErrNotFound)
}

func testDelete(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := NewLicense("K1", "p1")
	b := NewLicense("K2", "p1")
	require.NoError(t, s.Licenses().CreateLicense(ctx, a))
	require.NoError(t, s.Licenses().CreateLicense(ctx, b))

	require.NoError(t, s.Licenses().DeleteLicense(ctx, a.ID))
	require.ErrorIs(t, s.Licenses().DeleteLicense(ctx, a.ID), store.ErrNotFound)

	_, err := s.Licenses().GetLicense(ctx, "K1", "p1")
	require.ErrorIs(t, err, store.ErrNotFound)

	all, err := s.Licenses().ListLicenses(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	RequireSameLicense(t, b, all[0])
}

func testTxCommit(t *testing.T, s store.Store) {
	ctx := context.Background()
	l := NewLicense("K1", "p1")

	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Licenses().CreateLicense(ctx, l); err != nil {
			return err
		}
		got, err := tx.Licenses().GetLicense(ctx, "K1", "p1")
		if err != nil {
			return err
		}
		got.Token = "tok-in-tx"
		return tx.Licenses().UpdateLicense(ctx, got)
	})
	require.NoError(t, err)

	got, err := s.Licenses().GetLicense(ctx, "K1", "p1")
	require.NoError(t, err)
	require.Equal(t, "tok-in-tx", got.Token)
}

func testTxRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	keep := NewLicense("K1", "p1")
	require.NoError(t, s.Licenses().CreateLicense(ctx, keep))

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Licenses().CreateLicense(ctx, NewLicense("K2", "p1")); err != nil {
			return err
		}
		if err := tx.Licenses().DeleteLicense(ctx, keep.ID); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	all, err := s.Licenses().ListLicenses(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	RequireSameLicense(t, keep, all[0])
}

func testTxFinished(t *testing.T, s store.Store) {
	ctx := context.Background()

	tx, err := s.Tx(ctx)
	require.NoError(t, err)

	require.Error(t, tx.WithTx(ctx, func(store.Tx) error { return nil }), "nested transactions are not supported")

	require.NoError(t, tx.Licenses().CreateLicense(ctx, NewLicense("K1", "p1")))
	require.NoError(t, tx.Commit())
	require.Error(t, tx.Commit())
	require.Error(t, tx.Rollback())

	_, err = s.Licenses().GetLicense(ctx, "K1", "p1")
	require.NoError(t, err)
}

// testNoLostUpdates runs concurrent read-modify-write transactions on one
// record. Every increment must survive.
func testNoLostUpdates(t *testing.T, s store.Store) {
	ctx := context.Background()
	l := NewLicense("K1", "p1")
	l.Token = "0"
	require.NoError(t, s.Licenses().CreateLicense(ctx, l))

	const workers = 8
	const perWorker = 10

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				err := s.WithTx(ctx, func(tx store.Tx) error {
					cur, err := tx.Licenses().GetLicense(ctx, "K1", "p1")
					if err != nil {
						return err
					}
					n, err := strconv.Atoi(cur.Token)
					if err != nil {
						return fmt.Errorf("token %q: %w", cur.Token, err)
					}
					cur.Token = strconv.Itoa(n + 1)
					return tx.Licenses().UpdateLicense(ctx, cur)
				})
				if err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.Licenses().GetLicense(ctx, "K1", "p1")
	require.NoError(t, err)
	require.Equal(t, strconv.Itoa(workers*perWorker), got.Token)
}
