package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aussiebroadwan/licensor/internal/license/domain"
	"github.com/aussiebroadwan/licensor/internal/license/store"
	"github.com/aussiebroadwan/licensor/internal/license/store/drivers/file"
	"github.com/aussiebroadwan/licensor/internal/license/store/drivers/memory"
	"github.com/aussiebroadwan/licensor/internal/license/store/drivers/redis"
	"github.com/aussiebroadwan/licensor/internal/license/store/drivers/sqlite"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func driverFactories() map[string]func(t *testing.T) store.Store {
	return map[string]func(t *testing.T) store.Store{
		"memory": func(t *testing.T) store.Store {
			return memory.NewStore()
		},
		"file": func(t *testing.T) store.Store {
			s, err := file.NewStore(context.Background(), filepath.Join(t.TempDir(), "licenses.json"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"sqlite": func(t *testing.T) store.Store {
			s, err := sqlite.NewStore(filepath.Join(t.TempDir(), "licenses.db"))
			require.NoError(t, err)
			require.NoError(t, s.ApplyMigrations())
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"redis": func(t *testing.T) store.Store {
			mr := miniredis.RunT(t)
			s := redis.NewStore(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}), "")
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

// TestLifecycleOnEveryDriver runs one license from creation to deletion
// against each store driver.
func TestLifecycleOnEveryDriver(t *testing.T) {
	for name, factory := range driverFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t, factory(t))

			issued, err := h.licenses.CreateLicense(ctx, "p1", "K1", exp2030)
			require.NoError(t, err)

			got, err := h.licenses.ValidateLicense(ctx, "K1", "p1")
			require.NoError(t, err)
			require.Equal(t, issued.Token, got.Token)
			require.True(t, exp2030.Equal(got.ExpirationDate))

			h.clock.Set(exp2030.Add(time.Hour))
			res, err := h.licenses.ValidateToken(ctx, issued.Token, issued.RefreshToken, "p1")
			require.NoError(t, err)
			require.True(t, res.Expired)

			_, err = h.licenses.ValidateToken(ctx, issued.Token, "wrong", "p1")
			require.ErrorIs(t, err, ErrInvalidRefresh)

			token, err := h.licenses.RefreshToken(ctx, issued.RefreshToken)
			require.NoError(t, err)
			require.NotEmpty(t, token)

			newExp := exp2030.AddDate(10, 0, 0)
			upd, err := h.licenses.UpdateLicense(ctx, "p1", "K1", domain.LicenseUpdate{NewExpirationDate: &newExp})
			require.NoError(t, err)
			_, err = h.licenses.RefreshToken(ctx, issued.RefreshToken)
			require.ErrorIs(t, err, ErrInvalidRefresh)
			_, err = h.licenses.RefreshToken(ctx, upd.RefreshToken)
			require.NoError(t, err)

			_, err = h.trials.IssueTrial(ctx, "p1")
			require.NoError(t, err)
			_, err = h.trials.IssueTrial(ctx, "p1")
			require.ErrorIs(t, err, ErrTrialUsed)

			deleted, err := h.licenses.DeleteLicense(ctx, "K1", "p1")
			require.NoError(t, err)
			require.True(t, deleted)
			deleted, err = h.licenses.DeleteLicense(ctx, "K1", "p1")
			require.NoError(t, err)
			require.False(t, deleted)

			all, err := h.licenses.ListLicenses(ctx)
			require.NoError(t, err)
			require.Len(t, all, 1)
		})
	}
}

func TestTrialExclusivityOnEveryDriver(t *testing.T) {
	for name, factory := range driverFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t, factory(t))

			var (
				wg sync.WaitGroup
				mu sync.Mutex
				ok int
			)
			for range 8 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := h.trials.IssueTrial(ctx, "p1")
					if err != nil && !errors.Is(err, ErrTrialUsed) {
						t.Errorf("issue trial: %v", err)
						return
					}
					if err == nil {
						mu.Lock()
						ok++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			require.Equal(t, 1, ok)
		})
	}
}
