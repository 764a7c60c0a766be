package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/licensor/internal/license/domain"
	"github.com/aussiebroadwan/licensor/internal/license/store"
	"github.com/aussiebroadwan/licensor/pkg/cryptox"
	"github.com/aussiebroadwan/licensor/pkg/slogx"
)

// DefaultTrialYears is how long a trial license lasts.
const DefaultTrialYears = 10

// TrialService hands out at most one trial license per player.
type TrialService struct {
	Licenses *LicenseService

	// NewTrialKey defaults to a random key under domain.TrialKeyPrefix. Keys must carry
	// domain.TrialKeyPrefix or the one-per-player check cannot see them.
	NewTrialKey func() string

	// Years defaults to DefaultTrialYears.
	Years int
}

func (s *TrialService) trialKey() string {
	if s.NewTrialKey != nil {
		return s.NewTrialKey()
	}
	return cryptox.NewTrialKey(domain.TrialKeyPrefix)
}

func (s *TrialService) years() int {
	if s.Years > 0 {
		return s.Years
	}
	return DefaultTrialYears
}

// IssueTrial creates a trial license for playerID expiring Years calendar
// years from now. The lookup for an earlier trial and the insert share one
// transaction, so concurrent requests for one player yield a single trial.
func (s *TrialService) IssueTrial(ctx context.Context, playerID string) (issued domain.IssuedLicense, err error) {
	ls := s.Licenses
	defer func(start time.Time) { ls.observe(OpIssueTrial, start, err) }(time.Now())

	if playerID == "" {
		return domain.IssuedLicense{}, ErrInvalidInput
	}

	var l domain.License
	err = ls.Store.WithTx(ctx, func(tx store.Tx) error {
		_, err := tx.Licenses().FindPlayerLicenseByKeyPrefix(ctx, playerID, domain.TrialKeyPrefix)
		switch {
		case err == nil:
			return ErrTrialUsed
		case !errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("find trial: %w", err)
		}

		expires := ls.now().AddDate(s.years(), 0, 0)
		l, err = ls.insert(ctx, tx, playerID, s.trialKey(), expires)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrTrialUsed) {
			slogx.FromContext(ctx).Info("trial refused, already used", "player_id", playerID)
		}
		return domain.IssuedLicense{}, err
	}

	slogx.FromContext(ctx).Info("trial issued",
		"license_id", l.ID,
		"player_id", playerID,
		"expires_at", l.ExpirationDate,
	)
	return l.Issued(), nil
}
