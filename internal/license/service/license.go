package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/licensor/internal/license/domain"
	"github.com/aussiebroadwan/licensor/internal/license/store"
	"github.com/aussiebroadwan/licensor/pkg/cryptox"
	"github.com/aussiebroadwan/licensor/pkg/idx"
	"github.com/aussiebroadwan/licensor/pkg/jwtx"
	"github.com/aussiebroadwan/licensor/pkg/slogx"
)

// LicenseService is the license lifecycle engine. Every operation that
// writes runs in a single store transaction, so concurrent requests on the
// same record are serialized by the store.
type LicenseService struct {
	Store  store.Store
	Signer TokenSigner

	// NewRefreshToken defaults to cryptox.NewRefreshToken.
	NewRefreshToken func() string

	// Info is echoed on successful token validation.
	Info domain.ServerInfo

	// AllowDuplicates lets create and update produce several records for
	// one (licenseKey, playerId) pair, as early deployments did.
	AllowDuplicates bool

	Metrics Recorder

	// Now defaults to time.Now.
	Now func() time.Time
}

func (s *LicenseService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *LicenseService) refreshToken() string {
	if s.NewRefreshToken != nil {
		return s.NewRefreshToken()
	}
	return cryptox.NewRefreshToken()
}

func (s *LicenseService) observe(op string, start time.Time, err error) {
	if s.Metrics != nil {
		s.Metrics.Observe(op, Outcome(err), time.Since(start))
	}
}

// expiry truncates to whole seconds, the precision a token can carry, so the
// stored expiration always equals the expiry embedded in the token.
func expiry(t time.Time) time.Time {
	return t.Truncate(time.Second).UTC()
}

// CreateLicense issues a fresh token and refresh token for the pair and
// stores the record.
func (s *LicenseService) CreateLicense(
	ctx context.Context,
	playerID, licenseKey string,
	expirationDate time.Time,
) (issued domain.IssuedLicense, err error) {
	defer func(start time.Time) { s.observe(OpCreate, start, err) }(time.Now())

	if playerID == "" || licenseKey == "" || expirationDate.IsZero() {
		return domain.IssuedLicense{}, ErrInvalidInput
	}

	var l domain.License
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if !s.AllowDuplicates {
			if err := s.ensureAbsent(ctx, tx, licenseKey, playerID); err != nil {
				return err
			}
		}

		var err error
		l, err = s.insert(ctx, tx, playerID, licenseKey, expirationDate)
		return err
	})
	if err != nil {
		return domain.IssuedLicense{}, err
	}

	slogx.FromContext(ctx).Info("license created",
		"license_id", l.ID,
		"player_id", playerID,
		"expires_at", l.ExpirationDate,
	)
	return l.Issued(), nil
}

// insert is the creation path shared with trial issuance.
func (s *LicenseService) insert(
	ctx context.Context,
	tx store.Tx,
	playerID, licenseKey string,
	expirationDate time.Time,
) (domain.License, error) {
	now := s.now()
	exp := expiry(expirationDate)

	token, err := s.Signer.Issue(playerID, licenseKey, exp)
	if err != nil {
		return domain.License{}, fmt.Errorf("issue token: %w", err)
	}

	l := domain.License{
		ID:             idx.NewAt(now).String(),
		LicenseKey:     licenseKey,
		PlayerID:       playerID,
		Token:          token,
		RefreshToken:   s.refreshToken(),
		ExpirationDate: exp,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := tx.Licenses().CreateLicense(ctx, l); err != nil {
		return domain.License{}, fmt.Errorf("create license: %w", err)
	}
	return l, nil
}

func (s *LicenseService) ensureAbsent(ctx context.Context, tx store.Tx, licenseKey, playerID string) error {
	_, err := tx.Licenses().GetLicense(ctx, licenseKey, playerID)
	switch {
	case err == nil:
		return ErrLicenseExists
	case errors.Is(err, store.ErrNotFound):
		return nil
	default:
		return fmt.Errorf("get license: %w", err)
	}
}

// ValidateLicense reports the credentials currently stored for the pair. It
// does not look at whether the stored token has expired.
func (s *LicenseService) ValidateLicense(
	ctx context.Context,
	licenseKey, playerID string,
) (l domain.License, err error) {
	defer func(start time.Time) { s.observe(OpValidateLicense, start, err) }(time.Now())

	if playerID == "" || licenseKey == "" {
		return domain.License{}, ErrInvalidInput
	}

	l, err = s.Store.Licenses().GetLicense(ctx, licenseKey, playerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.License{}, ErrLicenseNotFound
		}
		return domain.License{}, fmt.Errorf("get license: %w", err)
	}
	return l, nil
}

// ValidateToken checks token. If it verifies, the result is valid and not
// expired. Otherwise, for whatever reason it failed, the record holding
// refreshToken for playerID gets a new token for its unchanged expiration
// date and the result is valid and expired. Without such a record the
// result is ErrInvalidRefresh.
func (s *LicenseService) ValidateToken(
	ctx context.Context,
	token, refreshToken, playerID string,
) (res domain.TokenValidation, err error) {
	defer func(start time.Time) { s.observe(OpValidateToken, start, err) }(time.Now())

	if playerID == "" {
		return domain.TokenValidation{}, ErrInvalidInput
	}

	log := slogx.FromContext(ctx)
	res = domain.TokenValidation{PlayerID: playerID, Info: s.Info}

	_, verr := s.Signer.Verify(token)
	if verr == nil {
		return res, nil
	}

	if jwtx.IsUntrusted(verr) {
		log.Info("token rejected, trying refresh credential",
			"player_id", playerID,
			"reason", verr.Error(),
		)
	} else {
		log.Debug("token expired, trying refresh credential", "player_id", playerID)
	}

	if refreshToken == "" {
		return domain.TokenValidation{}, ErrInvalidRefresh
	}

	var l domain.License
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		l, err = tx.Licenses().GetPlayerLicenseByRefreshToken(ctx, refreshToken, playerID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidRefresh
			}
			return fmt.Errorf("get license: %w", err)
		}
		l, err = s.reissue(ctx, tx, l)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrInvalidRefresh) {
			log.Info("refresh credential not recognised",
				"player_id", playerID,
				"refresh_fp", cryptox.FingerprintToken(refreshToken),
			)
		}
		return domain.TokenValidation{}, err
	}

	res.Expired = true
	res.NewToken = l.Token
	return res, nil
}

// RefreshToken re-issues the token of the record holding refreshToken. The
// expiration date and the refresh token itself are left unchanged.
func (s *LicenseService) RefreshToken(ctx context.Context, refreshToken string) (token string, err error) {
	defer func(start time.Time) { s.observe(OpRefreshToken, start, err) }(time.Now())

	if refreshToken == "" {
		return "", ErrInvalidRefresh
	}

	var l domain.License
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		l, err = tx.Licenses().GetLicenseByRefreshToken(ctx, refreshToken)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidRefresh
			}
			return fmt.Errorf("get license: %w", err)
		}
		l, err = s.reissue(ctx, tx, l)
		return err
	})
	if err != nil {
		return "", err
	}

	slogx.FromContext(ctx).Debug("token refreshed", "license_id", l.ID)
	return l.Token, nil
}

// reissue signs a new token from the record's own fields and stores it.
func (s *LicenseService) reissue(ctx context.Context, tx store.Tx, l domain.License) (domain.License, error) {
	token, err := s.Signer.Issue(l.PlayerID, l.LicenseKey, l.ExpirationDate)
	if err != nil {
		return domain.License{}, fmt.Errorf("issue token: %w", err)
	}

	l.Token = token
	l.UpdatedAt = s.now()
	if err := tx.Licenses().UpdateLicense(ctx, l); err != nil {
		return domain.License{}, fmt.Errorf("update license: %w", err)
	}
	return l, nil
}

// UpdateLicense applies the non-empty parts of upd to the pair's record and
// rotates both the token and the refresh token.
func (s *LicenseService) UpdateLicense(
	ctx context.Context,
	playerID, licenseKey string,
	upd domain.LicenseUpdate,
) (issued domain.IssuedLicense, err error) {
	defer func(start time.Time) { s.observe(OpUpdate, start, err) }(time.Now())

	if playerID == "" || licenseKey == "" {
		return domain.IssuedLicense{}, ErrInvalidInput
	}

	var l domain.License
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		l, err = tx.Licenses().GetLicense(ctx, licenseKey, playerID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrLicenseNotFound
			}
			return fmt.Errorf("get license: %w", err)
		}

		if upd.NewLicenseKey != "" && upd.NewLicenseKey != l.LicenseKey {
			if !s.AllowDuplicates {
				if err := s.ensureAbsent(ctx, tx, upd.NewLicenseKey, playerID); err != nil {
					return err
				}
			}
			l.LicenseKey = upd.NewLicenseKey
		}
		if upd.NewExpirationDate != nil && !upd.NewExpirationDate.IsZero() {
			l.ExpirationDate = expiry(*upd.NewExpirationDate)
		}

		l.Token, err = s.Signer.Issue(l.PlayerID, l.LicenseKey, l.ExpirationDate)
		if err != nil {
			return fmt.Errorf("issue token: %w", err)
		}
		l.RefreshToken = s.refreshToken()
		l.UpdatedAt = s.now()

		if err := tx.Licenses().UpdateLicense(ctx, l); err != nil {
			return fmt.Errorf("update license: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.IssuedLicense{}, err
	}

	slogx.FromContext(ctx).Info("license updated",
		slog.String("license_id", l.ID),
		slog.String("player_id", playerID),
		slog.Time("expires_at", l.ExpirationDate),
	)
	return l.Issued(), nil
}

// DeleteLicense removes the first record for the pair. It reports whether a
// record was removed; a missing pair is not an error.
func (s *LicenseService) DeleteLicense(ctx context.Context, licenseKey, playerID string) (deleted bool, err error) {
	defer func(start time.Time) { s.observe(OpDelete, start, err) }(time.Now())

	if playerID == "" || licenseKey == "" {
		return false, ErrInvalidInput
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		deleted = false
		l, err := tx.Licenses().GetLicense(ctx, licenseKey, playerID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("get license: %w", err)
		}
		if err := tx.Licenses().DeleteLicense(ctx, l.ID); err != nil {
			return fmt.Errorf("delete license: %w", err)
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if deleted {
		slogx.FromContext(ctx).Info("license deleted", "player_id", playerID)
	}
	return deleted, nil
}

// ListLicenses returns every record, credentials included, in insertion order.
func (s *LicenseService) ListLicenses(ctx context.Context) (ls []domain.License, err error) {
	defer func(start time.Time) { s.observe(OpList, start, err) }(time.Now())

	ls, err = s.Store.Licenses().ListLicenses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list licenses: %w", err)
	}
	return ls, nil
}
