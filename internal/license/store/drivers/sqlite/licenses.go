package sqlite

import (
	"context"

	"github.com/aussiebroadwan/licensor/internal/license/domain"
	"github.com/aussiebroadwan/licensor/internal/license/store"
)

type licensesRepo struct {
	q *queries
}

func (r *licensesRepo) GetLicense(ctx context.Context, licenseKey, playerID string) (domain.License, error) {
	return r.single(r.q.GetLicense(ctx, licenseKey, playerID))
}

func (r *licensesRepo) GetLicenseByRefreshToken(ctx context.Context, refreshToken string) (domain.License, error) {
	return r.single(r.q.GetLicenseByRefreshToken(ctx, refreshToken))
}

func (r *licensesRepo) GetPlayerLicenseByRefreshToken(
	ctx context.Context,
	refreshToken, playerID string,
) (domain.License, error) {
	return r.single(r.q.GetPlayerLicenseByRefreshToken(ctx, refreshToken, playerID))
}

func (r *licensesRepo) FindPlayerLicenseByKeyPrefix(
	ctx context.Context,
	playerID, prefix string,
) (domain.License, error) {
	return r.single(r.q.FindPlayerLicenseByKeyPrefix(ctx, playerID, prefix))
}

func (r *licensesRepo) ListLicenses(ctx context.Context) ([]domain.License, error) {
	rows, err := r.q.ListLicenses(ctx)
	if err != nil {
		return nil, err
	}

	licenses := make([]domain.License, len(rows))
	for i, row := range rows {
		if licenses[i], err = mapLicense(row); err != nil {
			return nil, err
		}
	}
	return licenses, nil
}

func (r *licensesRepo) CreateLicense(ctx context.Context, l domain.License) error {
	return mapConstraint(r.q.CreateLicense(ctx, mapLicenseRow(l)))
}

func (r *licensesRepo) UpdateLicense(ctx context.Context, l domain.License) error {
	n, err := r.q.UpdateLicense(ctx, mapLicenseRow(l))
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *licensesRepo) DeleteLicense(ctx context.Context, id string) error {
	n, err := r.q.DeleteLicense(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *licensesRepo) single(row licenseRow, err error) (domain.License, error) {
	if err != nil {
		return domain.License{}, mapNotFound(err)
	}
	return mapLicense(row)
}
