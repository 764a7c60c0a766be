package memory

import (
	"context"
	"slices"
	"strings"

	"github.com/aussiebroadwan/licensor/internal/license/domain"
	"github.com/aussiebroadwan/licensor/internal/license/store"
)

// licensesRepo works directly on a Document. It does no locking: callers
// hand it either a transaction's private copy or hold the store lock.
type licensesRepo struct {
	doc *Document
}

// NewLicenses returns a repository over doc. Other document based drivers
// use it to share lookup semantics with this one.
func NewLicenses(doc *Document) store.Licenses {
	return &licensesRepo{doc: doc}
}

func (r *licensesRepo) first(match func(domain.License) bool) (domain.License, error) {
	i := slices.IndexFunc(r.doc.Licenses, match)
	if i < 0 {
		return domain.License{}, store.ErrNotFound
	}
	return r.doc.Licenses[i], nil
}

func (r *licensesRepo) GetLicense(_ context.Context, licenseKey, playerID string) (domain.License, error) {
	return r.first(func(l domain.License) bool {
		return l.Matches(licenseKey, playerID)
	})
}

func (r *licensesRepo) GetLicenseByRefreshToken(_ context.Context, refreshToken string) (domain.License, error) {
	return r.first(func(l domain.License) bool {
		return l.RefreshToken == refreshToken
	})
}

func (r *licensesRepo) GetPlayerLicenseByRefreshToken(
	_ context.Context,
	refreshToken, playerID string,
) (domain.License, error) {
	return r.first(func(l domain.License) bool {
		return l.RefreshToken == refreshToken && l.PlayerID == playerID
	})
}

func (r *licensesRepo) FindPlayerLicenseByKeyPrefix(
	_ context.Context,
	playerID, prefix string,
) (domain.License, error) {
	return r.first(func(l domain.License) bool {
		return l.PlayerID == playerID && strings.HasPrefix(l.LicenseKey, prefix)
	})
}

func (r *licensesRepo) ListLicenses(context.Context) ([]domain.License, error) {
	return slices.Clone(r.doc.Licenses), nil
}

func (r *licensesRepo) CreateLicense(_ context.Context, l domain.License) error {
	if r.indexOf(l.ID) >= 0 {
		return store.ErrAlreadyExists
	}
	r.doc.Licenses = append(r.doc.Licenses, l)
	return nil
}

func (r *licensesRepo) UpdateLicense(_ context.Context, l domain.License) error {
	i := r.indexOf(l.ID)
	if i < 0 {
		return store.ErrNotFound
	}
	r.doc.Licenses[i] = l
	return nil
}

func (r *licensesRepo) DeleteLicense(_ context.Context, id string) error {
	i := r.indexOf(id)
	if i < 0 {
		return store.ErrNotFound
	}
	r.doc.Licenses = slices.Delete(r.doc.Licenses, i, i+1)
	return nil
}

func (r *licensesRepo) indexOf(id string) int {
	return slices.IndexFunc(r.doc.Licenses, func(l domain.License) bool {
		return l.ID == id
	})
}
