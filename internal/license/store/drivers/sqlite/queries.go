package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx, so the same queries run
// inside and outside a transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db DBTX
}

// licenseRow mirrors the licenses table. Instants are stored as RFC 3339
// text in UTC so they round-trip with nanosecond precision.
type licenseRow struct {
	ID             string
	LicenseKey     string
	PlayerID       string
	Token          string
	RefreshToken   string
	ExpirationDate string
	CreatedAt      string
	UpdatedAt      string
}

const licenseColumns = `id, license_key, player_id, token, refresh_token, expiration_date, created_at, updated_at`

const getLicense = `SELECT ` + licenseColumns + `
FROM licenses
WHERE license_key = ? AND player_id = ?
ORDER BY seq
LIMIT 1`

const getLicenseByRefreshToken = `SELECT ` + licenseColumns + `
FROM licenses
WHERE refresh_token = ?
ORDER BY seq
LIMIT 1`

const getPlayerLicenseByRefreshToken = `SELECT ` + licenseColumns + `
FROM licenses
WHERE refresh_token = ? AND player_id = ?
ORDER BY seq
LIMIT 1`

// instr(..) = 1 is a prefix test that needs no LIKE escaping.
const findPlayerLicenseByKeyPrefix = `SELECT ` + licenseColumns + `
FROM licenses
WHERE player_id = ? AND instr(license_key, ?) = 1
ORDER BY seq
LIMIT 1`

const listLicenses = `SELECT ` + licenseColumns + `
FROM licenses
ORDER BY seq`

const createLicense = `INSERT INTO licenses (` + licenseColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

const updateLicense = `UPDATE licenses
SET license_key = ?, player_id = ?, token = ?, refresh_token = ?,
    expiration_date = ?, created_at = ?, updated_at = ?
WHERE id = ?`

const deleteLicense = `DELETE FROM licenses WHERE id = ?`

func scanLicense(row interface{ Scan(...any) error }) (licenseRow, error) {
	var r licenseRow
	err := row.Scan(
		&r.ID,
		&r.LicenseKey,
		&r.PlayerID,
		&r.Token,
		&r.RefreshToken,
		&r.ExpirationDate,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	return r, err
}

func (q *queries) one(ctx context.Context, query string, args ...any) (licenseRow, error) {
	return scanLicense(q.db.QueryRowContext(ctx, query, args...))
}

func (q *queries) GetLicense(ctx context.Context, licenseKey, playerID string) (licenseRow, error) {
	return q.one(ctx, getLicense, licenseKey, playerID)
}

func (q *queries) GetLicenseByRefreshToken(ctx context.Context, refreshToken string) (licenseRow, error) {
	return q.one(ctx, getLicenseByRefreshToken, refreshToken)
}

func (q *queries) GetPlayerLicenseByRefreshToken(ctx context.Context, refreshToken, playerID string) (licenseRow, error) {
	return q.one(ctx, getPlayerLicenseByRefreshToken, refreshToken, playerID)
}

func (q *queries) FindPlayerLicenseByKeyPrefix(ctx context.Context, playerID, prefix string) (licenseRow, error) {
	return q.one(ctx, findPlayerLicenseByKeyPrefix, playerID, prefix)
}

func (q *queries) ListLicenses(ctx context.Context) ([]licenseRow, error) {
	rows, err := q.db.QueryContext(ctx, listLicenses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []licenseRow
	for rows.Next() {
		r, err := scanLicense(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

func (q *queries) CreateLicense(ctx context.Context, r licenseRow) error {
	_, err := q.db.ExecContext(ctx, createLicense,
		r.ID,
		r.LicenseKey,
		r.PlayerID,
		r.Token,
		r.RefreshToken,
		r.ExpirationDate,
		r.CreatedAt,
		r.UpdatedAt,
	)
	return err
}

// UpdateLicense reports how many rows matched the id.
func (q *queries) UpdateLicense(ctx context.Context, r licenseRow) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateLicense,
		r.LicenseKey,
		r.PlayerID,
		r.Token,
		r.RefreshToken,
		r.ExpirationDate,
		r.CreatedAt,
		r.UpdatedAt,
		r.ID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *queries) DeleteLicense(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteLicense, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(column, s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite store: column %s: %w", column, err)
	}
	return t, nil
}
