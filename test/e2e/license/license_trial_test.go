//go:build integration

package license_test

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/licensor/pkg/licensesdk"
	"github.com/stretchr/testify/require"
)

func TestTrialOncePerPlayer(t *testing.T) {
	client := setupLicenseContainer(t)
	ctx := t.Context()

	trial, err := client.GetTrial(ctx, "player-1")
	require.NoError(t, err)
	require.True(t, trial.Success)
	require.True(t, strings.HasPrefix(trial.TrialKey, "TRIAL-"))
	require.True(t, trial.ExpirationDate.After(time.Now().AddDate(9, 11, 0)))

	valid, err := client.ValidateLicense(ctx, trial.TrialKey, "player-1")
	require.NoError(t, err)
	require.True(t, valid.Valid)

	again, err := client.GetTrial(ctx, "player-1")
	require.NoError(t, err)
	require.False(t, again.Success)
	require.Equal(t, licensesdk.MsgTrialUsed, again.Message)

	other, err := client.GetTrial(ctx, "player-2")
	require.NoError(t, err)
	require.True(t, other.Success)
}

// TestTrialRateLimit runs against the default limits: five trial requests
// per minute per client and player.
func TestTrialRateLimit(t *testing.T) {
	client := setupLicenseContainerWithDefaultRateLimits(t)
	ctx := t.Context()

	for i := range 5 {
		_, err := client.GetTrial(ctx, "player-1")
		require.NoError(t, err, "request %d", i+1)
	}

	_, err := client.GetTrial(ctx, "player-1")
	apiErr := assertAPIError(t, err, http.StatusTooManyRequests)
	require.Equal(t, licensesdk.ErrorCodeRateLimitExceeded, apiErr.Code)

	// A different player is a different key.
	trial, err := client.GetTrial(ctx, "player-2")
	require.NoError(t, err)
	require.True(t, trial.Success)
}
