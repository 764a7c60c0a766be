//go:build integration

package license_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/aussiebroadwan/licensor/pkg/licensesdk"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

/*
 * Container setup and assertions shared by the license service
 * end-to-end tests.
 */

const (
	testImageName = "licensor-test:latest"

	signingSecret = "e2e-signing-secret-0123456789"
	adminToken    = "e2e-admin-token"
)

// TestMain builds the image once before all tests and removes it after.
func TestMain(m *testing.M) {
	fmt.Fprintf(os.Stdout, "Building License Service Docker image...")

	if err := buildDockerImage(); err != nil {
		fmt.Fprintf(os.Stderr, "\nFailed to build Docker image: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, " done\n")

	exitCode := m.Run()

	fmt.Fprintf(os.Stdout, "Cleaning up License Service Docker image...")
	cleanupDockerImage()
	fmt.Fprintf(os.Stdout, " done\n")

	os.Exit(exitCode)
}

func buildDockerImage() error {
	ctx := context.Background()
	cmd := exec.CommandContext(ctx, "docker", "build",
		"-t", testImageName,
		"-f", "../../../cmd/license/Dockerfile",
		"../../../")
	cmd.Stdout = os.Stdout

	return cmd.Run()
}

func cleanupDockerImage() {
	ctx := context.Background()
	cmd := exec.CommandContext(ctx, "docker", "rmi", "-f", testImageName)
	_ = cmd.Run() // image might not exist
}

// relaxedLimits lifts every profile so ordinary tests never see a 429.
var relaxedLimits = map[string]string{
	"RATELIMIT_TRIAL_REQUESTS":      "1000",
	"RATELIMIT_TRIAL_BURST":         "1000",
	"RATELIMIT_ADMIN_REQUESTS":      "1000",
	"RATELIMIT_ADMIN_BURST":         "1000",
	"RATELIMIT_VALIDATION_REQUESTS": "1000",
	"RATELIMIT_VALIDATION_BURST":    "1000",
}

// setupLicenseContainer starts the service with relaxed rate limits and
// returns an SDK client pointed at it.
func setupLicenseContainer(t *testing.T) *licensesdk.Client {
	t.Helper()
	return startContainer(t, relaxedLimits)
}

// setupLicenseContainerWithDefaultRateLimits keeps the production limits so
// rate limiting itself can be tested.
func setupLicenseContainerWithDefaultRateLimits(t *testing.T) *licensesdk.Client {
	t.Helper()
	return startContainer(t, nil)
}

func startContainer(t *testing.T, extraEnv map[string]string) *licensesdk.Client {
	t.Helper()
	ctx := context.Background()

	env := map[string]string{
		"LICENSE_SIGNING_SECRET": signingSecret,
		"ADMIN_TOKEN":            adminToken,
		"STORE_DRIVER":           "sqlite",
		"DATABASE_FILE":          "/data/license.db",
		"SUPPORT_DEVS":           "e2e team",
		"ANNOUNCEMENT":           "hello from e2e",
		"ENV":                    "test",
		"LOG_LEVEL":              "info",
		"LOG_FORMAT":             "json",
	}
	for k, v := range extraEnv {
		env[k] = v
	}

	req := testcontainers.ContainerRequest{
		Image:        testImageName,
		ExposedPorts: []string{"3000/tcp"},
		Env:          env,
		WaitingFor: wait.ForHTTP("/livez").
			WithPort("3000/tcp").
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	mappedPort, err := container.MappedPort(ctx, "3000")
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	client := licensesdk.NewClient(fmt.Sprintf("http://%s:%s", host, mappedPort.Port()))
	client.AdminToken = adminToken
	return client
}

// assertHealthy verifies a health check response is OK.
func assertHealthy(t *testing.T, health *licensesdk.HealthResponse, err error) {
	t.Helper()
	require.NoError(t, err)
	require.NotNil(t, health)
	require.Equal(t, "ok", health.Status)
}

// assertAPIError checks err is an API error with the given status.
func assertAPIError(t *testing.T, err error, status int) *licensesdk.APIError {
	t.Helper()
	require.Error(t, err)

	var apiErr *licensesdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, status, apiErr.StatusCode, apiErr.Error())
	return apiErr
}
