package cli

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storefrontApp "github.com/felixgeelhaar/billingsim/internal/storefront/application"
	"github.com/felixgeelhaar/billingsim/pkg/observability"
)

func runHealth(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var output strings.Builder
	healthCmd.SetContext(context.Background())
	healthCmd.SetOut(&output)
	err := healthCmd.RunE(healthCmd, args)
	return output.String(), err
}

func fixedCheck(status observability.HealthStatus, msg string) observability.HealthChecker {
	return func(context.Context) observability.HealthCheckResult {
		return observability.HealthCheckResult{Status: status, Message: msg}
	}
}

func TestHealthCmd_NoApp(t *testing.T) {
	SetApp(nil)
	_, err := runHealth(t)
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestHealthCmd_Degraded(t *testing.T) {
	a, _ := newTestApp(t, storefrontApp.ModeApprove)
	a.Health = observability.NewHealthRegistry()
	a.Health.Register("store", fixedCheck(observability.HealthStatusHealthy, "store reachable"))
	a.Health.Register("billing_client", fixedCheck(observability.HealthStatusDegraded, "billing client DISCONNECTED"))

	out, err := runHealth(t)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "billing_client"))
	assert.Contains(t, lines[0], "degraded")
	assert.True(t, strings.HasPrefix(lines[1], "store"))
	assert.Equal(t, "overall: degraded", lines[2])
}

func TestHealthCmd_UnhealthyFails(t *testing.T) {
	a, _ := newTestApp(t, storefrontApp.ModeApprove)
	a.Health = observability.NewHealthRegistry()
	a.Health.Register("store", fixedCheck(observability.HealthStatusUnhealthy, "store check failed: closed"))

	out, err := runHealth(t)
	assert.Error(t, err)
	assert.Contains(t, out, "overall: unhealthy")
}

func TestHealthCmd_Connect(t *testing.T) {
	a, sim := newTestApp(t, storefrontApp.ModeApprove)
	a.Health = observability.NewHealthRegistry()
	a.Health.Register("billing_client", func(context.Context) observability.HealthCheckResult {
		if sim.Client.IsReady() {
			return observability.HealthCheckResult{Status: observability.HealthStatusHealthy}
		}
		return observability.HealthCheckResult{Status: observability.HealthStatusDegraded}
	})

	require.NoError(t, healthCmd.Flags().Set("connect", "true"))
	t.Cleanup(func() { healthConnect = false })

	require.Eventually(t, func() bool {
		out, err := runHealth(t)
		return err == nil && strings.Contains(out, "overall: healthy")
	}, 2*time.Second, 20*time.Millisecond)
}
