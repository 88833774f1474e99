package resilience_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tempcast/tempcast/internal/provider/resilience"
)

func TestRegistry_RegisterViaConfig(t *testing.T) {
	registry := resilience.NewRegistry()
	cfg := resilience.DefaultClientConfig("open-meteo")
	cfg.Registry = registry

	client := resilience.NewClient(cfg)
	assert.Equal(t, "open-meteo", client.Name())
	assert.Equal(t, 1, registry.Len())

	health, ok := registry.Health("open-meteo")
	require.True(t, ok)
	assert.Equal(t, gobreaker.StateClosed, health.CircuitState)
	assert.True(t, health.IsHealthy())
	assert.False(t, health.IsDegraded())
	assert.True(t, health.LastSuccessAt.IsZero())
}

func TestRegistry_HealthUnknown(t *testing.T) {
	registry := resilience.NewRegistry()
	_, ok := registry.Health("missing")
	assert.False(t, ok)
	assert.Empty(t, registry.All())
}

func TestRegistry_RecordsSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	registry := resilience.NewRegistry()
	cfg := resilience.DefaultClientConfig("source")
	cfg.Registry = registry
	client := resilience.NewClient(cfg)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, http.NoBody)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	health, ok := registry.Health("source")
	require.True(t, ok)
	assert.False(t, health.LastSuccessAt.IsZero())
	assert.Empty(t, health.LastError)
}

func TestRegistry_AllSorted(t *testing.T) {
	registry := resilience.NewRegistry()
	for _, name := range []string{"b", "a", "c"} {
		cfg := resilience.DefaultClientConfig(name)
		cfg.Registry = registry
		resilience.NewClient(cfg)
	}

	all := registry.All()
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].Name)
	assert.Equal(t, "b", all[1].Name)
	assert.Equal(t, "c", all[2].Name)
}

func TestProviderHealth_States(t *testing.T) {
	assert.True(t, resilience.ProviderHealth{CircuitState: gobreaker.StateClosed}.IsHealthy())
	assert.True(t, resilience.ProviderHealth{CircuitState: gobreaker.StateHalfOpen}.IsDegraded())
	assert.False(t, resilience.ProviderHealth{CircuitState: gobreaker.StateOpen}.IsHealthy())
}
