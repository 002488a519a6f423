package main

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"websearch-mcp/internal/infra/config"
)

func TestConfigPath(t *testing.T) {
	t.Setenv("WEBSEARCH_CONFIG", "")

	assert.Equal(t, "websearch.yaml", configPath(nil))
	assert.Equal(t, "/etc/ws.yaml", configPath([]string{"--config", "/etc/ws.yaml"}))
	assert.Equal(t, "alt.yaml", configPath([]string{"--config=alt.yaml"}))
	assert.Equal(t, "websearch.yaml", configPath([]string{"--config"}))

	t.Setenv("WEBSEARCH_CONFIG", "env.yaml")
	assert.Equal(t, "env.yaml", configPath(nil))
	assert.Equal(t, "flag.yaml", configPath([]string{"--config", "flag.yaml"}))
}

func TestBuildRegistry(t *testing.T) {
	for _, breaker := range []bool{true, false} {
		cfg := config.Defaults()
		cfg.Breaker.Enabled = breaker

		reg, err := buildRegistry(cfg, slog.New(slog.DiscardHandler))
		require.NoError(t, err)

		var names []string
		for _, tl := range reg.List() {
			names = append(names, tl.Name())
		}
		assert.Equal(t, []string{"fetch_content", "web_search"}, names)
	}
}
