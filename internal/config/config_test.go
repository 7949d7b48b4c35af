package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/parcel/internal/common"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 8*time.Second, cfg.Pipeline.InferenceTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Pipeline.ProposalTTL)
	assert.Equal(t, time.Hour, cfg.Pipeline.Retention)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.SweepInterval)
	assert.Equal(t, 3, cfg.Pipeline.BreakerThreshold)
	assert.InDelta(t, 0.7, cfg.Pipeline.ConfidenceThreshold, 1e-9)
	assert.InDelta(t, 0.5, cfg.Pipeline.PatternConfidence, 1e-9)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.NotContains(t, cfg.Database.Path, "~", "database path should be expanded")
	assert.Equal(t, "127.0.0.1:8420", cfg.Server.Addr)
	assert.False(t, cfg.Server.TLS)
	assert.NotContains(t, cfg.Server.CertDir, "~")
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
database:
  path: /tmp/parcel-test.db
llm:
  provider: ollama
  model: llama3.1
server:
  tls: true
  cert_dir: /tmp/parcel-certs
pipeline:
  proposal_ttl: 2m
  breaker_threshold: 5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/parcel-test.db", cfg.Database.Path)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, 2*time.Minute, cfg.Pipeline.ProposalTTL)
	assert.Equal(t, 5, cfg.Pipeline.BreakerThreshold)
	assert.True(t, cfg.Server.TLS)
	assert.Equal(t, "/tmp/parcel-certs", cfg.Server.CertDir)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key   string
		value any
	}{
		{key: "pipeline.proposal_ttl", value: "0s"},
		{key: "pipeline.breaker_threshold", value: 0},
		{key: "pipeline.confidence_threshold", value: 1.5},
		{key: "pipeline.inference_timeout", value: "-1s"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			v := viper.New()
			v.Set(tt.key, tt.value)
			_, err := Load(v)
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrInvalidConfig)
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("PARCEL_TEST_DIR", "/srv/parcel")

	assert.Equal(t, "", ExpandPath(""))
	assert.Equal(t, home, ExpandPath("~"))
	assert.Equal(t, filepath.Join(home, "data/x.db"), ExpandPath("~/data/x.db"))
	assert.Equal(t, "/srv/parcel/x.db", ExpandPath("$PARCEL_TEST_DIR/x.db"))
}
