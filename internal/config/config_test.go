package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultRunID, cfg.RunID)
	assert.Equal(t, 20, cfg.API.CallsPerPeriod)
	assert.Equal(t, time.Second, cfg.API.Period)
	assert.Equal(t, 60*time.Second, cfg.API.Timeout)
	assert.Len(t, cfg.Indicators.Vectors, 18)
	assert.Equal(t, 500, cfg.Indicators.LatestN)
}

func TestDefaultConfig_DoesNotAliasKeyVectors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Indicators.Vectors[0] = 1
	assert.Equal(t, int64(41881485), KeyVectors[0])
}

func TestLoadFromFile_OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "statcan.yaml")
	content := `
run_id: nightly
api:
  period: 2s
indicators:
  vectors: [3, 1, 2]
  latest_n: 12
sink:
  backend: sqlite
  dsn: file:out.db
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "nightly", cfg.RunID)
	assert.Equal(t, 2*time.Second, cfg.API.Period)
	assert.Equal(t, 20, cfg.API.CallsPerPeriod, "untouched keys keep defaults")
	assert.Equal(t, []int64{3, 1, 2}, cfg.Indicators.Vectors)
	assert.Equal(t, 12, cfg.Indicators.LatestN)
	assert.Equal(t, "sqlite", cfg.Sink.Backend)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFile_Missing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	cfg, err := Load("", env(map[string]string{
		"RUN_ID":              "gha-42",
		"STATCAN_RAW_BACKEND": "pebble",
		"STATCAN_RAW_DIR":     "/tmp/raw",
		"STATCAN_VECTORS":     "v41881485, 1558",
		"STATCAN_CATALOG":     "file,nats",
		"STATCAN_NATS_URL":    "nats://localhost:4222",
	}))
	require.NoError(t, err)
	assert.Equal(t, "gha-42", cfg.Run().ID)
	assert.Equal(t, "pebble", cfg.Raw.Backend)
	assert.Equal(t, "/tmp/raw", cfg.Raw.Dir)
	assert.Equal(t, []int64{41881485, 1558}, cfg.Indicators.Vectors)
	assert.Equal(t, []string{"file", "nats"}, cfg.Catalog.Backends)
	require.NoError(t, cfg.Validate())
}

func TestLoad_BadVectors(t *testing.T) {
	_, err := Load("", env(map[string]string{"STATCAN_VECTORS": "1,abc"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "abc")
}

func TestRun_DefaultsID(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RunID = ""
	run := cfg.Run()
	assert.Equal(t, DefaultRunID, run.ID)
	assert.False(t, run.StartedAt.IsZero())
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := DefaultConfig()
	cfg.API.BaseURL = "not a url"
	cfg.Indicators.Vectors = []int64{5, 5}
	cfg.Raw.Backend = "s3"
	cfg.Sink.Backend = "postgres"
	cfg.Catalog.Backends = []string{"kafka", "carrier-pigeon"}

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		"api.base_url",
		"duplicate vector id 5",
		"raw.s3.bucket",
		"sink.dsn is required for the postgres backend",
		"catalog kafka",
		`unknown backend "carrier-pigeon"`,
	} {
		assert.Contains(t, msg, want)
	}
}

func TestValidate_SQLCatalogNeedsSQLSink(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Catalog.Backends = []string{"sql"}
	require.Error(t, cfg.Validate())

	cfg.Sink.Backend = "sqlite"
	require.NoError(t, cfg.Validate())
}

func TestCatalogKafkaBootstrap_FallsBackToSink(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sink.KafkaBootstrap = "broker:9092"
	assert.Equal(t, "broker:9092", cfg.CatalogKafkaBootstrap())
	cfg.Catalog.KafkaBootstrap = "other:9092"
	assert.Equal(t, "other:9092", cfg.CatalogKafkaBootstrap())
}
