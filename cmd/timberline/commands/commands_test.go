package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/talgya/timberline/internal/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configPath, logLevel = "", "info"
	benchTicks, benchWorkers = 10000, 0

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func smallConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "small.yaml")
	body := `
seed: 3
agents: 4
forest:
  radius: 14
  spacing: 2
  jitter: 0.3
  threshold: 0.4
  frequency: 0.15
  clearing: 3
agent:
  chop_duration: 1
  build_duration: 2
storage:
  path: ""
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRoot_ShowsHelp(t *testing.T) {
	out, err := execute(t)
	require.NoError(t, err)
	assert.Contains(t, out, "Usage:")
	assert.Contains(t, out, "bench")
}

func TestConfig_PrintsEffectiveYAML(t *testing.T) {
	out, err := execute(t, "config", "--config", smallConfig(t))
	require.NoError(t, err)

	var cfg config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, int64(3), cfg.Seed)
	assert.Equal(t, 4, cfg.Agents)
	assert.Equal(t, int64(3), cfg.Forest.Seed, "forest inherits the run seed")
	assert.Equal(t, config.Default().Agent.MoveSpeed, cfg.Agent.MoveSpeed)
}

func TestConfig_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("clock:\n  delta: -1\n"), 0o644))

	_, err := execute(t, "config", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clock.delta")
}

func TestBench(t *testing.T) {
	out, err := execute(t, "bench", "--config", smallConfig(t), "--ticks", "3000", "--workers", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "ticks:       3,000")
	assert.Contains(t, out, "agents:      4")
	assert.Contains(t, out, "Idle (No trees)")
	assert.Contains(t, out, "structures:")
}

func TestSetupLogging(t *testing.T) {
	assert.NoError(t, setupLogging("debug"))
	assert.NoError(t, setupLogging("WARN"))
	assert.Error(t, setupLogging("loud"))
	require.NoError(t, setupLogging("info"))
}
