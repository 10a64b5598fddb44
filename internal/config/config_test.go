package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleConfig = `{
	"bitcoin": {"network": "regtest"},
	"key_manager": {"seed": "00112233", "derivation_path": "m/0'"},
	"storage": {"backend": "bbolt", "path": "protocols.db"},
	"fees": {"default_fee_rate": 2.5, "default_safety_margin": 1.1}
}`

// chdirToFixture writes name under a fresh config/ directory inside a
// temp dir and chdirs there for the duration of the test, restoring the
// original working directory on cleanup.
func chdirToFixture(t *testing.T, name, contents string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, configDir), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, configDir, name), []byte(contents), 0644))

	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(cwd) })
}

func TestLoadEnvParsesKnownFields(t *testing.T) {
	chdirToFixture(t, "test.json", sampleConfig)

	cfg, err := LoadEnv("test")
	require.NoError(t, err)
	require.Equal(t, "regtest", cfg.Bitcoin.Network)
	require.Equal(t, "m/0'", cfg.KeyManager.DerivationPath)
	require.Equal(t, "bbolt", cfg.Storage.Backend)
	require.Equal(t, 2.5, cfg.Fees.DefaultFeeRate)
}

func TestLoadEnvRejectsUnknownFields(t *testing.T) {
	chdirToFixture(t, "test.json", `{"bitcoin": {"network": "regtest"}, "unexpected_field": true}`)

	_, err := LoadEnv("test")
	require.Error(t, err)
}

func TestLoadEnvMissingFileFails(t *testing.T) {
	chdirToFixture(t, "test.json", sampleConfig)

	_, err := LoadEnv("production")
	require.Error(t, err)
}

func TestLoadFallsBackToDevelopmentWhenEnvUnset(t *testing.T) {
	chdirToFixture(t, "development.json", sampleConfig)
	t.Setenv(envVarName, "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "regtest", cfg.Bitcoin.Network)
}
