package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalConfig = `
database:
  host: localhost
  user: hub
  password: hub
chains:
  - id: 1
    name: alpha
  - id: 2
    name: beta
protocols:
  - protocol: guardian
    security_level: 9
    chains: [1, 2]
    trusted_remotes:
      "1": "remote-guardian-1"
      "2": "remote-guardian-2"
  - protocol: messagebus
    chains: [1, 2]
oracle:
  expected_supply: "1000000"
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "memory", cfg.Ledger.Backend)
	require.Equal(t, time.Hour, cfg.RateLimit.WindowDuration)
	require.Equal(t, 3, cfg.Oracle.RequiredSignatures)
	require.Equal(t, int64(10000), cfg.RateLimit.Tiers["standard"])

	// Struct-tag defaults reach per-entry protocol fields.
	require.Len(t, cfg.Protocols, 2)
	require.Equal(t, 9, cfg.Protocols[0].SecurityLevel)
	require.Equal(t, 5, cfg.Protocols[1].SecurityLevel)
	require.Equal(t, "0.1", cfg.Protocols[1].BaseFee)
	require.True(t, cfg.Protocols[1].IsEnabled())
	require.Equal(t, "remote-guardian-1", cfg.Protocols[0].TrustedRemotes["1"])
}

func TestLoadKeepsExplicitDisable(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
database:
  host: localhost
chains:
  - id: 1
    name: alpha
protocols:
  - protocol: guardian
    chains: [1]
  - protocol: messagebus
    enabled: false
    chains: [1]
oracle:
  expected_supply: "1000000"
`))
	require.NoError(t, err)

	// The defaulting pass must not overwrite an explicit enabled: false.
	require.True(t, cfg.Protocols[0].IsEnabled())
	require.False(t, cfg.Protocols[1].IsEnabled())
}

func TestLoadRejectsMissingSections(t *testing.T) {
	_, err := Load(writeConfig(t, `
database:
  host: localhost
protocols:
  - protocol: guardian
oracle:
  expected_supply: "1"
`))
	require.ErrorContains(t, err, "at least one chain")

	_, err = Load(writeConfig(t, `
database:
  host: localhost
chains:
  - id: 1
protocols:
  - protocol: guardian
ledger:
  backend: bogus
oracle:
  expected_supply: "1"
`))
	require.ErrorContains(t, err, "ledger.backend")
}

func TestRoutingMatrix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matrix.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
chains:
  - id: 1
    protocols: [guardian, messagebus]
  - id: 2
    protocols: [guardian]
`), 0o600))

	matrix, err := LoadRoutingMatrix(path)
	require.NoError(t, err)
	require.Len(t, matrix.Chains, 2)
	require.Equal(t, []string{"guardian", "messagebus"}, matrix.Chains[0].Protocols)
}

func TestDefaultRoutingMatrixFollowsConfigOrder(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	matrix := DefaultRoutingMatrix(cfg)
	require.Len(t, matrix.Chains, 2)
	require.Equal(t, uint64(1), matrix.Chains[0].ID)
	require.Equal(t, []string{"guardian", "messagebus"}, matrix.Chains[0].Protocols)
}
