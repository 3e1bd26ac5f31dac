package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultFile(t *testing.T) {
	t.Setenv(EnvRPCURL, "")
	t.Setenv(EnvRPCToken, "")
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, DefaultRPCEndpoint, cfg.RPCEndpoint)
	require.Equal(t, DefaultMaxAttempts, cfg.Retry.MaxAttempts)
	require.Equal(t, 3*time.Second, cfg.RetryPolicy().Interval)

	_, err = os.Stat(path)
	require.NoError(t, err)

	again, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg, again)
}

func TestLoadParsesFile(t *testing.T) {
	t.Setenv(EnvRPCURL, "")
	t.Setenv(EnvRPCToken, "")
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `RPCEndpoint = "https://gw.example.org/rpc"
AuthToken = "file-token"
KeystorePath = "/keys/wallet.keystore"
Treasurer = true
DataDir = "/var/lib/vocwallet"

[retry]
MaxAttempts = 8
IntervalMillis = 250

[rate_limit]
RPS = 4.5
Burst = 2

[log]
Service = "wallet-test"
Env = "ci"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "https://gw.example.org/rpc", cfg.RPCEndpoint)
	require.Equal(t, "file-token", cfg.AuthToken)
	require.Equal(t, "/keys/wallet.keystore", cfg.KeystorePath)
	require.True(t, cfg.Treasurer)
	require.Equal(t, "/var/lib/vocwallet", cfg.DataDir)
	require.Equal(t, 8, cfg.RetryPolicy().MaxAttempts)
	require.Equal(t, 250*time.Millisecond, cfg.RetryPolicy().Interval)
	require.Equal(t, 4.5, cfg.RateLimit.RPS)
	require.Equal(t, 2, cfg.RateLimit.Burst)
	require.Equal(t, "wallet-test", cfg.Log.Service)
	require.Equal(t, "ci", cfg.Log.Env)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`RPCEndpoint = "http://file/rpc"
AuthToken = "file-token"
`), 0o600))
	t.Setenv(EnvRPCURL, "http://env/rpc")
	t.Setenv(EnvRPCToken, "env-token")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "http://env/rpc", cfg.RPCEndpoint)
	require.Equal(t, "env-token", cfg.AuthToken)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv(EnvRPCURL, "")
	t.Setenv(EnvRPCToken, "")
	cases := map[string]string{
		"negative attempts": "[retry]\nMaxAttempts = -1\n",
		"negative interval": "[retry]\nIntervalMillis = -5\n",
		"negative rps":      "[rate_limit]\nRPS = -1.0\n",
		"unknown key":       "Bogus = 1\n",
		"malformed":         "RPCEndpoint = \n",
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}

func TestLoadWithoutPathUsesDefaults(t *testing.T) {
	t.Setenv(EnvRPCURL, "")
	t.Setenv(EnvRPCToken, "")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}
