package cli

import (
	"bytes"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/slurm-web/console/internal/mockgateway"
	"github.com/slurm-web/console/pkg/dashboard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runSlurmweb(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()

	os.Args = append([]string{"slurmweb"}, args...)

	s, err := NewSlurmweb()
	require.NoError(t, err)

	var stdout, stderr bytes.Buffer

	s.Stdin = strings.NewReader(stdin)
	s.Stdout = &stdout
	s.Stderr = &stderr

	err = s.Main()

	return stdout.String(), stderr.String(), err
}

func newTestGateway(t *testing.T) string {
	t.Helper()

	server := httptest.NewServer(mockgateway.New(mockgateway.Config{}))
	t.Cleanup(server.Close)

	return server.URL
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "slurmweb.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestReadConfig(t *testing.T) {
	configPath := writeConfig(t, `
---
gateway:
  url: https://gateway:5011
  cache_ttl: 2m
  tls_config:
    ca_file: ca.crt
storage:
  path: state.db
`)

	config, err := readConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, "https://gateway:5011", config.Gateway.URL)
	assert.Equal(t, 2*time.Minute, time.Duration(config.Gateway.CacheTTL))
	assert.Equal(t, filepath.Join(filepath.Dir(configPath), "ca.crt"), config.Gateway.HTTPClientConfig.TLSConfig.CAFile)
	assert.Equal(t, filepath.Join(filepath.Dir(configPath), "state.db"), config.Storage.Path)

	// Defaults apply without gateway section
	config, err = readConfig(writeConfig(t, "storage:\n  path: /var/lib/slurmweb/state.db\n"))
	require.NoError(t, err)
	assert.Zero(t, config.Gateway.CacheTTL)
	assert.True(t, config.Gateway.HTTPClientConfig.FollowRedirects)
	assert.Equal(t, "/var/lib/slurmweb/state.db", config.Storage.Path)

	_, err = readConfig(filepath.Join(t.TempDir(), "missing.yml"))
	require.ErrorIs(t, err, ErrConfigNotFound)
}

func TestMissingGatewayURL(t *testing.T) {
	configPath := writeConfig(t, "storage:\n  path: ''\n")

	_, _, err := runSlurmweb(t, "", "--config.file", configPath, "--storage.path=", "clusters")
	require.ErrorIs(t, err, ErrMissingGatewayURL)
}

func TestAuthenticationRequired(t *testing.T) {
	url := newTestGateway(t)
	configPath := writeConfig(t, "gateway:\n  url: "+url+"\n")

	_, _, err := runSlurmweb(t, "", "--config.file", configPath, "--storage.path=", "jobs", "foo")
	require.ErrorIs(t, err, dashboard.ErrAuthenticationRequired)
	assert.Contains(t, err.Error(), "slurmweb login")
}

func TestJobsShare(t *testing.T) {
	configPath := writeConfig(t, "gateway:\n  url: http://localhost:5011\n")

	stdout, _, err := runSlurmweb(
		t, "", "--config.file", configPath, "--storage.path=",
		"jobs", "foo", "--state", "running,pending", "--user", "alice", "--page", "2", "--share",
	)
	require.NoError(t, err)
	assert.Equal(t, "page=2&states=running%2Cpending&users=alice\n", stdout)

	stdout, _, err = runSlurmweb(t, "", "--config.file", configPath, "--storage.path=", "jobs", "foo", "--share")
	require.NoError(t, err)
	assert.Equal(t, "\n", stdout)

	_, _, err = runSlurmweb(
		t, "", "--config.file", configPath, "--storage.path=",
		"jobs", "foo", "--query", "page=0", "--share",
	)
	require.Error(t, err)
}

func TestLoginFailure(t *testing.T) {
	url := newTestGateway(t)

	stdout, stderr, err := runSlurmweb(t, "alice\nwrong\n", "--gateway.url", url, "--storage.path=", "login")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid credentials")
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "Login: Password: ")
	assert.Contains(t, stderr, "ERROR: Authentication failed")

	_, _, err = runSlurmweb(t, "\n", "--gateway.url", url, "--storage.path=", "login", "--user", "alice")
	require.ErrorIs(t, err, ErrMissingCredentials)
}

func TestPromptCredentials(t *testing.T) {
	var prompt bytes.Buffer

	user, password, err := promptCredentials(strings.NewReader("bob\r\nsecret"), &prompt, "")
	require.NoError(t, err)
	assert.Equal(t, "bob", user)
	assert.Equal(t, "secret", password)
	assert.Equal(t, "Login: Password: ", prompt.String())

	_, _, err = promptCredentials(strings.NewReader(""), &prompt, "bob")
	require.Error(t, err)
}

func TestMemory(t *testing.T) {
	assert.Equal(t, "256GiB", memory(256<<30))
	assert.Equal(t, "1500MiB", memory(1500<<20))
	assert.Equal(t, "4TiB", memory(4<<40))
	assert.Equal(t, "1000B", memory(1000))
	assert.Equal(t, "0B", memory(0))
	assert.Equal(t, "-", joinOrDash(nil))
}
