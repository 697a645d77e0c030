package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	s, err := LoadFrom(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":8080", s.Server.Addr)
	assert.Equal(t, 30*time.Minute, s.Session.SessionTimeout)
	assert.Equal(t, 30*time.Second, s.Session.SweepInterval)
	assert.Equal(t, 300*time.Second, s.Session.DeepValidationInterval)
	assert.Equal(t, time.Second, s.Gateway.HeartbeatDebounce)
	assert.Equal(t, 10, s.Pipeline.MinSentenceChars)
	assert.Equal(t, 200, s.Pipeline.MaxSentenceChars)
	assert.True(t, s.Session.AutoCleanup)
	assert.Equal(t, "openai", s.LLM.Provider)
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`
server:
  addr: ":9090"
session:
  session_timeout: 5m
pipeline:
  min_sentence_chars: 4
  max_sentence_chars: 40
auth:
  api_keys: ["k1", "k2"]
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config_dev.yaml"), yaml, 0o600))
	t.Setenv("XARVIS_SERVER_ADDR", ":7070")

	s, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, ":7070", s.Server.Addr)
	assert.Equal(t, 5*time.Minute, s.Session.SessionTimeout)
	assert.Equal(t, 4, s.Pipeline.MinSentenceChars)
	assert.Equal(t, []string{"k1", "k2"}, s.Auth.APIKeys)
}

func TestValidateRejectsBadSentenceBounds(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte("pipeline:\n  min_sentence_chars: 50\n  max_sentence_chars: 10\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config_dev.yaml"), yaml, 0o600))

	_, err := LoadFrom(dir)
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	assert.Empty(t, DBConfig{}.DSN())
	d := DBConfig{Host: "db", Port: 3306, Username: "u", Password: "p", Name: "x"}
	assert.Equal(t, "u:p@tcp(db:3306)/x?charset=utf8mb4&parseTime=True&loc=Local", d.DSN())
}

func TestDotEnvSeedsEnvironment(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("XARVIS_LLM_PROVIDER=anthropic\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("XARVIS_LLM_PROVIDER") })

	s, err := LoadFrom(dir)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", s.LLM.Provider)
	assert.Equal(t, int64(1024), s.LLM.Anthropic.MaxTokens)
	assert.Equal(t, "gateway.sessions", s.Events.SubjectPrefix)
}

func TestWatchReportsRewrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config_dev.yaml")
	require.NoError(t, os.WriteFile(path, []byte("debug: false\n"), 0o600))

	changed := make(chan *Settings, 4)
	s, err := Watch(func(next *Settings, err error) {
		if err == nil {
			changed <- next
		}
	}, dir)
	require.NoError(t, err)
	assert.False(t, s.Debug)

	require.NoError(t, os.WriteFile(path, []byte("debug: true\n"), 0o600))
	deadline := time.After(3 * time.Second)
	for {
		select {
		case next := <-changed:
			if next.Debug {
				return
			}
		case <-deadline:
			t.Fatal("config rewrite was never reported")
		}
	}
}

func TestWatchWithoutFile(t *testing.T) {
	s, err := Watch(func(*Settings, error) { t.Error("unexpected reload") }, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, ":8080", s.Server.Addr)
}
