package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/hostkit/internal/config"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

// pluginDir lays out one script plugin that depends on a second one, plus
// a package whose script fails.
func pluginDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "base", "plugin.toml"), "id = \"base\"\nversion = \"1.0.0\"\n")
	writeFile(t, filepath.Join(dir, "base", "init.lua"), "\n")
	writeFile(t, filepath.Join(dir, "top", "plugin.yaml"), `
id: top
version: "2.0.0"
dependencies:
  - id: base
    version: "1.0.0"
`)
	writeFile(t, filepath.Join(dir, "top", "init.lua"), "\n")
	writeFile(t, filepath.Join(dir, "bad", "plugin.toml"), "id = \"bad\"\nversion = \"1.0.0\"\n")
	writeFile(t, filepath.Join(dir, "bad", "init.lua"), "error('no good')\n")
	return dir
}

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "hostkit dev")
	assert.Contains(t, out, "commit: unknown")
}

func TestConfigCommand(t *testing.T) {
	t.Setenv("HOSTKIT_PLUGINS_WATCH", "true")
	path := filepath.Join(t.TempDir(), "hostkit.yaml")
	writeFile(t, path, `
log:
  level: warn
plugins:
  dir: /srv/plugins
admin:
  addr: ""
`)

	out, _, err := execute(t, "--config", path, "--log-level", "debug", "config", "--format", "json")
	require.NoError(t, err)

	var cfg config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "/srv/plugins", cfg.Plugins.Dir)
	assert.True(t, cfg.Plugins.Watch)
	assert.Empty(t, cfg.Admin.Addr)
	assert.Equal(t, config.Default().Plugins.DataDir, cfg.Plugins.DataDir)
}

func TestConfigCommandRejectsBadSettings(t *testing.T) {
	_, _, err := execute(t, "--log-level", "chatty", "config")
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalid)

	_, _, err = execute(t, "config", "--format", "ini")
	assert.ErrorIs(t, err, config.ErrUnsupportedFormat)
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.plugin.toml")
	writeFile(t, good, "id = \"good\"\nversion = \"1.2.3\"\nentry = \"good\"\n")
	loose := filepath.Join(dir, "pkg", "plugin.json")
	writeFile(t, loose, `{"id": "loose", "version": "one"}`)

	out, _, err := execute(t, "validate", good, filepath.Dir(loose))
	require.NoError(t, err)
	assert.Contains(t, out, "good.plugin.toml (good@1.2.3)")
	assert.Contains(t, out, "loose@one")
	assert.Contains(t, out, `version "one" is not a semantic version`)
}

func TestValidateCommandFails(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.plugin.yaml")
	writeFile(t, bad, "name: no id\n")

	out, _, err := execute(t, "validate", "--json", bad, filepath.Join(dir, "missing.toml"))
	var ee *exitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 1, ee.code)

	var results []struct {
		Path   string `json:"path"`
		Valid  bool   `json:"valid"`
		Issues []struct {
			Message string `json:"message"`
		} `json:"issues"`
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)
	assert.False(t, results[0].Valid)
	assert.NotEmpty(t, results[0].Issues)
	assert.NotEmpty(t, results[1].Error)
}

func TestValidateNeedsArgs(t *testing.T) {
	_, _, err := execute(t, "validate")
	assert.Error(t, err)
}

func TestListCommand(t *testing.T) {
	t.Setenv("HOSTKIT_DATA_DIR", t.TempDir())
	dir := pluginDir(t)

	out, _, err := execute(t, "--plugins", dir, "--log-level", "error", "list", "--json")
	require.NoError(t, err)

	var l listing
	require.NoError(t, json.Unmarshal([]byte(out), &l))
	ids := make([]string, 0, len(l.Plugins))
	for _, p := range l.Plugins {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"base", "top"}, ids)
	assert.Equal(t, []string{"base@1.0.0"}, l.Plugins[1].Dependencies)
	require.Len(t, l.Skipped, 1)
	assert.Equal(t, "bad", l.Skipped[0].ID)
	assert.Contains(t, l.Skipped[0].Error, "no good")
}

func TestListCommandTable(t *testing.T) {
	t.Setenv("HOSTKIT_DATA_DIR", t.TempDir())
	out, _, err := execute(t, "--plugins", pluginDir(t), "--log-level", "error", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Loaded (2)")
	assert.Contains(t, out, "base@1.0.0")
	assert.Contains(t, out, "Skipped (1)")
	assert.Contains(t, out, "instantiate")
}

func TestListEmptyDirectory(t *testing.T) {
	t.Setenv("HOSTKIT_DATA_DIR", t.TempDir())
	out, _, err := execute(t, "--plugins", t.TempDir(), "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No plugins loaded.")
}

func serveConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Plugins.Dir = pluginDir(t)
	cfg.Plugins.DataDir = t.TempDir()
	cfg.Admin.Addr = ""
	return cfg
}

func TestServeStopsOnCancel(t *testing.T) {
	cfg := serveConfig(t)
	cfg.Admin.Addr = "127.0.0.1:0"
	cfg.Plugins.Watch = true

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg, zerolog.Nop()) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return")
	}
}

func TestServeFailsWhenAdminCannotListen(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := serveConfig(t)
	cfg.Admin.Addr = ln.Addr().String()

	err = serve(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestServeMissingPluginDir(t *testing.T) {
	cfg := serveConfig(t)
	cfg.Plugins.Dir = filepath.Join(t.TempDir(), "nope")
	assert.Error(t, serve(context.Background(), cfg, zerolog.Nop()))
}

func TestRunExitCodes(t *testing.T) {
	assert.Equal(t, 0, run([]string{"version"}))
	assert.Equal(t, 1, run([]string{"no-such-command"}))
}
