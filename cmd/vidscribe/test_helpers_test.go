package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vidscribe/internal/config"
	"vidscribe/internal/daemon"
	"vidscribe/internal/ipc"
	"vidscribe/internal/logging"
	"vidscribe/internal/supervisor"
	"vidscribe/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	daemon     *daemon.Daemon
	hub        *logging.StreamHub
	socketPath string
	configPath string
}

// setupCLITestEnv writes a config file for cfg and serves a live daemon on
// its socket.
func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	cfg.Paths.APIBind = ""
	store := testsupport.MustOpenLedger(t, cfg)
	logger := logging.NewNop()
	hub := logging.NewStreamHub(256)
	sup := supervisor.New(cfg, supervisor.WithLedger(store), supervisor.WithLogger(logger))

	d, err := daemon.New(cfg, sup, store, logger, hub)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		cancel()
		t.Fatalf("daemon.Start: %v", err)
	}

	srv, err := ipc.NewServer(ctx, cfg.SocketPath(), d, logger)
	if err != nil {
		cancel()
		d.Close()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI daemon test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
	})

	return &cliTestEnv{
		cfg:        cfg,
		daemon:     d,
		hub:        hub,
		socketPath: cfg.SocketPath(),
		configPath: configPath,
	}
}

// writeConfigOnly writes a config file for a test that runs without a daemon.
func writeConfigOnly(t *testing.T, opts ...testsupport.ConfigOption) (*config.Config, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)
	return cfg, configPath
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if socket != "" {
		flags = append(flags, "--socket", socket)
	}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	var b strings.Builder
	fmt.Fprintf(&b, "[paths]\nstate_dir = %q\nscratch_dir = %q\nlog_dir = %q\napi_bind = %q\n\n",
		cfg.Paths.StateDir, cfg.Paths.ScratchDir, cfg.Paths.LogDir, cfg.Paths.APIBind)
	writeWorkerSection(&b, "extractor", cfg.Extractor)
	writeWorkerSection(&b, "transcriber", cfg.Transcriber)
	fmt.Fprintf(&b, "[jobs]\npersistence_required = %t\n", cfg.Jobs.PersistenceRequired)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func writeWorkerSection(b *strings.Builder, name string, w config.Worker) {
	quoted := make([]string, 0, len(w.Args))
	for _, arg := range w.Args {
		quoted = append(quoted, fmt.Sprintf("%q", arg))
	}
	fmt.Fprintf(b, "[%s]\ncommand = %q\nargs = [%s]\ntimeout_seconds = %d\n\n",
		name, w.Command, strings.Join(quoted, ", "), w.TimeoutSeconds)
}

func sourceVideo(t *testing.T, cfg *config.Config) string {
	t.Helper()
	path := filepath.Join(testsupport.BaseDir(cfg), "media", "lecture.mp4")
	testsupport.WriteFile(t, path, 512)
	return path
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
