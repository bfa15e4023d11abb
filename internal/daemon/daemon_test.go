package daemon_test

import (
	"context"
	"testing"

	"vidscribe/internal/daemon"
	"vidscribe/internal/logging"
	"vidscribe/internal/supervisor"
	"vidscribe/internal/testsupport"
)

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	cfg.Paths.APIBind = ""
	store := testsupport.MustOpenLedger(t, cfg)
	logger := logging.NewNop()

	d, err := daemon.New(cfg, supervisor.New(cfg, supervisor.WithLedger(store)), store, logger, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Stop()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status()
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.LedgerPath != cfg.LedgerPath() || status.LockFilePath != cfg.LockPath() {
		t.Fatalf("unexpected paths in status: %+v", status)
	}

	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	other, err := daemon.New(cfg, supervisor.New(cfg), nil, logger, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := other.Start(ctx); err == nil {
		other.Stop()
		t.Fatal("expected second daemon instance to be rejected by the lock")
	}

	d.Stop()
	if d.Status().Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonRequiresCollaborators(t *testing.T) {
	if _, err := daemon.New(nil, nil, nil, nil, nil); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}

func TestTestNotificationWithoutTopic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, err := daemon.New(cfg, supervisor.New(cfg), nil, logging.NewNop(), nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	sent, message, err := d.TestNotification(context.Background())
	if err != nil || sent {
		t.Fatalf("expected no-op without topic, got sent=%v err=%v", sent, err)
	}
	if message != "ntfy topic not configured" {
		t.Fatalf("unexpected message %q", message)
	}
}
