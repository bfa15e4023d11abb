package deps

import (
	"os"
	"path/filepath"
	"testing"
)

func writeStub(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := writeStub(t, binDir, "present", "exit 0\n")
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Blank", Command: "  "},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Path != present {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary to be unavailable with detail, got %#v", results[1])
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
	if results[2].Detail != "command not configured" {
		t.Fatalf("expected unconfigured detail, got %q", results[2].Detail)
	}
}

func TestCheckBinariesResolvesFromPath(t *testing.T) {
	binDir := t.TempDir()
	stub := writeStub(t, binDir, "fake-whisper", "exit 0\n")
	t.Setenv("PATH", binDir)

	results := CheckBinaries([]Requirement{{Name: "Transcriber", Command: "fake-whisper"}})
	if !results[0].Available {
		t.Fatalf("expected PATH lookup to succeed, got %q", results[0].Detail)
	}
	if results[0].Path != stub {
		t.Fatalf("expected resolved path %q, got %q", stub, results[0].Path)
	}
}

func TestProbeVersionReturnsFirstLine(t *testing.T) {
	stub := writeStub(t, t.TempDir(), "ffmpeg", "echo\necho 'ffmpeg version 7.1 Copyright'\necho 'built with gcc'\n")
	results := CheckBinaries([]Requirement{{Name: "FFmpeg", Command: stub, VersionFlag: "-version"}})
	if results[0].Version != "ffmpeg version 7.1 Copyright" {
		t.Fatalf("unexpected version %q", results[0].Version)
	}
}

func TestProbeVersionIgnoresFailures(t *testing.T) {
	if got := ProbeVersion(filepath.Join(t.TempDir(), "absent"), "--version"); got != "" {
		t.Fatalf("expected empty version for missing binary, got %q", got)
	}
}

func TestMissingSkipsOptional(t *testing.T) {
	statuses := []Status{
		{Name: "a", Available: true},
		{Name: "b", Optional: true},
		{Name: "c"},
	}
	missing := Missing(statuses)
	if len(missing) != 1 || missing[0].Name != "c" {
		t.Fatalf("unexpected missing set %#v", missing)
	}
}
