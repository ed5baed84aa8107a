package main

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"tonearm/internal/ipc"
	"tonearm/internal/testsupport"
)

func TestStatusOffline(t *testing.T) {
	cfg, configPath := newCLIConfig(t)
	socket := filepath.Join(testsupport.BaseDir(cfg), "absent.sock")

	out, _, err := runCLI(t, []string{"status"}, socket, configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "== Daemon ==")
	requireContains(t, out, "Not running")
	requireContains(t, out, "== Dependencies ==")
	requireContains(t, out, "== Configuration ==")
	requireContains(t, out, "AcoustID key")
	requireContains(t, out, "== Jobs ==")
}

func TestStatusWithDaemon(t *testing.T) {
	env := setupCLITestEnv(t)
	path := filepath.Join(env.cfg.Paths.LibraryDir, "queued.flac")
	testsupport.WriteFile(t, path, 64)
	testsupport.NewJob(t, env.store, path)

	out, _, err := runCLI(t, []string{"status", "--json"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var status ipc.StatusResponse
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("decode status: %v\n%s", err, out)
	}
	if status.PID == 0 {
		t.Fatal("expected daemon pid in status")
	}
	if status.JobStats["pending"] != 1 {
		t.Fatalf("expected one pending job, got %v", status.JobStats)
	}

	out, _, err = runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Scheduler stopped")
	requireContains(t, out, "Pending")
}

func TestStopWithoutDaemon(t *testing.T) {
	cfg, configPath := newCLIConfig(t)
	socket := filepath.Join(testsupport.BaseDir(cfg), "absent.sock")

	out, _, err := runCLI(t, []string{"stop"}, socket, configPath)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	requireContains(t, out, "Daemon is not running")
}
