package main

import (
	"os"
	"path/filepath"
	"testing"

	"tonearm/internal/testsupport"
)

func TestConfigInitWritesSample(t *testing.T) {
	cfg, _ := newCLIConfig(t)
	target := filepath.Join(testsupport.BaseDir(cfg), "nested", "tonearm.toml")
	socket := filepath.Join(testsupport.BaseDir(cfg), "absent.sock")

	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, socket, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration to "+target)
	requireContains(t, out, "ACOUSTID_API_KEY")
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	requireContains(t, string(data), "[acoustid]")

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, socket, ""); err == nil {
		t.Fatal("expected error when config already exists")
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, socket, ""); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg, configPath := newCLIConfig(t)
	socket := filepath.Join(testsupport.BaseDir(cfg), "absent.sock")

	out, _, err := runCLI(t, []string{"config", "validate"}, socket, configPath)
	if err != nil {
		t.Fatalf("config validate: %v\n%s", err, out)
	}
	requireContains(t, out, "Config path: "+configPath)
	requireContains(t, out, "Library directory")
	requireContains(t, out, "Configuration valid")
}

func TestConfigValidateReportsMissingLibrary(t *testing.T) {
	cfg, configPath := newCLIConfig(t)
	if err := os.RemoveAll(cfg.Paths.LibraryDir); err != nil {
		t.Fatalf("remove library: %v", err)
	}
	socket := filepath.Join(testsupport.BaseDir(cfg), "absent.sock")

	out, _, err := runCLI(t, []string{"config", "validate"}, socket, configPath)
	if err == nil {
		t.Fatalf("expected validation failure\n%s", out)
	}
	requireContains(t, err.Error(), "Library directory")
	requireNotContains(t, out, "Configuration valid")
}

func TestConfigValidateRejectsBadValues(t *testing.T) {
	cfg, configPath := newCLIConfig(t)
	cfg.Fingerprint.Backend = "wavelet"
	writeTestConfig(t, configPath, cfg)
	socket := filepath.Join(testsupport.BaseDir(cfg), "absent.sock")

	_, _, err := runCLI(t, []string{"config", "validate"}, socket, configPath)
	if err == nil {
		t.Fatal("expected invalid backend to fail validation")
	}
	requireContains(t, err.Error(), "fingerprint.backend")
}
