package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"tonearm/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if CheckDirectoryAccess("test", f).Passed {
		t.Fatal("expected failure for file path")
	}
	if CheckReadableDirectory("test", f).Passed {
		t.Fatal("expected readable check to fail for file path")
	}
}

func acoustidServer(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("client") == "" {
			t.Errorf("expected client key in query")
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCheckAcoustID_InvalidFingerprintMeansKeyAccepted(t *testing.T) {
	srv := acoustidServer(t, `{"status":"error","error":{"code":3,"message":"invalid fingerprint"}}`, http.StatusBadRequest)
	result := CheckAcoustID(context.Background(), srv.URL, "good-key")
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckAcoustID_BadKey(t *testing.T) {
	srv := acoustidServer(t, `{"status":"error","error":{"code":4,"message":"invalid API key"}}`, http.StatusBadRequest)
	result := CheckAcoustID(context.Background(), srv.URL, "bad-key")
	if result.Passed {
		t.Fatal("expected failure for bad key")
	}
	if result.Detail != "auth failed (invalid api key)" {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func TestCheckAcoustID_Unreachable(t *testing.T) {
	srv := acoustidServer(t, "", http.StatusBadGateway)
	if CheckAcoustID(context.Background(), srv.URL, "key").Passed {
		t.Fatal("expected failure for upstream error")
	}
}

func TestCheckAcoustID_MissingKey(t *testing.T) {
	if CheckAcoustID(context.Background(), "http://localhost", "").Passed {
		t.Fatal("expected failure for missing key")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil, false); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_MinimalConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.CacheDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Paths.LibraryDir = t.TempDir()
	cfg.AcoustID.APIKey = "key"

	results := RunAll(context.Background(), &cfg, false)
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %#v", failed)
	}
}

func TestRunAll_IncludesAcoustIDWhenNetworkRequested(t *testing.T) {
	srv := acoustidServer(t, `{"status":"ok","results":[]}`, http.StatusOK)
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.CacheDir = t.TempDir()
	cfg.Paths.LogDir = filepath.Join(t.TempDir(), "missing")
	cfg.Paths.LibraryDir = ""
	cfg.AcoustID.APIKey = "test"
	cfg.AcoustID.BaseURL = srv.URL

	results := RunAll(context.Background(), &cfg, true)
	found := false
	for _, r := range results {
		if r.Name == "AcoustID" {
			found = true
			if !r.Passed {
				t.Errorf("AcoustID check failed: %s", r.Detail)
			}
		}
	}
	if !found {
		t.Fatal("expected AcoustID check in results")
	}
	if failed := Failed(results); len(failed) != 1 || failed[0].Name != "Log directory" {
		t.Fatalf("expected only the log directory to fail, got %#v", failed)
	}
}
