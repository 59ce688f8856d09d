package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testConfig(t *testing.T, backend string) *Config {
	t.Helper()
	dir := t.TempDir()
	cfg := NewDefaultConfig()
	cfg.Volume.Backend = backend
	cfg.Volume.Path = filepath.Join(dir, "vol")
	cfg.Volume.CapacityBytes = 64 << 10
	cfg.Volume.BlockSize = 512
	cfg.Catalog.Path = filepath.Join(dir, "catalog.db")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}
	return cfg
}

func TestNewLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	cfg := NewDefaultConfig()
	cfg.App.LogLevel = slog.LevelWarn
	logger := NewLogger(cfg, &buf)

	logger.Info("dropped")
	logger.Warn("kept", slog.String("path", "/a"))

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("log line is not a single JSON object: %q", buf.String())
	}
	if rec["msg"] != "kept" || rec["path"] != "/a" {
		t.Errorf("record = %v", rec)
	}
}

func TestOpenStackFlash(t *testing.T) {
	cfg := testConfig(t, BackendFlash)
	st, err := OpenStack(cfg, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("OpenStack: %v", err)
	}
	defer st.Close()

	if st.HostRoot() != "" {
		t.Errorf("flash backend has host root %q", st.HostRoot())
	}
	if st.Volume.TotalBytes() != 64<<10 {
		t.Errorf("total = %d", st.Volume.TotalBytes())
	}
	ctx := context.Background()
	if _, err := st.Service.Save(ctx, "/a.txt", []byte("hi"), ""); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := st.Catalog.Get("/a.txt"); !ok {
		t.Error("save not catalogued")
	}
	if st.Volume.SupportsReplace() {
		t.Error("flash backend should not support replace")
	}
}

func TestOpenStackHost(t *testing.T) {
	cfg := testConfig(t, BackendHost)
	st, err := OpenStack(cfg, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("OpenStack: %v", err)
	}
	defer st.Close()

	if !st.Volume.SupportsReplace() {
		t.Error("host backend should support replace")
	}
	if _, err := st.Service.Save(context.Background(), "/a.txt", []byte("hi"), ""); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(st.HostRoot(), "a.txt"))
	if err != nil {
		t.Fatalf("file not on host: %v", err)
	}
	if string(data) != "hi" {
		t.Errorf("host content = %q", data)
	}
}

func TestOpenStackKeepsLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := testConfig(t, BackendFlash)
	st, err := OpenStack(cfg, NewLogger(cfg, &buf))
	if err != nil {
		t.Fatalf("OpenStack: %v", err)
	}
	defer st.Close()

	buf.Reset()
	st.Logger.Info("catalog synced")
	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("stack logger did not write JSON to the configured sink: %q", buf.String())
	}
	if rec["msg"] != "catalog synced" {
		t.Errorf("msg = %v", rec["msg"])
	}
}

func TestRunRequiresConfig(t *testing.T) {
	if err := Run(context.Background()); err == nil {
		t.Fatal("Run without config should fail")
	}
}
