// Package testutil provides shared test helpers for setting up volumes,
// engines and catalogs.
package testutil

import (
	"os"
	"testing"

	"github.com/starford/flashfs/internal/catalog"
	"github.com/starford/flashfs/internal/driver/flash"
	"github.com/starford/flashfs/internal/fileops"
	"github.com/starford/flashfs/internal/volume"
)

// TestVolume creates a mounted volume over a fresh flash device.
func TestVolume(t *testing.T, opts ...flash.Option) (*flash.Device, *volume.Volume) {
	t.Helper()
	dev := flash.New(opts...)
	vol := volume.New(dev)
	if err := vol.Mount(false); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	t.Cleanup(vol.Unmount)
	return dev, vol
}

// TestEngine creates an engine over a mounted flash volume.
func TestEngine(t *testing.T, opts ...fileops.Option) (*flash.Device, *fileops.Engine) {
	t.Helper()
	dev, vol := TestVolume(t)
	return dev, fileops.New(vol, opts...)
}

// TestDB creates a temporary catalog database that is automatically cleaned up.
func TestDB(t *testing.T) *catalog.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "flashfs-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := catalog.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// WriteFile writes content through the engine and fails the test on error.
func WriteFile(t *testing.T, e *fileops.Engine, path, content string) {
	t.Helper()
	if err := e.WriteString(path, content); err != nil {
		t.Fatalf("WriteString(%s): %v", path, err)
	}
}

// ReadFile reads a file through the engine and fails the test on error.
func ReadFile(t *testing.T, e *fileops.Engine, path string) string {
	t.Helper()
	s, err := e.ReadString(path)
	if err != nil {
		t.Fatalf("ReadString(%s): %v", path, err)
	}
	return s
}
