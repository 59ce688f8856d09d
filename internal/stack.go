package internal

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/starford/flashfs/internal/catalog"
	"github.com/starford/flashfs/internal/driver"
	"github.com/starford/flashfs/internal/driver/flash"
	"github.com/starford/flashfs/internal/driver/hostfs"
	"github.com/starford/flashfs/internal/fileops"
	"github.com/starford/flashfs/internal/fileservice"
	"github.com/starford/flashfs/internal/volume"
)

// NewLogger builds the structured JSON logger used by every component.
func NewLogger(cfg *Config, w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
}

// Stack is a mounted volume with the engine, catalog and service built on it.
type Stack struct {
	Volume  *volume.Volume
	Engine  *fileops.Engine
	Catalog *catalog.DB
	Service *fileservice.Service
	// Logger is the logger the stack was opened with.
	Logger *slog.Logger

	hostRoot string
}

// HostRoot returns the host directory behind a host-backed volume, or "" for
// the flash simulator.
func (s *Stack) HostRoot() string { return s.hostRoot }

// Close unmounts the volume and closes the catalog.
func (s *Stack) Close() error {
	s.Volume.Unmount()
	return s.Catalog.Close()
}

func newDriver(cfg VolumeConfig) (driver.Driver, string, error) {
	switch cfg.Backend {
	case BackendFlash:
		return flash.New(
			flash.WithCapacity(cfg.CapacityBytes),
			flash.WithBlockSize(cfg.BlockSize),
		), "", nil
	case BackendHost:
		root, err := filepath.Abs(cfg.Path)
		if err != nil {
			return nil, "", fmt.Errorf("volume path: %w", err)
		}
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, "", fmt.Errorf("create volume dir: %w", err)
		}
		return hostfs.NewDir(root, hostfs.WithCapacity(cfg.CapacityBytes)), root, nil
	default:
		return nil, "", fmt.Errorf("unknown volume backend %q", cfg.Backend)
	}
}

// OpenStack mounts the configured volume and opens the catalog. Extra
// service options (an event publisher) are passed through.
func OpenStack(cfg *Config, logger *slog.Logger, opts ...fileservice.Option) (*Stack, error) {
	drv, root, err := newDriver(cfg.Volume)
	if err != nil {
		return nil, err
	}

	vol := volume.New(drv, volume.WithLogger(logger))
	if err := vol.Mount(cfg.Volume.AutoFormat); err != nil {
		return nil, fmt.Errorf("mount volume: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Catalog.Path), 0o755); err != nil {
		vol.Unmount()
		return nil, fmt.Errorf("create catalog dir: %w", err)
	}
	db, err := catalog.Open(cfg.Catalog.Path)
	if err != nil {
		vol.Unmount()
		return nil, fmt.Errorf("init catalog: %w", err)
	}

	eng := fileops.New(vol,
		fileops.WithLogger(logger),
		fileops.WithCopyChunk(cfg.Engine.CopyChunk),
		fileops.WithReadChunk(cfg.Engine.ReadChunk),
		fileops.WithTempPrefix(cfg.Engine.TempPrefix),
	)
	opts = append([]fileservice.Option{fileservice.WithLogger(logger)}, opts...)
	svc := fileservice.New(eng, db, opts...)

	logger.Info("Volume mounted",
		slog.String("backend", cfg.Volume.Backend),
		slog.String("root", root),
		slog.Int64("total_bytes", vol.TotalBytes()),
		slog.Int64("used_bytes", vol.UsedBytes()))

	return &Stack{
		Volume:   vol,
		Engine:   eng,
		Catalog:  db,
		Service:  svc,
		Logger:   logger,
		hostRoot: root,
	}, nil
}

// errNoConfig is returned by the run modes when WithConfig was not given.
var errNoConfig = errors.New("config is required")
