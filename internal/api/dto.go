package api

import (
	"github.com/starford/flashfs/internal/catalog"
	"github.com/starford/flashfs/internal/fileops"
	"github.com/starford/flashfs/internal/fileservice"
	"github.com/starford/flashfs/internal/volume"
)

// PathsRequest is the request body for copy and move.
type PathsRequest struct {
	From string `json:"from" example:"/cfg.json" validate:"required"`
	To   string `json:"to" example:"/cfg.bak" validate:"required"`
}

// TruncateRequest is the request body for truncate.
type TruncateRequest struct {
	Path string `json:"path" example:"/log.txt" validate:"required"`
	Size int64  `json:"size" example:"128"`
}

// TouchRequest is the request body for touch.
type TouchRequest struct {
	Path string `json:"path" example:"/marker" validate:"required"`
}

// FileInfo describes a file after a mutation (aliased from the service layer).
type FileInfo = fileservice.FileInfo

// Entry is one listing item (aliased from the engine).
type Entry = fileops.Entry

// ListResponse wraps directory listings and trees.
type ListResponse struct {
	Path    string  `json:"path" example:"/" validate:"required"`
	Entries []Entry `json:"entries" validate:"required"`
}

// SpaceResponse is the volume capacity snapshot.
type SpaceResponse = volume.Space

// VerifyResponse is the catalog comparison result.
type VerifyResponse struct {
	Clean bool `json:"clean"`
	catalog.Report
}
