package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/flashfs/internal/fileservice"
)

// maxBody bounds request bodies; flash volumes are small.
const maxBody = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	svc *fileservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *fileservice.Service) *Handler {
	return &Handler{svc: svc}
}

// volumePath extracts the volume path from the wildcard part of the URL.
// Supports encoded slashes from OpenAPI clients (e.g. logs%2Fboot.txt).
// The result is always absolute; the root is "/".
func volumePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		decoded = raw
	}
	return "/" + decoded
}

// filePath is volumePath that rejects the root.
func filePath(w http.ResponseWriter, r *http.Request) (string, bool) {
	p := volumePath(r)
	if p == "/" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return "", false
	}
	return p, true
}

func etag(sum string) string { return `"` + sum + `"` }

// ReadFile handles GET /files/*.
//
//	@Summary		Read a file
//	@Tags			files
//	@Produce		octet-stream
//	@Param			path	path		string	true	"File path"
//	@Success		200		{file}		binary
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files/{path} [get]
func (h *Handler) ReadFile(w http.ResponseWriter, r *http.Request) {
	path, ok := filePath(w, r)
	if !ok {
		return
	}
	f, err := h.svc.Read(r.Context(), path)
	if err != nil {
		writeError(w, "read file", path, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(f.Size, 10))
	w.Header().Set("ETag", etag(f.Checksum))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(f.Content)
}

// SaveFile handles PUT /files/*. The raw body replaces the file content.
//
//	@Summary		Save a file atomically
//	@Tags			files
//	@Accept			octet-stream
//	@Produce		json
//	@Param			path		path		string	true	"File path"
//	@Param			If-Match	header		string	false	"SHA-256 checksum of the content being replaced"
//	@Success		200			{object}	FileInfo
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files/{path} [put]
func (h *Handler) SaveFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	path, ok := filePath(w, r)
	if !ok {
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}

	// Strip surrounding quotes if present (standard ETag format).
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	info, err := h.svc.Save(r.Context(), path, data, ifMatch)
	if err != nil {
		writeError(w, "save file", path, err)
		return
	}
	w.Header().Set("ETag", etag(info.Checksum))
	writeJSON(w, http.StatusOK, info)
}

// AppendFile handles POST /files/*?append=1.
//
//	@Summary		Append to a file
//	@Tags			files
//	@Accept			octet-stream
//	@Produce		json
//	@Param			path	path		string	true	"File path"
//	@Param			append	query		int		true	"Must be 1"
//	@Success		200		{object}	FileInfo
//	@Security		BearerAuth
//	@Router			/files/{path} [post]
func (h *Handler) AppendFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	path, ok := filePath(w, r)
	if !ok {
		return
	}
	if r.URL.Query().Get("append") != "1" {
		writeJSON(w, http.StatusBadRequest, errorBody("append=1 is required"))
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}
	info, err := h.svc.Append(r.Context(), path, data)
	if err != nil {
		writeError(w, "append file", path, err)
		return
	}
	w.Header().Set("ETag", etag(info.Checksum))
	writeJSON(w, http.StatusOK, info)
}

// RemoveFile handles DELETE /files/*.
//
//	@Summary		Delete a file
//	@Tags			files
//	@Param			path	path	string	true	"File path"
//	@Success		204		"File deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files/{path} [delete]
func (h *Handler) RemoveFile(w http.ResponseWriter, r *http.Request) {
	path, ok := filePath(w, r)
	if !ok {
		return
	}
	if err := h.svc.Remove(r.Context(), path); err != nil {
		writeError(w, "remove file", path, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

func (h *Handler) decodePaths(w http.ResponseWriter, r *http.Request) (PathsRequest, bool) {
	var req PathsRequest
	if !decode(w, r, &req) {
		return req, false
	}
	if req.From == "" || req.To == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("from and to are required"))
		return req, false
	}
	return req, true
}

// Copy handles POST /ops/copy.
//
//	@Summary		Copy a file
//	@Tags			ops
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PathsRequest	true	"Source and destination"
//	@Success		200		{object}	FileInfo
//	@Security		BearerAuth
//	@Router			/ops/copy [post]
func (h *Handler) Copy(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePaths(w, r)
	if !ok {
		return
	}
	info, err := h.svc.Copy(r.Context(), req.From, req.To)
	if err != nil {
		writeError(w, "copy", req.From, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// Move handles POST /ops/move.
//
//	@Summary		Move a file, replacing the destination
//	@Tags			ops
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PathsRequest	true	"Source and destination"
//	@Success		200		{object}	FileInfo
//	@Security		BearerAuth
//	@Router			/ops/move [post]
func (h *Handler) Move(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodePaths(w, r)
	if !ok {
		return
	}
	info, err := h.svc.Move(r.Context(), req.From, req.To)
	if err != nil {
		writeError(w, "move", req.From, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// Truncate handles POST /ops/truncate.
//
//	@Summary		Truncate a file
//	@Tags			ops
//	@Accept			json
//	@Produce		json
//	@Param			body	body		TruncateRequest	true	"Path and new size"
//	@Success		200		{object}	FileInfo
//	@Security		BearerAuth
//	@Router			/ops/truncate [post]
func (h *Handler) Truncate(w http.ResponseWriter, r *http.Request) {
	var req TruncateRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	info, err := h.svc.Truncate(r.Context(), req.Path, req.Size)
	if err != nil {
		writeError(w, "truncate", req.Path, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// Touch handles POST /ops/touch.
//
//	@Summary		Create a file if missing
//	@Tags			ops
//	@Accept			json
//	@Produce		json
//	@Param			body	body		TouchRequest	true	"Path"
//	@Success		200		{object}	FileInfo
//	@Security		BearerAuth
//	@Router			/ops/touch [post]
func (h *Handler) Touch(w http.ResponseWriter, r *http.Request) {
	var req TouchRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	info, err := h.svc.Touch(r.Context(), req.Path)
	if err != nil {
		writeError(w, "touch", req.Path, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// Mkdir handles POST /dirs/*.
//
//	@Summary		Create a directory
//	@Tags			dirs
//	@Param			path	path	string	true	"Directory path"
//	@Success		201		"Directory created"
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/dirs/{path} [post]
func (h *Handler) Mkdir(w http.ResponseWriter, r *http.Request) {
	path, ok := filePath(w, r)
	if !ok {
		return
	}
	if err := h.svc.Mkdir(r.Context(), path); err != nil {
		writeError(w, "mkdir", path, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// Rmdir handles DELETE /dirs/*.
//
//	@Summary		Remove an empty directory
//	@Tags			dirs
//	@Param			path	path	string	true	"Directory path"
//	@Success		204		"Directory removed"
//	@Security		BearerAuth
//	@Router			/dirs/{path} [delete]
func (h *Handler) Rmdir(w http.ResponseWriter, r *http.Request) {
	path, ok := filePath(w, r)
	if !ok {
		return
	}
	if err := h.svc.Rmdir(r.Context(), path); err != nil {
		writeError(w, "rmdir", path, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// List handles GET /ls/*.
//
//	@Summary		List a directory
//	@Tags			dirs
//	@Produce		json
//	@Param			path	path		string	false	"Directory path"
//	@Success		200		{object}	ListResponse
//	@Security		BearerAuth
//	@Router			/ls/{path} [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	path := volumePath(r)
	entries, err := h.svc.List(r.Context(), path)
	if err != nil {
		writeError(w, "list", path, err)
		return
	}
	writeJSON(w, http.StatusOK, ListResponse{Path: path, Entries: entries})
}

// Tree handles GET /tree.
//
//	@Summary		List a directory recursively
//	@Tags			dirs
//	@Produce		json
//	@Param			path	query		string	false	"Root directory"	default(/)
//	@Param			depth	query		int		false	"Maximum depth"	default(5)
//	@Success		200		{object}	ListResponse
//	@Security		BearerAuth
//	@Router			/tree [get]
func (h *Handler) Tree(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	path := q.Get("path")
	if path == "" {
		path = "/"
	}
	depth, _ := strconv.Atoi(q.Get("depth"))
	entries, err := h.svc.Tree(r.Context(), path, depth)
	if err != nil {
		writeError(w, "tree", path, err)
		return
	}
	writeJSON(w, http.StatusOK, ListResponse{Path: path, Entries: entries})
}

// Space handles GET /space.
//
//	@Summary		Volume capacity
//	@Tags			volume
//	@Produce		json
//	@Success		200	{object}	SpaceResponse
//	@Security		BearerAuth
//	@Router			/space [get]
func (h *Handler) Space(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Space(r.Context()))
}

// Verify handles GET /verify.
//
//	@Summary		Compare the volume with the integrity catalog
//	@Tags			volume
//	@Produce		json
//	@Success		200	{object}	VerifyResponse
//	@Security		BearerAuth
//	@Router			/verify [get]
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	rep, err := h.svc.Verify(r.Context())
	if err != nil {
		writeError(w, "verify", "/", err)
		return
	}
	writeJSON(w, http.StatusOK, VerifyResponse{Clean: rep.Clean(), Report: rep})
}
