package httpapi

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"

	"github.com/tonimelisma/onedrive-index/internal/gateway"
	"github.com/tonimelisma/onedrive-index/internal/pathcodec"
)

// PasswordHeader unlocks password-protected folders on /view. The
// "password" query parameter is accepted as well for plain links.
const PasswordHeader = "X-Index-Password"

// multipartOverhead is the slack allowed on top of the file size for form
// boundaries and the other fields.
const multipartOverhead = 64 << 10

type createFolderRequest struct {
	Parent string `json:"parent" validate:"required"`
	Name   string `json:"name" validate:"required,max=255"`
}

type createTextFileRequest struct {
	Parent  string `json:"parent" validate:"required"`
	Name    string `json:"name" validate:"required,max=250"`
	Content string `json:"content"`
}

type editTextFileRequest struct {
	Content string `json:"content"`
}

type lockFolderRequest struct {
	Folder   string `json:"folder" validate:"required"`
	Password string `json:"password" validate:"omitempty,max=128"`
}

type copyRequest struct {
	Source      string `json:"source" validate:"required"`
	Destination string `json:"destination" validate:"required"`
}

type moveRequest struct {
	Source      string `json:"source" validate:"required"`
	Destination string `json:"destination" validate:"required"`
	NewName     string `json:"new_name" validate:"omitempty,max=255"`
}

type pathRequest struct {
	Path string `json:"path" validate:"required"`
}

type deleteTokenResponse struct {
	Token string `json:"token"`
}

// formFile parses a multipart upload bounded by the configured limit and
// returns the "file" part. Failures are written to w.
func (s *Server) formFile(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, bool) {
	limit := s.holder.Config().MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)

	if err := r.ParseMultipartForm(limit); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.writeFailure(w, r, http.StatusRequestEntityTooLarge, codeTooLarge,
				"upload exceeds "+strconv.FormatInt(limit, 10)+" bytes")

			return nil, nil, false
		}

		s.writeFailure(w, r, http.StatusBadRequest, codeBadRequest, "malformed multipart form")

		return nil, nil, false
	}

	file, hdr, err := r.FormFile("file")
	if err != nil {
		s.writeFailure(w, r, http.StatusBadRequest, codeBadRequest, `missing "file" part`)
		return nil, nil, false
	}

	if hdr.Size > limit {
		file.Close()
		s.writeFailure(w, r, http.StatusRequestEntityTooLarge, codeTooLarge,
			"upload exceeds "+strconv.FormatInt(limit, 10)+" bytes")

		return nil, nil, false
	}

	return file, hdr, true
}

func (s *Server) cleanupForm(r *http.Request) {
	if r.MultipartForm == nil {
		return
	}

	if err := r.MultipartForm.RemoveAll(); err != nil {
		s.logger.Warn("removing multipart temp files", slog.String("error", err.Error()))
	}
}

// handleUploadImage accepts an anonymous image upload when image hosting is
// enabled. The content, not the declared type, must sniff as an image.
func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	if !s.holder.Config().ImageHosting.Enabled {
		s.writeFailure(w, r, http.StatusNotFound, codeNotFound, "image hosting is disabled")
		return
	}

	file, hdr, ok := s.formFile(w, r)
	defer s.cleanupForm(r)

	if !ok {
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeFailure(w, r, http.StatusBadRequest, codeBadRequest, "reading upload failed")
		return
	}

	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") || mt.Is("image/svg+xml") {
		s.writeFailure(w, r, http.StatusUnsupportedMediaType, codeUnsupported,
			"not an image: "+mt.String())

		return
	}

	res, err := s.gw.UploadImage(r.Context(), gateway.UploadImageInput{
		Filename: hdr.Filename,
		Content:  bytes.NewReader(data),
		Size:     int64(len(data)),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeOK(w, r, http.StatusCreated, res.Message, res)
}

func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	file, hdr, ok := s.formFile(w, r)
	defer s.cleanupForm(r)

	if !ok {
		return
	}
	defer file.Close()

	res, err := s.gw.UploadFile(r.Context(), gateway.UploadFileInput{
		Folder:   r.FormValue("folder"),
		Filename: hdr.Filename,
		Content:  file,
		Size:     hdr.Size,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeOK(w, r, http.StatusCreated, res.Message, res)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	res, err := s.gw.DeleteItem(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeOK(w, r, http.StatusOK, res.Message, nil)
}

// handleView streams a file after Open has checked folder locks. Once the
// body has started, failures can only be logged.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	// Every locked ancestor may need its own password.
	passwords := r.Header.Values(PasswordHeader)
	passwords = append(passwords, r.URL.Query()["password"]...)

	p, err := viewPath(r)
	if err != nil {
		s.writeError(w, r, &gateway.Error{Op: gateway.OpOpen, Kind: gateway.KindInvalidPath, Message: err.Error(), Err: err})
		return
	}

	item, err := s.gw.Open(r.Context(), p.String(), passwords...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	contentType := item.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")

	if item.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(item.Size, 10))
	}

	if _, err := s.gw.Download(r.Context(), item.ID, w); err != nil {
		s.logger.Warn("view download failed",
			slog.String("item_id", item.ID),
			slog.String("error", err.Error()),
			slog.String("request_id", RequestID(r.Context())),
		)
	}
}

// viewPath decodes the /view/ suffix one segment at a time, so an escaped
// separator stays inside its name instead of splitting it.
func viewPath(r *http.Request) (pathcodec.Path, error) {
	p := pathcodec.Root()

	for _, raw := range strings.Split(strings.TrimPrefix(r.URL.EscapedPath(), "/view/"), "/") {
		if raw == "" {
			continue
		}

		name, err := url.PathUnescape(raw)
		if err != nil {
			return pathcodec.Path{}, fmt.Errorf("%w: %q is not a valid escape", pathcodec.ErrInvalidPath, raw)
		}

		if p, err = p.Join(name); err != nil {
			return pathcodec.Path{}, err
		}
	}

	return p, nil
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	listing, err := s.gw.List(r.Context(), r.URL.Query().Get("path"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeOK(w, r, http.StatusOK, "ok", listing)
}

func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var req createFolderRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	res, err := s.gw.CreateFolder(r.Context(), gateway.CreateFolderInput{ParentToken: req.Parent, Name: req.Name})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeOK(w, r, http.StatusCreated, res.Message, res)
}

func (s *Server) handleCreateTextFile(w http.ResponseWriter, r *http.Request) {
	var req createTextFileRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	res, err := s.gw.CreateTextFile(r.Context(), gateway.CreateTextFileInput{
		ParentToken: req.Parent,
		Name:        req.Name,
		Content:     req.Content,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeOK(w, r, http.StatusCreated, res.Message, res)
}

func (s *Server) handleReadTextFile(w http.ResponseWriter, r *http.Request) {
	tf, err := s.gw.ReadTextFile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeOK(w, r, http.StatusOK, "ok", tf)
}

func (s *Server) handleEditTextFile(w http.ResponseWriter, r *http.Request) {
	var req editTextFileRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	res, err := s.gw.EditTextFile(r.Context(), gateway.EditTextFileInput{
		ItemID:  chi.URLParam(r, "id"),
		Content: req.Content,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeOK(w, r, http.StatusOK, res.Message, res)
}

func (s *Server) handleLockFolder(w http.ResponseWriter, r *http.Request) {
	var req lockFolderRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	res, err := s.gw.LockFolder(r.Context(), gateway.LockFolderInput{FolderToken: req.Folder, Password: req.Password})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeOK(w, r, http.StatusOK, res.Message, res)
}

func (s *Server) handleCopyItem(w http.ResponseWriter, r *http.Request) {
	var req copyRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	res, err := s.gw.CopyItem(r.Context(), gateway.CopyItemInput{Source: req.Source, Destination: req.Destination})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeOK(w, r, http.StatusAccepted, res.Message, res)
}

func (s *Server) handleMoveItem(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	res, err := s.gw.MoveItem(r.Context(), gateway.MoveItemInput{
		Source:      req.Source,
		Destination: req.Destination,
		NewName:     req.NewName,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeOK(w, r, http.StatusOK, res.Message, res)
}

func (s *Server) handleCreateShareLink(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	res, err := s.gw.CreateShareLink(r.Context(), req.Path)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeOK(w, r, http.StatusOK, res.Message, res)
}

func (s *Server) handleDeleteShareLink(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	res, err := s.gw.DeleteShareLink(r.Context(), req.Path)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeOK(w, r, http.StatusOK, res.Message, nil)
}

func (s *Server) handleIssueDeleteToken(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	token, err := s.gw.IssueDeleteToken(r.Context(), req.Path)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeOK(w, r, http.StatusOK, "ok", deleteTokenResponse{Token: token})
}
