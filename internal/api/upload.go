package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/lox/healthdash/internal/importer"
)

// MaxUploadBytes caps the upload request body. Health exports are usually
// 150 to 280 MiB.
const MaxUploadBytes = 300 << 20

// The password field is small; anything longer cannot match.
const maxPasswordBytes = 1 << 10

type uploadResponse struct {
	Status          string `json:"status"`
	RecordsImported int    `json:"records_imported"`
}

func (s *Server) checkPassword(given string) bool {
	if s.opts.UploadPassword == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(given), []byte(s.opts.UploadPassword)) == 1
}

// handleUpload replaces all stored data with the export inside an uploaded
// Health app zip archive.
//
// The form is read part by part and the password field must come before the
// file, so nothing is written to disk for an unauthenticated request.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid upload")
		return
	}

	dir, err := os.MkdirTemp("", "healthdash-upload-*")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer os.RemoveAll(dir)

	var (
		authorized bool
		filename   string
		zipPath    string
	)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			writeUploadReadError(w, err)
			return
		}

		switch part.FormName() {
		case "password":
			pw, err := io.ReadAll(io.LimitReader(part, maxPasswordBytes))
			if err != nil {
				writeUploadReadError(w, err)
				return
			}
			authorized = s.checkPassword(string(pw))
		case "file":
			if !authorized {
				writeError(w, http.StatusUnauthorized, "Invalid password")
				return
			}
			if part.FileName() == "" {
				continue
			}
			filename = part.FileName()
			if !strings.HasSuffix(strings.ToLower(filename), ".zip") {
				writeError(w, http.StatusBadRequest, "File must be a .zip")
				return
			}
			zipPath = filepath.Join(dir, filepath.Base(filename))
			if err := saveUpload(part, zipPath); err != nil {
				writeUploadReadError(w, err)
				return
			}
		}
		part.Close()
	}

	if !authorized {
		writeError(w, http.StatusUnauthorized, "Invalid password")
		return
	}
	if zipPath == "" {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}

	xmlPath, err := importer.ExtractExport(zipPath, dir)
	if errors.Is(err, importer.ErrExportNotFound) {
		writeError(w, http.StatusBadRequest, "export.xml not found in zip")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid zip archive")
		return
	}

	f, err := os.Open(xmlPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer f.Close()

	// A client disconnect must not abort an import half way through.
	res, err := s.importer.Import(context.WithoutCancel(r.Context()), "upload:"+filename, f)
	if err != nil {
		status, msg := importErrorStatus(err)
		writeError(w, status, msg)
		return
	}

	s.charts.Clear()
	writeJSON(w, http.StatusOK, uploadResponse{Status: "success", RecordsImported: res.Total()})
}

func writeUploadReadError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "Upload exceeds 300 MB")
		return
	}
	writeError(w, http.StatusBadRequest, "Invalid upload")
}

func importErrorStatus(err error) (int, string) {
	var malformed *importer.MalformedInputError
	switch {
	case errors.Is(err, importer.ErrImportInProgress):
		return http.StatusConflict, "An import is already running"
	case errors.As(err, &malformed):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

func saveUpload(src io.Reader, dst string) error {
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("save upload: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return fmt.Errorf("save upload: %w", err)
	}
	return out.Close()
}
