package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zombor/invoice-extract/internal/output"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpload stores an uploaded invoice and extracts it. A failed
// extraction still returns the stored record with its error.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, "File is too large", http.StatusRequestEntityTooLarge)
			return
		}
		writeError(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		writeError(w, "Error reading file", http.StatusBadRequest)
		return
	}

	record, err := s.service.Process(r.Context(), header.Filename, data)
	if err != nil {
		s.logger.Error("extraction failed", "filename", header.Filename, "error", err)
		if record == nil {
			writeError(w, err.Error(), statusFor(err))
			return
		}
		writeJSON(w, statusFor(err), record)
		return
	}

	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	records, err := s.service.List()
	if err != nil {
		s.logger.Error("listing records", "error", err)
		writeError(w, "Failed to list extractions", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	record, err := s.service.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "Extraction not found", statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// handleGetResult returns the bare result document, the same shape the CLI writes
func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	record, err := s.service.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "Extraction not found", statusFor(err))
		return
	}
	if record.Result == nil {
		writeError(w, record.Error, http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := output.Encode(w, record.Result); err != nil {
		s.logger.Error("encoding result", "id", record.ID, "error", err)
	}
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetFile(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "File not found", statusFor(err))
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Delete(chi.URLParam(r, "id")); err != nil {
		status := statusFor(err)
		if status == http.StatusNotFound {
			writeError(w, "Extraction not found", status)
			return
		}
		s.logger.Error("deleting record", "error", err)
		writeError(w, "Failed to delete extraction", status)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
