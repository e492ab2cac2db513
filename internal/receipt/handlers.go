package receipt

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/receipt-lens/internal/extraction"
)

const maxUploadSize = int64(50 << 20)

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	setCORSHeaders(w)
	writeJSON(w, code, map[string]string{"error": message})
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidReview):
		return http.StatusBadRequest
	case errors.Is(err, ErrNoRecognizer):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// linesRequest is the body of the text endpoints: either pre-recognized lines
// or raw text to split.
type linesRequest struct {
	Lines []extraction.RawLine `json:"lines"`
	Text  string               `json:"text"`
}

func (req linesRequest) rawLines() ([]extraction.RawLine, bool) {
	if len(req.Lines) > 0 {
		lines := make([]extraction.RawLine, len(req.Lines))
		for i, l := range req.Lines {
			l.Index = i
			lines[i] = l
		}
		return lines, true
	}
	if strings.TrimSpace(req.Text) != "" {
		return extraction.SplitLines(req.Text), true
	}
	return nil, false
}

func decodeLines(w http.ResponseWriter, r *http.Request) ([]extraction.RawLine, bool) {
	var req linesRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadSize)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return nil, false
	}
	lines, ok := req.rawLines()
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "Either lines or text is required")
		return nil, false
	}
	return lines, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleExtract runs the engine and returns the result without storing it.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	lines, ok := decodeLines(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.service.Extract(lines))
}

// handleSubmitText queues already recognized text for review.
func (s *Server) handleSubmitText(w http.ResponseWriter, r *http.Request) {
	lines, ok := decodeLines(w, r)
	if !ok {
		return
	}
	record, err := s.service.SubmitLines(lines)
	if err != nil {
		slog.Error("Error submitting lines", "error", err)
		writeJSONError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	status := Status(r.URL.Query().Get("status"))
	switch status {
	case "", StatusPending, StatusApproved:
	default:
		writeJSONError(w, http.StatusBadRequest, "Unknown status filter")
		return
	}

	records, err := s.service.ListRecords(status)
	if err != nil {
		slog.Error("Error listing records", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleUpload accepts a multipart receipt image, PDF or text file.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		msg := "Error parsing form"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			msg = "File is too large. Maximum size is 50MB."
		}
		writeJSONError(w, http.StatusBadRequest, msg)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		writeJSONError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeJSONError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
		return
	}

	contentType := detectContentType(header.Header.Get("Content-Type"), header.Filename)
	record, err := s.service.ProcessUpload(header.Filename, data, contentType)
	if err != nil {
		slog.Error("Error processing upload", "filename", header.Filename, "error", err)
		code := statusFor(err)
		if code == http.StatusInternalServerError {
			code = http.StatusBadRequest
		}
		writeJSONError(w, code, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

// detectContentType trusts the part header and falls back to the file extension.
func detectContentType(header, filename string) string {
	contentType := strings.ToLower(strings.TrimSpace(header))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	record, err := s.service.GetRecord(r.PathValue("id"))
	if err != nil {
		corsError(w, "Receipt not found", statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleGetRecordFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetRecordFile(r.PathValue("id"))
	if err != nil {
		corsError(w, "File not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteRecord(r.PathValue("id")); err != nil {
		code := statusFor(err)
		if code == http.StatusNotFound {
			corsError(w, "Receipt not found", code)
			return
		}
		slog.Error("Error deleting record", "error", err)
		corsError(w, "Error deleting receipt", code)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleReview applies reviewer overrides and approves the record.
func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	var input ReviewInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	record, err := s.service.ApplyReview(r.PathValue("id"), input)
	if err != nil {
		code := statusFor(err)
		if code == http.StatusInternalServerError {
			slog.Error("Error applying review", "error", err)
		}
		writeJSONError(w, code, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, record)
}
