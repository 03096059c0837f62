package bill

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"bill-analyst/internal/chat"
	"bill-analyst/internal/extraction"
)

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSON encodes a JSON response body
func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeJSONError encodes a JSON error body with CORS headers set
func writeJSONError(w http.ResponseWriter, code int, message string) {
	setCORSHeaders(w)
	writeJSON(w, code, map[string]string{"error": message})
}

// handleUploadBill accepts a bill image, extracts structured data and commits
// it to the caller's session
func (s *Server) handleUploadBill(w http.ResponseWriter, r *http.Request) {
	sessionID := s.sessionID(w, r)

	// 50MB upper bound to handle high-resolution phone photos
	maxFormSize := int64(50 << 20)
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		if err.Error() == "http: request body too large" {
			errorMsg = "File is too large. Maximum size is 50MB. Please compress or resize your image."
		}
		writeJSONError(w, http.StatusBadRequest, errorMsg)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		errorMsg := "No file provided"
		if err.Error() == "http: no such file" {
			errorMsg = "No file was selected. Please choose a bill image to upload."
		}
		writeJSONError(w, http.StatusBadRequest, errorMsg)
		return
	}
	defer f.Close()

	if header.Size > maxFormSize {
		writeJSONError(w, http.StatusBadRequest, "File is too large. Maximum size is 50MB. Please compress or resize your image.")
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeJSONError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		ext := strings.ToLower(filepath.Ext(header.Filename))
		switch ext {
		case ".jpg", ".jpeg":
			contentType = "image/jpeg"
		case ".png":
			contentType = "image/png"
		case ".pdf":
			contentType = "application/pdf"
		case ".heic":
			contentType = "image/heic"
		case ".heif":
			contentType = "image/heif"
		default:
			contentType = "application/octet-stream"
		}
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))

	record, reextracted, err := s.service.UploadBill(sessionID, data, contentType)
	if err != nil {
		slog.Error("Error processing bill", "filename", header.Filename, "error", err)
		switch {
		case errors.Is(err, extraction.ErrServiceUnavailable):
			writeJSONError(w, http.StatusBadGateway, "The extraction service is unavailable. Please try again later.")
		case errors.Is(err, extraction.ErrMalformedResponse), errors.Is(err, extraction.ErrSchemaViolation):
			writeJSONError(w, http.StatusUnprocessableEntity, "Failed to parse bill. Please try a different image.")
		default:
			writeJSONError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"record":      record,
		"reextracted": reextracted,
	})
}

// handleGetBill returns the session's current bill record
func (s *Server) handleGetBill(w http.ResponseWriter, r *http.Request) {
	sessionID := s.sessionID(w, r)

	record, err := s.service.CurrentRecord(sessionID)
	if errors.Is(err, ErrNoBillLoaded) {
		writeJSONError(w, http.StatusNotFound, "No bill loaded. Upload a bill image first.")
		return
	}
	if err != nil {
		slog.Error("Error getting bill record", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// handleExportBill returns the committed record as a JSON download
func (s *Server) handleExportBill(w http.ResponseWriter, r *http.Request) {
	sessionID := s.sessionID(w, r)

	data, filename, err := s.service.ExportJSON(sessionID)
	if errors.Is(err, ErrNoBillLoaded) {
		writeJSONError(w, http.StatusNotFound, "No bill loaded. Upload a bill image first.")
		return
	}
	if err != nil {
		slog.Error("Error exporting bill record", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Write(data)
}

// handleAsk forwards a user question and returns the grounded reply
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	sessionID := s.sessionID(w, r)

	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeJSONError(w, http.StatusBadRequest, "Message is required")
		return
	}

	reply, err := s.service.Ask(r.Context(), sessionID, req.Message)
	if err != nil {
		slog.Error("Error answering question", "error", err)
		if errors.Is(err, chat.ErrServiceUnavailable) {
			writeJSONError(w, http.StatusBadGateway, "The chat service is unavailable. Please try again later.")
			return
		}
		writeJSONError(w, http.StatusInternalServerError, "Failed to generate a reply")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

// handleGetHistory returns the session's chat transcript
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := s.sessionID(w, r)

	history, err := s.service.History(sessionID)
	if err != nil {
		slog.Error("Error getting chat history", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"history": history})
}

// handleResetSession drops the caller's session state
func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := s.sessionID(w, r)

	if err := s.service.ResetSession(sessionID); err != nil {
		slog.Error("Error resetting session", "error", err)
		corsError(w, "Error resetting session", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
