package receipt

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
)

// maxUploadSize bounds multipart uploads (high-resolution phone photos)
const maxUploadSize = int64(50 << 20)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// corsError writes an error response with CORS headers set
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

func jsonError(w http.ResponseWriter, code int, message string) {
	setCORSHeaders(w)
	writeJSON(w, code, map[string]string{"status": "error", "message": message})
}

// contentTypeFor maps a stored file name to the MIME type it is served with
func contentTypeFor(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListReceipts returns a list of all receipts
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	receipts, err := s.service.ListReceipts()
	if err != nil {
		slog.Error("Error listing receipts", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, receipts)
}

// handleUploadReceipt stores and ingests an uploaded receipt
func (s *Server) handleUploadReceipt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, http.StatusRequestEntityTooLarge, "File is too large. Maximum size is 50MB.")
			return
		}
		jsonError(w, http.StatusBadRequest, "Error parsing form")
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		jsonError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		jsonError(w, http.StatusInternalServerError, "Error reading file. Please try again.")
		return
	}

	result, err := s.service.Upload(r.Context(), header.Filename, data)
	if errors.Is(err, ErrUnsupportedFile) {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		slog.Error("Error processing receipt", "filename", header.Filename, "error", err)
		jsonError(w, http.StatusInternalServerError, "Error processing receipt")
		return
	}

	switch result.Outcome {
	case OutcomeDuplicate:
		setCORSHeaders(w)
		writeJSON(w, http.StatusConflict, map[string]string{
			"status":         "duplicate",
			"receipt_number": result.ReceiptNumber,
		})
		return
	case OutcomeSkipped:
		message := "Could not extract data from file"
		if result.Reason == ErrExpired.Error() {
			message = "Receipt is past the retention period"
		}
		jsonError(w, http.StatusUnprocessableEntity, message)
		return
	}

	receipt, err := s.service.GetReceipt(result.ReceiptNumber)
	if err != nil {
		slog.Error("Error loading stored receipt", "receipt_number", result.ReceiptNumber, "error", err)
		jsonError(w, http.StatusInternalServerError, "Error loading receipt")
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

// handleGetReceipt returns a single receipt
func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	number := r.PathValue("number")
	receipt, err := s.service.GetReceipt(number)
	if errors.Is(err, ErrNotFound) {
		corsError(w, "Receipt not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("Error getting receipt", "receipt_number", number, "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, receipt)
}

// handleGetReceiptFile returns the file for a receipt
func (s *Server) handleGetReceiptFile(w http.ResponseWriter, r *http.Request) {
	number := r.PathValue("number")
	data, name, err := s.service.GetReceiptFile(number)
	if err != nil {
		corsError(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentTypeFor(name))
	w.Write(data)
}

// handleDeleteReceipt deletes a receipt
func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	number := r.PathValue("number")
	err := s.service.DeleteReceipt(number)
	if errors.Is(err, ErrNotFound) {
		corsError(w, "Receipt not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("Error deleting receipt", "receipt_number", number, "error", err)
		corsError(w, "Error deleting receipt", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type scanResponse struct {
	Status string `json:"status"`
	*ScanResult
}

// handleScan fetches new mail attachments and ingests them
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	slog.Info("Scanning mailbox")
	result, err := s.service.ScanMailbox(r.Context())
	if err != nil {
		slog.Error("Scan error", "error", err)
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, scanResponse{Status: "success", ScanResult: result})
}

// handleAnalyzeLocal ingests the documents already in the attachments directory
func (s *Server) handleAnalyzeLocal(w http.ResponseWriter, r *http.Request) {
	result, err := s.service.ScanDirectory(r.Context())
	if err != nil {
		slog.Error("Local analysis error", "error", err)
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, scanResponse{Status: "success", ScanResult: result})
}

// handleSummary returns dashboard totals
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.Summary()
	if err != nil {
		slog.Error("Error building summary", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleExport streams the receipts as an Excel workbook
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.service.ExportXLSX(&buf); err != nil {
		slog.Error("Error exporting receipts", "error", err)
		corsError(w, "Error exporting receipts", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="receipts.xlsx"`)
	w.Write(buf.Bytes())
}
