package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/raaihank/pii-scrubber/internal/audit"
	"github.com/raaihank/pii-scrubber/internal/extract"
	"github.com/raaihank/pii-scrubber/internal/privacy"
	"github.com/raaihank/pii-scrubber/internal/websocket"
	"go.uber.org/zap"
)

// ErrNoInput is returned when a request carries neither text nor a file
var ErrNoInput = errors.New("no input text or file provided")

// Client-facing error messages
const (
	msgUnsupportedFile = "Only PDF and DOCX files are supported."
	msgNoInput         = "No input text or file provided."
	msgInvalidMode     = "Invalid mode. Use 'placeholder' or 'empty'."
	msgTooLarge        = "File exceeds the upload limit."
	msgBadForm         = "Invalid form data."
	msgUnreadableFile  = "Could not extract text from the uploaded file."
)

// multipart parts above this size are spooled to disk
const multipartMemory = 32 << 20

// EntityResponse is one enumerated span as returned to clients
type EntityResponse struct {
	Entity   string           `json:"entity"`
	Category privacy.Category `json:"category"`
	Text     string           `json:"text"`
	Start    int              `json:"start"`
	End      int              `json:"end"`
}

// RedactResponse is the body of a successful POST /redact
type RedactResponse struct {
	Original string           `json:"original"`
	Redacted string           `json:"redacted"`
	Entities []EntityResponse `json:"entities"`
}

// handleRoot answers liveness probes from the frontend
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Backend is running!"})
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.startTime).Round(time.Second).String(),
	})
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":              "pii-scrubber",
		"version":           Version,
		"categories":        s.scrubber.Categories(),
		"modes":             []privacy.Mode{privacy.ModePlaceholder, privacy.ModeEmpty},
		"default_mode":      s.scrubber.DefaultMode(),
		"person_recognizer": s.scrubber.RecognizerName(),
		"known_locations":   len(privacy.KnownLocations()),
		"max_upload_mb":     s.config.Extraction.MaxUploadMB,
		"audit_enabled":     s.audit != nil,
	})
}

// handleStats returns running per-category totals
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.stats.Snapshot(r.Context())
	if err != nil {
		s.logger.WithRequestID(getRequestID(r.Context())).Error("Failed to read statistics", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "Statistics are unavailable.")
		return
	}

	categories := make(map[string]int64, len(snapshot))
	for _, c := range s.scrubber.Categories() {
		categories[string(c)] = 0
	}
	for k, v := range snapshot {
		categories[k] = v
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"categories":     categories,
		"total_requests": s.totalRequests.Load(),
		"total_entities": s.totalEntities.Load(),
	})
}

// handleAuditRecent lists the latest request summaries
func (s *Server) handleAuditRecent(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500.")
			return
		}
		limit = n
	}

	summaries, err := s.audit.Recent(r.Context(), limit)
	if err != nil {
		s.logger.WithRequestID(getRequestID(r.Context())).Error("Failed to read audit log", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "Audit log is unavailable.")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"summaries": summaries})
}

// handleRedact redacts form text or an uploaded PDF/DOCX file. A file takes
// precedence over text.
func (s *Server) handleRedact(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	requestID := getRequestID(ctx)
	log := s.logger.WithRequestID(requestID)

	limit := int64(s.config.Extraction.MaxUploadMB)<<20 + 1<<20
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, msgTooLarge)
			return
		}
		log.Debug("Failed to parse form", zap.Error(err))
		writeError(w, http.StatusBadRequest, msgBadForm)
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	mode := s.scrubber.DefaultMode()
	if raw := r.FormValue("mode"); strings.TrimSpace(raw) != "" {
		parsed, err := privacy.ParseMode(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, msgInvalidMode)
			return
		}
		mode = parsed
	}

	text, source, status, msg := s.readInput(ctx, r)
	if status != 0 {
		writeError(w, status, msg)
		return
	}

	result := s.scrubber.Process(text, mode)
	elapsed := time.Since(start)

	entities := make([]EntityResponse, 0, len(result.Entities))
	for _, m := range result.Entities {
		entities = append(entities, EntityResponse{
			Entity:   m.Category.Placeholder(),
			Category: m.Category,
			Text:     m.Text,
			Start:    m.Start,
			End:      m.End,
		})
	}

	s.recordRedaction(ctx, requestID, source, mode, utf8.RuneCountInString(text), result, elapsed)

	writeJSON(w, http.StatusOK, RedactResponse{
		Original: result.Original,
		Redacted: result.Redacted,
		Entities: entities,
	})
}

// readInput returns the text to redact and where it came from, or a non-zero
// status with a client message
func (s *Server) readInput(ctx context.Context, r *http.Request) (text, source string, status int, msg string) {
	file, header, err := r.FormFile("file")
	switch {
	case err == nil:
		defer file.Close()
		if !extract.IsDocument(header.Filename) {
			return "", "", http.StatusBadRequest, msgUnsupportedFile
		}
		extracted, err := s.extractor.Extract(ctx, file, header.Filename)
		if err != nil {
			if errors.Is(err, extract.ErrTooLarge) {
				return "", "", http.StatusRequestEntityTooLarge, msgTooLarge
			}
			s.logger.WithRequestID(getRequestID(ctx)).Warn("Failed to extract uploaded file",
				zap.String("format", extract.Format(header.Filename)),
				zap.Error(err),
			)
			return "", "", http.StatusUnprocessableEntity, msgUnreadableFile
		}
		return extracted, "file", 0, ""

	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		value := r.FormValue("text")
		if value == "" {
			s.logger.WithRequestID(getRequestID(ctx)).Debug("Rejected request", zap.Error(ErrNoInput))
			return "", "", http.StatusBadRequest, msgNoInput
		}
		return value, "text", 0, ""

	default:
		return "", "", http.StatusBadRequest, msgBadForm
	}
}

// recordRedaction updates statistics, the audit log and live subscribers.
// All three are best-effort; failures are logged and never fail the request.
func (s *Server) recordRedaction(ctx context.Context, requestID, source string, mode privacy.Mode, textLength int, result privacy.Result, elapsed time.Duration) {
	log := s.logger.WithRequestID(requestID)
	total := result.TotalEntities()

	counts := make(map[string]int, len(result.Counts))
	for c, n := range result.Counts {
		counts[string(c)] = n
	}

	s.totalRequests.Add(1)
	s.totalEntities.Add(int64(total))

	if err := s.stats.Incr(ctx, counts); err != nil {
		log.Warn("Failed to update statistics", zap.Error(err))
	}

	if s.audit != nil {
		summary := audit.Summary{
			RequestID:   requestID,
			Source:      source,
			Mode:        string(mode),
			TextLength:  textLength,
			EntityCount: total,
			Counts:      audit.Counts(counts),
		}
		if err := s.audit.Record(ctx, summary); err != nil {
			log.Warn("Failed to record audit summary", zap.Error(err))
		}
	}

	if s.wsHub != nil {
		s.wsHub.BroadcastRedaction(websocket.RedactionEvent{
			RequestID:     requestID,
			Source:        source,
			Mode:          string(mode),
			Counts:        counts,
			TotalEntities: total,
			ProcessingMS:  float64(elapsed.Microseconds()) / 1000,
		})
	}

	log.Info("Redaction completed",
		zap.String("source", source),
		zap.String("mode", string(mode)),
		zap.Int("text_length", textLength),
		zap.Int("entities", total),
		zap.Duration("duration", elapsed),
	)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
