package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/username/lotledger/backend/src/logger"
	"github.com/username/lotledger/backend/src/models"
	"github.com/username/lotledger/backend/src/security/validation"
	"github.com/username/lotledger/backend/src/services"
	"github.com/username/lotledger/backend/src/utils"
)

// multipartOverhead covers form boundaries and headers around the file part.
const multipartOverhead = 1 << 20

type StatementHandler struct {
	statementService services.StatementService
	maxUploadSize    int64
}

func NewStatementHandler(service services.StatementService, maxUploadSize int64) *StatementHandler {
	return &StatementHandler{
		statementService: service,
		maxUploadSize:    maxUploadSize,
	}
}

// MountRoutes registers the statement endpoints. uploadLimit wraps the upload
// route only; nil leaves it unlimited.
func (h *StatementHandler) MountRoutes(r chi.Router, uploadLimit func(http.Handler) http.Handler) {
	r.Route("/api/statements", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if uploadLimit != nil {
				r.Use(uploadLimit)
			}
			r.Post("/", h.HandleUpload)
		})
		r.Get("/{id}", h.HandleGetReport)
		r.Get("/{id}/disposals", h.HandleGetDisposals)
		r.Get("/{id}/dividends", h.HandleGetDividends)
		r.Get("/{id}/dividend-tax-summary", h.HandleGetDividendTaxSummary)
		r.Get("/{id}/fees", h.HandleGetFees)
	})
}

func (h *StatementHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	limit := humanize.Bytes(uint64(h.maxUploadSize))

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		log.Warn("Failed to parse multipart form or request too large", "error", err, "limit", limit)
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			utils.SendJSONError(w, fmt.Sprintf("Request too large (max %s)", limit), http.StatusRequestEntityTooLarge)
			return
		}
		utils.SendJSONError(w, "Failed to parse multipart form", http.StatusBadRequest)
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		log.Warn("Failed to retrieve file from request", "error", err)
		utils.SendJSONError(w, "Failed to retrieve file from request. Ensure 'file' field is used.", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if fileHeader.Size > h.maxUploadSize {
		log.Warn("Uploaded file too large", "fileSize", humanize.Bytes(uint64(fileHeader.Size)), "limit", limit)
		utils.SendJSONError(w, fmt.Sprintf("File too large (%s, max %s)", humanize.Bytes(uint64(fileHeader.Size)), limit), http.StatusRequestEntityTooLarge)
		return
	}

	clientContentType := fileHeader.Header.Get("Content-Type")
	if err := validation.ValidateClientContentType(clientContentType); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	detectedContentType, err := validation.ValidateFileContentByMagicBytes(file)
	if err != nil {
		log.Warn("Server-side file content validation failed", "filename", fileHeader.Filename, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	source := r.FormValue("source")
	log.Info("Processing statement upload",
		"filename", fileHeader.Filename,
		"size", humanize.Bytes(uint64(fileHeader.Size)),
		"detectedType", detectedContentType,
		"source", source)

	// A dropped connection does not abort processing; STATEMENT_TIMEOUT bounds it.
	report, err := h.statementService.ProcessStatement(context.WithoutCancel(r.Context()), file, source)
	if err != nil {
		switch {
		case errors.Is(err, validation.ErrValidationFailed), errors.Is(err, services.ErrParsingFailed):
			log.Warn("Statement rejected", "filename", fileHeader.Filename, "error", err)
			utils.SendJSONError(w, fmt.Sprintf("Error parsing statement: %v", err), http.StatusBadRequest)
		case errors.Is(err, services.ErrEmptyStatement):
			utils.SendJSONError(w, "The statement contains no sections", http.StatusUnprocessableEntity)
		default:
			log.Error("Internal error processing statement", "filename", fileHeader.Filename, "error", err)
			utils.SendJSONError(w, "An internal error occurred while processing the statement. Please try again later.", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Location", "/api/statements/"+report.ID)
	utils.SendJSON(w, report, http.StatusCreated)
}

func (h *StatementHandler) HandleGetReport(w http.ResponseWriter, r *http.Request) {
	report, ok := h.lookup(w, r)
	if !ok {
		return
	}
	sendWithETag(w, r, report)
}

func (h *StatementHandler) HandleGetDisposals(w http.ResponseWriter, r *http.Request) {
	report, ok := h.lookup(w, r)
	if !ok {
		return
	}

	flagged := false
	if raw := r.URL.Query().Get("flagged"); raw != "" {
		var err error
		if flagged, err = strconv.ParseBool(raw); err != nil {
			utils.SendJSONError(w, fmt.Sprintf("invalid 'flagged' value %q", raw), http.StatusBadRequest)
			return
		}
	}

	disposals := report.Disposals
	if flagged {
		disposals = report.FlaggedDisposals()
	}
	if disposals == nil {
		disposals = []models.MatchedDisposal{}
	}
	sendWithETag(w, r, disposals)
}

func (h *StatementHandler) lookup(w http.ResponseWriter, r *http.Request) (*services.StatementReport, bool) {
	id := chi.URLParam(r, "id")
	report, err := h.statementService.GetReport(id)
	if err != nil {
		if errors.Is(err, services.ErrReportNotFound) {
			utils.SendJSONError(w, fmt.Sprintf("statement %s not found or expired", id), http.StatusNotFound)
			return nil, false
		}
		logger.FromContext(r.Context()).Error("Error retrieving statement report", "statementID", id, "error", err)
		utils.SendJSONError(w, "Error retrieving statement report", http.StatusInternalServerError)
		return nil, false
	}
	return report, true
}

func sendWithETag(w http.ResponseWriter, r *http.Request, data any) {
	log := logger.FromContext(r.Context())
	w.Header().Set("Cache-Control", "no-cache, private")

	currentETag, err := utils.GenerateETag(data)
	if err != nil {
		log.Warn("Proceeding without ETag check due to ETag generation error", "error", err)
	} else {
		quotedETag := fmt.Sprintf("\"%s\"", currentETag)
		w.Header().Set("ETag", quotedETag)
		if clientETag := r.Header.Get("If-None-Match"); clientETag != "" {
			if utils.ETagMatches(clientETag, quotedETag) {
				log.Debug("ETag match", "path", r.URL.Path, "etag", currentETag)
				w.WriteHeader(http.StatusNotModified)
				return
			}
			log.Debug("ETag mismatch", "clientETags", clientETag, "serverETag", quotedETag)
		}
	}
	utils.SendJSON(w, data, http.StatusOK)
}
