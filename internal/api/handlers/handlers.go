// Package handlers implements the HTTP endpoints for statement uploads and
// the read side of the transaction dashboard.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mfigueredo/spendy/internal/api/middleware"
	"github.com/mfigueredo/spendy/internal/jobs"
	"github.com/mfigueredo/spendy/internal/pipeline"
)

// Store is the read/query surface the handlers need from persistence.
type Store interface {
	FindFileByHash(ctx context.Context, userID, hash string) (*pipeline.FileRecord, error)
	ListFilesByUser(ctx context.Context, userID string) ([]pipeline.FileRecord, error)
	FindTransactionsByUser(ctx context.Context, userID string) ([]pipeline.StoredTransaction, error)
}

// StatementsHandler handles statement upload and listing endpoints.
type StatementsHandler struct {
	store     Store
	objects   pipeline.ObjectStore
	publisher jobs.Publisher
	maxUpload int64
	log       zerolog.Logger
}

// NewStatementsHandler creates a statements handler. maxUpload bounds the
// accepted request body in bytes.
func NewStatementsHandler(store Store, objects pipeline.ObjectStore, publisher jobs.Publisher, maxUpload int64, log zerolog.Logger) *StatementsHandler {
	return &StatementsHandler{
		store:     store,
		objects:   objects,
		publisher: publisher,
		maxUpload: maxUpload,
		log:       log,
	}
}

// UploadStatement handles POST /api/statements.
//
// The multipart request carries the raw statement under "file" and the
// client-extracted page texts under "pages" as a JSON array of strings. A
// statement already ingested for this user returns 200 with duplicate=true;
// a new one is stored, enqueued, and returns 202 with the job ID.
func (h *StatementsHandler) UploadStatement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		middleware.WriteError(w, http.StatusRequestEntityTooLarge, "File exceeds the upload size limit")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read upload")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to read upload")
		return
	}
	if len(data) == 0 {
		middleware.WriteError(w, http.StatusBadRequest, "Uploaded file is empty")
		return
	}

	var pages []string
	if raw := r.FormValue("pages"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &pages); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "pages must be a JSON array of strings")
			return
		}
	}

	filename := filepath.Base(header.Filename)
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/pdf"
	}

	hash := pipeline.HashBytes(data)

	// Fast duplicate path: skip the upload and the queue entirely.
	existing, err := h.store.FindFileByHash(ctx, userID, hash)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed duplicate lookup")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to check for duplicates")
		return
	}
	if existing != nil {
		middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"duplicate": true,
			"file_id":   existing.ID,
			"bank":      existing.BankName,
		})
		return
	}

	objectName := fmt.Sprintf("statements/%s/%s-%s", userID, uuid.New().String(), filename)
	storagePath, err := h.objects.Put(ctx, objectName, data, contentType)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to store statement file")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to store statement file")
		return
	}

	job := &jobs.ParseStatementJob{
		UserID:      userID,
		Filename:    filename,
		ContentType: contentType,
		StoragePath: storagePath,
		ContentHash: hash,
		Pages:       pages,
	}
	if err := h.publisher.PublishParseStatement(ctx, job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue statement job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue statement job")
		return
	}

	h.log.Info().
		Str("job_id", job.JobID).
		Str("user_id", userID).
		Str("filename", filename).
		Int("bytes", len(data)).
		Msg("Statement upload enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"duplicate": false,
		"job_id":    job.JobID,
		"status":    string(job.Status),
	})
}

// ListStatements handles GET /api/statements.
func (h *StatementsHandler) ListStatements(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	files, err := h.store.ListFilesByUser(ctx, userID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list statements")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list statements")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"statements": files,
		"count":      len(files),
	})
}

// TransactionsHandler handles transaction read endpoints.
type TransactionsHandler struct {
	store Store
	log   zerolog.Logger
}

// NewTransactionsHandler creates a transactions handler.
func NewTransactionsHandler(store Store, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{
		store: store,
		log:   log,
	}
}

// ListTransactions handles GET /api/transactions. Results come back newest
// first; the response is a bare array for frontend compatibility.
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.UserID(ctx)

	transactions, err := h.store.FindTransactionsByUser(ctx, userID)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to query transactions")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to query transactions")
		return
	}

	if transactions == nil {
		transactions = []pipeline.StoredTransaction{}
	}
	middleware.WriteJSON(w, http.StatusOK, transactions)
}

// CategoriesHandler serves the closed category list the extraction uses.
type CategoriesHandler struct{}

// ListCategories handles GET /api/categories.
func (h *CategoriesHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"categories": pipeline.Categories,
		"count":      len(pipeline.Categories),
	})
}

// JobsHandler handles job status endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}. Jobs belong to the user who enqueued
// them; other users get a 404.
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx := r.Context()

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil || job.UserID != middleware.UserID(ctx) {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs.
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	filter := jobs.JobFilter{
		UserID: middleware.UserID(ctx),
		Status: jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
