package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/use-agent/bizscout/config"
	"github.com/use-agent/bizscout/extract"
	"github.com/use-agent/bizscout/models"
	"github.com/use-agent/bizscout/store"
	"github.com/use-agent/bizscout/webhook"
)

// Lookuper runs a list of queries; *engine.Service implements it.
type Lookuper interface {
	StatsSource
	Lookup(ctx context.Context, queries []string, onBatch func(done, total int)) (models.BatchResult, error)
}

// LookupDeps are the collaborators of the lookup handlers. Store may be nil.
type LookupDeps struct {
	Service   Lookuper
	Extractor *extract.Extractor
	Store     *store.Store
	Webhook   config.WebhookConfig
}

// jobStore holds all in-flight and recently finished lookup jobs.
var jobStore sync.Map

func init() {
	// Expire jobs older than 1 hour; finished runs remain readable from the store.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			cutoff := time.Now().Add(-1 * time.Hour).Unix()
			jobStore.Range(func(key, value any) bool {
				if value.(*models.LookupJob).CreatedAt < cutoff {
					jobStore.Delete(key)
				}
				return true
			})
		}
	}()
}

// PostLookup returns a handler for POST /api/v1/lookups.
// It validates the request, registers a job and runs it in the background.
func PostLookup(deps LookupDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.LookupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error: &models.ErrorDetail{Code: models.ErrCodeInvalidInput, Message: err.Error()},
			})
			return
		}

		queries := make([]string, 0, len(req.Queries))
		for _, q := range req.Queries {
			if q = strings.TrimSpace(q); q != "" {
				queries = append(queries, q)
			}
		}
		if len(queries) == 0 {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error: &models.ErrorDetail{Code: models.ErrCodeInvalidInput, Message: "queries must contain at least one non-blank name"},
			})
			return
		}

		job := &models.LookupJob{
			ID:        uuid.NewString(),
			Status:    "processing",
			Total:     len(queries),
			CreatedAt: time.Now().Unix(),
		}
		jobStore.Store(job.ID, job)

		go runLookup(deps, job, queries, req)

		c.JSON(http.StatusAccepted, models.LookupResponse{
			ID:     job.ID,
			Status: job.Status,
			Total:  job.Total,
		})
	}
}

// GetLookup returns a handler for GET /api/v1/lookups/:id. Jobs no longer
// held in memory are read back from the store.
func GetLookup(deps LookupDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if val, ok := jobStore.Load(id); ok {
			c.JSON(http.StatusOK, val.(*models.LookupJob).Snapshot())
			return
		}

		if deps.Store != nil {
			resp, err := storedLookup(c.Request.Context(), deps, id)
			switch {
			case err == nil:
				c.JSON(http.StatusOK, resp)
				return
			case !errors.Is(err, store.ErrNotFound):
				slog.Error("load stored lookup", "id", id, "error", err)
				c.JSON(http.StatusInternalServerError, models.ErrorResponse{
					Error: &models.ErrorDetail{Code: models.ErrCodeInternal, Message: "could not load lookup"},
				})
				return
			}
		}

		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error: &models.ErrorDetail{Code: models.ErrCodeNotFound, Message: "lookup job not found"},
		})
	}
}

func runLookup(deps LookupDeps, job *models.LookupJob, queries []string, req models.LookupRequest) {
	started := time.Now()
	ctx := context.Background()

	// ── 1. Run the queries ──
	result, err := deps.Service.Lookup(ctx, queries, func(done, total int) {
		job.Progress(done)
	})
	if err != nil {
		detail := models.Classify(err, models.ErrCodeInternal, "lookup failed").ToDetail()
		job.Finish("failed", nil, detail)
		slog.Error("lookup job failed", "id", job.ID, "error", err)
		notify(deps, req, job, webhook.EventLookupFailed)
		return
	}

	// ── 2. Extract listings ──
	results := toResults(deps.Extractor, result, req.IncludeHTML)
	job.Finish(result.Status(), results, nil)

	succeeded, failed := result.Counts()
	slog.Info("lookup job finished",
		"id", job.ID,
		"status", result.Status(),
		"succeeded", succeeded,
		"failed", failed,
		"total", job.Total,
		"elapsed", time.Since(started).Round(time.Millisecond),
	)

	// ── 3. Persist ──
	if deps.Store != nil {
		run := store.Run{ID: job.ID, StartedAt: started, FinishedAt: time.Now()}
		if err := deps.Store.SaveLookup(ctx, run, result, true); err != nil {
			slog.Error("persist lookup", "id", job.ID, "error", err)
		}
	}

	// ── 4. Notify ──
	notify(deps, req, job, webhook.EventLookupCompleted)
}

func storedLookup(ctx context.Context, deps LookupDeps, id string) (models.LookupStatusResponse, error) {
	run, err := deps.Store.Run(ctx, id)
	if err != nil {
		return models.LookupStatusResponse{}, err
	}
	if run.Kind != store.KindLookup {
		return models.LookupStatusResponse{}, store.ErrNotFound
	}
	outcomes, err := deps.Store.Outcomes(ctx, id)
	if err != nil {
		return models.LookupStatusResponse{}, err
	}
	return models.LookupStatusResponse{
		ID:        run.ID,
		Status:    run.Status,
		Completed: len(outcomes),
		Total:     run.Total,
		Results:   toResults(deps.Extractor, outcomes, false),
	}, nil
}

// toResults attaches listings to successful outcomes. HTML is dropped unless
// includeHTML is set.
func toResults(ext *extract.Extractor, outcomes models.BatchResult, includeHTML bool) []*models.LookupResult {
	results := make([]*models.LookupResult, len(outcomes))
	for i, o := range outcomes {
		r := &models.LookupResult{FetchOutcome: o}
		if ext != nil && o.Success && o.HTML != "" {
			listings, err := ext.Listings(o.HTML)
			if err != nil {
				slog.Warn("extract listings", "query", o.Query, "error", err)
			}
			r.Listings = listings
		}
		if !includeHTML {
			r.HTML = ""
		}
		results[i] = r
	}
	return results
}

func notify(deps LookupDeps, req models.LookupRequest, job *models.LookupJob, eventType string) {
	url := req.WebhookURL
	if url == "" {
		url = deps.Webhook.URL
	}
	if url == "" {
		return
	}
	snap := job.Snapshot()
	data := gin.H{
		"status":    snap.Status,
		"total":     snap.Total,
		"completed": snap.Completed,
	}
	if snap.Error != nil {
		data["error"] = snap.Error
	}
	webhook.DeliverAsync(url, deps.Webhook.Secret, webhook.NewEvent(eventType, job.ID, data), nil)
}
