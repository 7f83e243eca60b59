package http

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"paxth/internal/bootstrap"
	"paxth/internal/document"
	"paxth/internal/export"
	"paxth/internal/jobs"
	"paxth/internal/metrics"
	"paxth/internal/model"
	"paxth/internal/pipeline"
	"paxth/internal/reconcile"
	"paxth/internal/runctx"
	"paxth/internal/store"
)

// Per-request credentials. When present they replace the configured keys
// for the duration of one run.
const (
	headerFirecrawlKey = "X-Firecrawl-Api-Key"
	headerLLMKey       = "X-LLM-Api-Key"
)

// createRunHandler runs one product through the pipeline synchronously.
func createRunHandler(c *fiber.Ctx) error {
	var reqBody RunRequest
	if err := c.BodyParser(&reqBody); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST_INVALID_JSON",
			Error:   "Bad request, malformed JSON",
		})
	}

	product := reqBody.Product
	if doc := reqBody.Document; doc != nil && doc.ContentBase64 != "" {
		content, err := base64.StdEncoding.DecodeString(doc.ContentBase64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Success: false,
				Code:    "BAD_REQUEST",
				Error:   "Document content is not valid base64",
			})
		}
		if len(content) > document.MaxUploadBytes {
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(ErrorResponse{
				Success: false,
				Code:    "DOCUMENT_TOO_LARGE",
				Error:   document.ErrTooLarge.Error(),
			})
		}
		product.Document = &model.DocumentInput{Filename: doc.Filename, Content: content}
	}

	rt := runtimeFrom(c)
	id, err := uuid.NewV7()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "INTERNAL_ERROR",
			Error:   err.Error(),
		})
	}
	c.Locals("run_id", id.String())

	rc := runctx.New(id.String(), rt.Artifacts, runctx.Credentials{
		FirecrawlAPIKey: strings.TrimSpace(c.Get(headerFirecrawlKey)),
		LLMAPIKey:       strings.TrimSpace(c.Get(headerLLMKey)),
	}, loggerFrom(c))

	res, err := rt.Pipeline.Run(c.UserContext(), rc, product)
	if err != nil {
		var verr *pipeline.ValidationError
		switch {
		case errors.As(err, &verr):
			metrics.RecordRun(product.Category, string(jobs.StatusInvalid), 0)
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Success: false,
				Code:    "VALIDATION_FAILED",
				Error:   "Please fix the following errors",
				Details: verr.Problems,
			})
		case errors.Is(err, pipeline.ErrExtractorNotConfigured):
			metrics.RecordRun(product.Category, string(jobs.StatusNotConfigured), 0)
			return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
				Success: false,
				Code:    "EXTRACTOR_NOT_CONFIGURED",
				Error:   err.Error(),
				Details: rc.Lines(),
			})
		default:
			metrics.RecordRun(product.Category, string(jobs.StatusFailed), 0)
			return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
				Success: false,
				Code:    "RUN_FAILED",
				Error:   err.Error(),
				Details: rc.Lines(),
			})
		}
	}

	rec := &runRecord{
		ID:        id,
		Product:   product,
		Result:    res,
		Matrix:    res.Matrix,
		Final:     model.FinalValueMap{},
		Log:       rc.Lines(),
		CreatedAt: time.Now().UTC(),
	}
	registryFrom(c).put(rec)
	metrics.RecordRun(product.Category, string(jobs.StatusCompleted), res.Matrix.FilledCount())
	persistRun(c, rt, rec)

	return c.Status(fiber.StatusCreated).JSON(newRunResponse(rec))
}

func listRunsHandler(c *fiber.Ctx) error {
	rt := runtimeFrom(c)
	limit := c.QueryInt("limit", 50)

	if rt.Store == nil {
		runs := registryFrom(c).list()
		if limit > 0 && len(runs) > limit {
			runs = runs[:limit]
		}
		return c.JSON(fiber.Map{"success": true, "runs": runs})
	}

	stored, err := rt.Store.ListRuns(c.UserContext(), limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "INTERNAL_ERROR",
			Error:   err.Error(),
		})
	}
	runs := make([]RunSummary, 0, len(stored))
	for _, s := range stored {
		runs = append(runs, RunSummary{ID: s.ID.String(), Category: s.Category, SKU: s.SKU, CreatedAt: s.CreatedAt})
	}
	return c.JSON(fiber.Map{"success": true, "runs": runs})
}

func getRunHandler(c *fiber.Ctx) error {
	rec, err := loadRun(c)
	if err != nil {
		return runLookupError(c, err)
	}
	return c.JSON(newRunResponse(rec))
}

func reconcileRunHandler(c *fiber.Ctx) error {
	rec, err := loadRun(c)
	if err != nil {
		return runLookupError(c, err)
	}

	var action ReconcileRequest
	if err := c.BodyParser(&action); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST_INVALID_JSON",
			Error:   "Bad request, malformed JSON",
		})
	}

	updated, err := registryFrom(c).update(rec.ID, func(r *runRecord) error {
		m, final, err := reconcile.Apply(r.Matrix, r.Final, action)
		if err != nil {
			return err
		}
		r.Matrix, r.Final = m, final
		return nil
	})
	if errors.Is(err, errRunNotFound) {
		return runLookupError(c, err)
	}
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "INVALID_RECONCILIATION",
			Error:   err.Error(),
		})
	}

	rt := runtimeFrom(c)
	if rt.Store != nil {
		if err := rt.Store.UpdateReconciliation(c.UserContext(), updated.ID, updated.Matrix, updated.Final); err != nil {
			loggerFrom(c).Warn("persist reconciliation failed", "run_id", updated.ID.String(), "error", err)
		}
	}

	return c.JSON(ReconcileResponse{
		Success: true,
		Final:   updated.Final,
		Matrix:  updated.Matrix,
		Filled:  updated.Final.Filled(),
	})
}

// exportRunHandler downloads the CMS import row for one run.
func exportRunHandler(c *fiber.Ctx) error {
	rec, err := loadRun(c)
	if err != nil {
		return runLookupError(c, err)
	}
	rt := runtimeFrom(c)
	headers := runHeaders(rt, rec)

	var buf bytes.Buffer
	row := export.BuildRow(export.FromProduct(rec.Product), rec.Final, headers)
	if err := export.WriteCSV(&buf, headers, row); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "EXPORT_FAILED",
			Error:   err.Error(),
		})
	}

	c.Attachment(export.FileName(rec.Product.Category, rec.Product.SKU))
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	return c.Send(buf.Bytes())
}

// ExportRequest selects several runs of one category for a batch download.
type ExportRequest struct {
	IDs []string `json:"ids"`
}

func exportRunsHandler(c *fiber.Ctx) error {
	var reqBody ExportRequest
	if err := c.BodyParser(&reqBody); err != nil || len(reqBody.IDs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "Missing required field 'ids'",
		})
	}

	rt := runtimeFrom(c)
	var (
		category string
		headers  []string
		rows     [][]string
	)
	for _, raw := range reqBody.IDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return invalidRunID(c, raw)
		}
		rec, err := findRun(c, id)
		if err != nil {
			return runLookupError(c, err)
		}
		if category == "" {
			category = rec.Product.Category
			headers = runHeaders(rt, rec)
		} else if rec.Product.Category != category {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Success: false,
				Code:    "MIXED_CATEGORIES",
				Error:   "All runs in one export must share a category",
			})
		}
		rows = append(rows, export.BuildRow(export.FromProduct(rec.Product), rec.Final, headers))
	}

	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, headers, rows...); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "EXPORT_FAILED",
			Error:   err.Error(),
		})
	}
	c.Attachment(export.FileName(category, "batch"))
	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	return c.Send(buf.Bytes())
}

func runHeaders(rt *bootstrap.App, rec *runRecord) []string {
	if rec.Result != nil && len(rec.Result.Headers) > 0 {
		return rec.Result.Headers
	}
	return rt.Catalog.Attributes(rec.Product.Category)
}

// loadRun resolves the :id parameter.
func loadRun(c *fiber.Ctx) (*runRecord, error) {
	raw := c.Params("id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, errInvalidRunID
	}
	c.Locals("run_id", id.String())
	return findRun(c, id)
}

var errInvalidRunID = errors.New("invalid run id")

// findRun looks in the registry first, then in the store. Runs loaded from
// the store are cached in the registry so reconciliation can act on them.
func findRun(c *fiber.Ctx, id uuid.UUID) (*runRecord, error) {
	runs := registryFrom(c)
	if rec, ok := runs.get(id); ok {
		return rec, nil
	}

	rt := runtimeFrom(c)
	if rt.Store == nil {
		return nil, errRunNotFound
	}
	stored, err := rt.Store.GetRun(c.UserContext(), id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errRunNotFound
	}
	if err != nil {
		return nil, err
	}

	rec := &runRecord{
		ID:      stored.ID,
		Product: stored.Product,
		Result: &pipeline.Result{
			Category:   stored.Category,
			Headers:    rt.Catalog.Attributes(stored.Category),
			Attributes: rt.Catalog.ExtractionAttributes(stored.Category),
			Sources:    stored.Sources,
			Matrix:     stored.Matrix,
		},
		Matrix:    stored.Matrix,
		Final:     stored.Final,
		Log:       stored.Log,
		Error:     stored.Error,
		CreatedAt: stored.CreatedAt,
	}
	if rec.Final == nil {
		rec.Final = model.FinalValueMap{}
	}
	runs.put(rec)
	return rec, nil
}

func runLookupError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, errInvalidRunID):
		return invalidRunID(c, c.Params("id"))
	case errors.Is(err, errRunNotFound):
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Success: false,
			Code:    "RUN_NOT_FOUND",
			Error:   "Run not found",
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "INTERNAL_ERROR",
			Error:   err.Error(),
		})
	}
}

func invalidRunID(c *fiber.Ctx, raw string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
		Success: false,
		Code:    "INVALID_RUN_ID",
		Error:   "Invalid run id: " + raw,
	})
}

// persistRun saves rec when a database is configured. A failed write is
// logged; the run itself already succeeded.
func persistRun(c *fiber.Ctx, rt *bootstrap.App, rec *runRecord) {
	if rt.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	var sources map[model.SourceKey]model.ScrapeResult
	if rec.Result != nil {
		sources = rec.Result.Sources
	}
	err := rt.Store.SaveRun(ctx, store.Run{
		ID:       rec.ID,
		Category: rec.Product.Category,
		SKU:      rec.Product.SKU,
		Product:  rec.Product,
		Sources:  sources,
		Matrix:   rec.Matrix,
		Final:    rec.Final,
		Log:      rec.Log,
		Error:    rec.Error,
	})
	if err != nil {
		loggerFrom(c).Warn("persist run failed", "run_id", rec.ID.String(), "error", err)
	}
}
