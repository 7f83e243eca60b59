package http

import (
	"time"

	"paxth/internal/model"
	"paxth/internal/reconcile"
)

// ErrorResponse is the error envelope shared by every endpoint.
type ErrorResponse struct {
	Success bool        `json:"success"`
	Code    string      `json:"code,omitempty"`
	Error   string      `json:"error"`
	Details interface{} `json:"details,omitempty"`
}

// DocumentUpload carries an uploaded spec sheet inside a JSON body.
type DocumentUpload struct {
	Filename      string `json:"filename"`
	ContentBase64 string `json:"contentBase64"`
}

// RunRequest starts one extraction run.
type RunRequest struct {
	model.Product
	Document *DocumentUpload `json:"document,omitempty"`
}

// RunResponse describes a run and its reconciliation state.
type RunResponse struct {
	Success    bool                                   `json:"success"`
	ID         string                                 `json:"id"`
	Category   string                                 `json:"category"`
	SKU        string                                 `json:"sku"`
	Headers    []string                               `json:"headers,omitempty"`
	Attributes []string                               `json:"attributes,omitempty"`
	Sources    map[model.SourceKey]model.ScrapeResult `json:"sources,omitempty"`
	Matrix     model.AttributeExtractionMatrix        `json:"matrix"`
	Final      model.FinalValueMap                    `json:"final"`
	Filled     int                                    `json:"filled"`
	Artifacts  []string                               `json:"artifacts,omitempty"`
	Log        []string                               `json:"log,omitempty"`
	CreatedAt  time.Time                              `json:"createdAt"`
}

// RunSummary is one entry of the run listing.
type RunSummary struct {
	ID        string    `json:"id"`
	Category  string    `json:"category"`
	SKU       string    `json:"sku"`
	CreatedAt time.Time `json:"createdAt"`
}

// ReconcileRequest applies one reconciliation policy to a run.
type ReconcileRequest = reconcile.Action

// ReconcileResponse returns the run's state after the action.
type ReconcileResponse struct {
	Success bool                            `json:"success"`
	Final   model.FinalValueMap             `json:"final"`
	Matrix  model.AttributeExtractionMatrix `json:"matrix"`
	Filled  int                             `json:"filled"`
}

// CategoryResponse describes one category template.
type CategoryResponse struct {
	Name                 string            `json:"name"`
	Attributes           []string          `json:"attributes"`
	ExtractionAttributes []string          `json:"extractionAttributes"`
	FormattingRules      map[string]string `json:"formattingRules,omitempty"`
}

// ArtifactResponse is one stored page text.
type ArtifactResponse struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

func newRunResponse(rec *runRecord) RunResponse {
	resp := RunResponse{
		Success:   rec.Error == "",
		ID:        rec.ID.String(),
		Category:  rec.Product.Category,
		SKU:       rec.Product.SKU,
		Matrix:    rec.Matrix,
		Final:     rec.Final,
		Filled:    rec.Final.Filled(),
		Log:       rec.Log,
		CreatedAt: rec.CreatedAt,
	}
	if rec.Result != nil {
		resp.Headers = rec.Result.Headers
		resp.Attributes = rec.Result.Attributes
		resp.Sources = rec.Result.Sources
		resp.Artifacts = rec.Result.Artifacts
	}
	return resp
}
