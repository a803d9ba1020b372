// Package handler provides HTTP handlers for the document QA service.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/docquery/internal/docquery/biz"
	"github.com/kart-io/docquery/internal/docquery/metrics"
	"github.com/kart-io/docquery/internal/docquery/store"
	"github.com/kart-io/docquery/internal/pkg/middleware"
)

// askTimeout bounds a whole batch request.
const askTimeout = 300 * time.Second

// Handler handles document QA HTTP requests.
type Handler struct {
	service biz.Service
}

// New creates a new Handler.
func New(service biz.Service) *Handler {
	return &Handler{service: service}
}

// SuccessResponse is a standard success response.
type SuccessResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// IngestRequest represents a document ingestion request.
type IngestRequest struct {
	Name   string `json:"name" binding:"required"`
	Domain string `json:"domain"`
	Text   string `json:"text" binding:"required"`
}

// Ingest chunks, embeds and indexes a document.
func (h *Handler) Ingest(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}

	doc, err := h.service.ProcessDocument(c.Request.Context(), req.Name, req.Domain, req.Text)
	if err != nil {
		logger.Errorw("document ingestion failed",
			"request_id", middleware.RequestIDFrom(c), "error", err.Error())
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "document indexed", Data: doc})
}

// AskRequest represents a batch question request.
type AskRequest struct {
	Questions   []string `json:"questions" binding:"required,min=1"`
	DocumentIDs []string `json:"document_ids"`
	Domain      string   `json:"domain"`
	TopK        int      `json:"top_k"`
	Hybrid      bool     `json:"hybrid"`
	Parallel    bool     `json:"parallel"`
	Models      []string `json:"models"`
}

// Ask runs a batch question session.
func (h *Handler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), askTimeout)
	defer cancel()

	session, err := h.service.Ask(ctx, req.Questions, &biz.BatchOptions{
		DocumentIDs: req.DocumentIDs,
		Domain:      req.Domain,
		TopK:        req.TopK,
		Hybrid:      req.Hybrid,
		Parallel:    req.Parallel,
		Models:      req.Models,
	})
	if err != nil {
		logger.Errorw("batch session failed",
			"request_id", middleware.RequestIDFrom(c), "error", err.Error())
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: session})
}

// SearchRequest represents a retrieval-only request.
type SearchRequest struct {
	Query       string   `json:"query" binding:"required"`
	TopK        int      `json:"top_k"`
	DocumentIDs []string `json:"document_ids"`
	Sections    []string `json:"sections"`
	Hybrid      bool     `json:"hybrid"`
	Keywords    []string `json:"keywords"`
}

// Search performs retrieval without answer synthesis.
func (h *Handler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: 400, Message: err.Error()})
		return
	}

	var filter *store.Filter
	if len(req.DocumentIDs) > 0 || len(req.Sections) > 0 {
		filter = &store.Filter{DocumentIDs: req.DocumentIDs, Sections: req.Sections}
	}

	results, err := h.service.Search(c.Request.Context(), &biz.RetrieveRequest{
		Question: req.Query,
		TopK:     req.TopK,
		Filter:   filter,
		Hybrid:   req.Hybrid,
		Keywords: req.Keywords,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: results})
}

// ListDocuments lists all ingested documents.
func (h *Handler) ListDocuments(c *gin.Context) {
	docs, err := h.service.ListDocuments(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: docs})
}

// GetDocument returns one document's metadata.
func (h *Handler) GetDocument(c *gin.Context) {
	doc, err := h.service.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Code: 404, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: doc})
}

// DeleteDocument removes a document and its indexed chunks.
func (h *Handler) DeleteDocument(c *gin.Context) {
	if err := h.service.DeleteDocument(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Code: 404, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "document deleted"})
}

// Stats returns service statistics.
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.service.GetStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: 500, Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{Code: 0, Message: "success", Data: stats})
}

// Metrics exposes Prometheus-format pipeline metrics.
func (h *Handler) Metrics(c *gin.Context) {
	c.String(http.StatusOK, metrics.GetPipelineMetrics().Export("docquery", "pipeline"))
}

// Healthz is a liveness probe.
func (h *Handler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
