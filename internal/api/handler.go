// Package api exposes the analysis service over HTTP with gin.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"statsuite/app"
	"statsuite/domain/result"
	"statsuite/domain/run"
	"statsuite/domain/structure"
	"statsuite/internal"
	"statsuite/internal/dispatch"
	"statsuite/internal/errors"
)

// Handler serves the /v1 routes
type Handler struct {
	service *app.AnalysisService
	logger  *internal.Logger
}

// NewHandler creates the HTTP handler
func NewHandler(service *app.AnalysisService, logger *internal.Logger) *Handler {
	if logger == nil {
		logger = internal.NewNopLogger()
	}
	return &Handler{service: service, logger: logger}
}

// Register mounts every route on r
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/healthz", h.Health)
	v1 := r.Group("/v1")
	{
		v1.POST("/analyze", h.Analyze)
		v1.POST("/classify", h.Classify)
		v1.GET("/methods", h.Methods)
		v1.GET("/provenance", h.Provenance)
	}
}

// NewRouter builds a gin engine with recovery, request logging and the routes
func NewRouter(h *Handler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(h.logger))
	h.Register(router)
	return router
}

// RequestLogger logs one line per request through the application logger
func RequestLogger(logger *internal.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		if status >= http.StatusInternalServerError {
			logger.Error("%s %s -> %d in %s: %s", c.Request.Method, c.Request.URL.Path, status, time.Since(start), c.Errors.String())
			return
		}
		logger.Debug("%s %s -> %d in %s", c.Request.Method, c.Request.URL.Path, status, time.Since(start))
	}
}

// Health reports liveness
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Analyze runs a dispatch over an inline dataset
func (h *Handler) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, errors.InvalidInput("invalid request body: "+err.Error()), nil)
		return
	}
	data, err := req.Dataset.Build()
	if err != nil {
		abort(c, errors.WithCode(errors.CodeInvalidInput, err), nil)
		return
	}
	opts := dispatch.AnalyzeOptions{
		Method:       req.Method,
		Params:       req.Params,
		MethodParams: req.MethodParams,
	}
	if req.Kind != "" {
		kind, ok := structure.ParseKind(req.Kind)
		if !ok {
			abort(c, errors.InvalidInput("unknown kind "+strconv.Quote(req.Kind)), nil)
			return
		}
		opts.Kind = kind
	}
	if req.Metric != "" {
		metric, ok := result.ParseMetric(req.Metric)
		if !ok {
			abort(c, errors.InvalidInput("unknown metric "+strconv.Quote(req.Metric)), nil)
			return
		}
		opts.Metric = metric
	}

	report, err := h.service.Analyze(c.Request.Context(), app.AnalyzeRequest{Dataset: data, Options: opts, Average: req.Average})
	if err != nil {
		var partial interface{}
		if report != nil {
			partial = report
		}
		abort(c, err, partial)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Classify detects the structure of an inline dataset and lists candidates
func (h *Handler) Classify(c *gin.Context) {
	var req ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, errors.InvalidInput("invalid request body: "+err.Error()), nil)
		return
	}
	data, err := req.Dataset.Build()
	if err != nil {
		abort(c, errors.WithCode(errors.CodeInvalidInput, err), nil)
		return
	}
	var kind structure.Kind
	if req.Kind != "" {
		var ok bool
		if kind, ok = structure.ParseKind(req.Kind); !ok {
			abort(c, errors.InvalidInput("unknown kind "+strconv.Quote(req.Kind)), nil)
			return
		}
	}
	out, err := h.service.Classify(data, kind)
	if err != nil {
		abort(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, out)
}

// Methods lists registered methods, optionally filtered by ?kind=
func (h *Handler) Methods(c *gin.Context) {
	var kind structure.Kind
	if q := c.Query("kind"); q != "" {
		var ok bool
		if kind, ok = structure.ParseKind(q); !ok {
			abort(c, errors.InvalidInput("unknown kind "+strconv.Quote(q)), nil)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"methods": h.service.Methods(kind)})
}

// Provenance queries attempt records by ?method=&kind=&outcome=&mode=&limit=
func (h *Handler) Provenance(c *gin.Context) {
	filter := run.Filter{
		Method:        c.Query("method"),
		StructureKind: structure.Kind(c.Query("kind")),
		Outcome:       run.Outcome(c.Query("outcome")),
		Mode:          run.Mode(c.Query("mode")),
	}
	if q := c.Query("limit"); q != "" {
		limit, err := strconv.Atoi(q)
		if err != nil || limit < 0 {
			abort(c, errors.InvalidInput("limit must be a non-negative integer"), nil)
			return
		}
		filter.Limit = limit
	}
	records, err := h.service.Provenance(c.Request.Context(), filter)
	if err != nil {
		abort(c, err, nil)
		return
	}
	if records == nil {
		records = []run.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "count": len(records)})
}
