package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/face-service/internal/face"
	"github.com/example/face-service/internal/usecase"
)

// MaxUploadSize is the default image size limit in bytes.
const MaxUploadSize = 10 << 20

// multipartOverhead leaves room for boundaries and the embedding field
// on top of the image itself.
const multipartOverhead = 64 << 10

// FaceService is the use case behind /extract and /compare.
type FaceService interface {
	Extract(ctx context.Context, data []byte) (face.Embedding, error)
	Compare(ctx context.Context, data []byte, reference string) (face.MatchResult, error)
}

// OutcomeService serves recorded outcomes.
type OutcomeService interface {
	Get(ctx context.Context, requestID string) (*usecase.Outcome, error)
	Duplicates(ctx context.Context, requestID string) (*usecase.DuplicateReport, error)
	Summary(ctx context.Context) (*usecase.Summary, error)
}

// Options tune the routes registered by RegisterRoutes.
type Options struct {
	// MaxUploadBytes limits the image part; zero means MaxUploadSize.
	MaxUploadBytes int64
	// Outcomes enables the audit lookup routes when set.
	Outcomes OutcomeService
	// MetricsHandler is served on /metrics when set.
	MetricsHandler http.Handler
	Logger         *zap.Logger
}

type extractResponse struct {
	Success   bool           `json:"success"`
	Embedding face.Embedding `json:"embedding,omitempty"`
	Error     string         `json:"error,omitempty"`
}

type compareResponse struct {
	Match    bool     `json:"match"`
	Distance *float64 `json:"distance,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, uc FaceService, opts Options) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxBytes := opts.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = MaxUploadSize
	}

	router.Use(RequestID(), AccessLog(logger), Metrics(), Recovery(logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if opts.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(opts.MetricsHandler))
	}

	router.POST("/extract", func(c *gin.Context) {
		data, reqErr := readImage(c, maxBytes)
		if reqErr != nil {
			c.JSON(reqErr.status, extractResponse{Error: reqErr.message})
			return
		}

		embedding, err := uc.Extract(c.Request.Context(), data)
		if err != nil {
			status, message := extractionStatus(err)
			c.JSON(status, extractResponse{Error: message})
			return
		}

		c.JSON(http.StatusOK, extractResponse{Success: true, Embedding: embedding})
	})

	router.POST("/compare", func(c *gin.Context) {
		data, reqErr := readImage(c, maxBytes)
		if reqErr != nil {
			c.JSON(reqErr.status, compareResponse{Error: reqErr.message})
			return
		}
		if len(data) == 0 {
			c.JSON(http.StatusBadRequest, compareResponse{Error: msgEmptyImage})
			return
		}

		reference := c.PostForm("embedding")
		if strings.TrimSpace(reference) == "" {
			c.JSON(http.StatusBadRequest, compareResponse{Error: msgNoEmbedding})
			return
		}

		result, err := uc.Compare(c.Request.Context(), data, reference)
		if err != nil {
			status, message := comparisonStatus(err)
			c.JSON(status, compareResponse{Error: message})
			return
		}

		c.JSON(http.StatusOK, compareResponse{Match: result.Match, Distance: &result.Distance})
	})

	if opts.Outcomes != nil {
		registerOutcomeRoutes(router, opts.Outcomes)
	}
}

func registerOutcomeRoutes(router *gin.Engine, outcomes OutcomeService) {
	router.GET("/outcomes/:id", func(c *gin.Context) {
		outcome, err := outcomes.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(outcomeErrorStatus(err), gin.H{"error": outcomeErrorMessage(err)})
			return
		}
		c.JSON(http.StatusOK, outcome)
	})

	router.GET("/outcomes/:id/duplicates", func(c *gin.Context) {
		report, err := outcomes.Duplicates(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(outcomeErrorStatus(err), gin.H{"error": outcomeErrorMessage(err)})
			return
		}
		c.JSON(http.StatusOK, report)
	})

	router.GET("/summary", func(c *gin.Context) {
		summary, err := outcomes.Summary(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute summary"})
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}

func outcomeErrorStatus(err error) int {
	if errors.Is(err, usecase.ErrOutcomeNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func outcomeErrorMessage(err error) string {
	if errors.Is(err, usecase.ErrOutcomeNotFound) {
		return msgOutcomeMissing
	}
	return "failed to load outcome"
}

// readImage returns the bytes of the multipart "image" part.
func readImage(c *gin.Context, maxBytes int64) ([]byte, *requestError) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+multipartOverhead)

	file, err := c.FormFile("image")
	if err != nil {
		if isTooLarge(err) {
			return nil, &requestError{status: http.StatusRequestEntityTooLarge, message: msgTooLarge}
		}
		return nil, &requestError{status: http.StatusBadRequest, message: msgNoImage}
	}
	if file.Size > maxBytes {
		return nil, &requestError{status: http.StatusRequestEntityTooLarge, message: msgTooLarge}
	}

	src, err := file.Open()
	if err != nil {
		return nil, &requestError{status: http.StatusInternalServerError, message: withDetail(msgException, err)}
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, &requestError{status: http.StatusInternalServerError, message: withDetail(msgException, err)}
	}
	return data, nil
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}
