package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/blackmouse572/skin-doctor/internal/auth"
	"github.com/blackmouse572/skin-doctor/internal/camera"
	"github.com/blackmouse572/skin-doctor/internal/facequality"
	"github.com/blackmouse572/skin-doctor/internal/repository"
	"github.com/blackmouse572/skin-doctor/internal/usecase"
)

// MaxUploadSize limits the accepted image payload to 10 MiB.
const MaxUploadSize = 10 << 20

// multipartOverhead leaves room for boundaries and part headers around the image.
const multipartOverhead = 1 << 20

// ValidationService is the use case surface served over HTTP.
type ValidationService interface {
	ValidateImage(ctx context.Context, userID string, imageBytes []byte) (string, *facequality.ImageValidation, error)
	GetResult(ctx context.Context, userID, requestID string) (*repository.ValidationLog, error)
	GetMetricsSummary(ctx context.Context) (*usecase.MetricsSummary, error)
	ClassifyCameraError(userID, name, message string) camera.AccessFailure
}

// StreamHub runs live capture sessions over WebSocket.
type StreamHub interface {
	Serve(w http.ResponseWriter, r *http.Request, userID string) error
	Active() int
}

// Routes holds what RegisterRoutes wires. StreamAuth guards the WebSocket
// route and falls back to Auth when nil. MaxUploadBytes defaults to MaxUploadSize.
type Routes struct {
	UseCase        ValidationService
	Hub            StreamHub
	Auth           gin.HandlerFunc
	StreamAuth     gin.HandlerFunc
	MaxUploadBytes int64
}

type cameraErrorRequest struct {
	Name    string `json:"name" binding:"required,max=64"`
	Message string `json:"message" binding:"max=1024"`
}

type validationResponse struct {
	RequestID    string                      `json:"request_id"`
	Validation   facequality.ImageValidation `json:"validation"`
	SHA1Hash     string                      `json:"sha1_hash,omitempty"`
	ProcessingMs int64                       `json:"processing_ms"`
	CreatedAt    time.Time                   `json:"created_at"`
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, routes Routes) {
	maxUpload := routes.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = MaxUploadSize
	}
	streamAuth := routes.StreamAuth
	if streamAuth == nil {
		streamAuth = routes.Auth
	}

	router.GET("/health", func(c *gin.Context) {
		body := gin.H{"status": "ok"}
		if routes.Hub != nil {
			body["active_sessions"] = routes.Hub.Active()
		}
		c.JSON(http.StatusOK, body)
	})

	v1 := router.Group("/v1")

	api := v1.Group("")
	api.Use(routes.Auth)

	api.POST("/images/validate", func(c *gin.Context) {
		userID, ok := auth.GetUserID(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUpload+multipartOverhead)
		file, err := c.FormFile("image")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
			return
		}
		if file.Size > maxUpload {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
			return
		}
		if !strings.HasPrefix(file.Header.Get("Content-Type"), "image/") {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "only image uploads are supported"})
			return
		}

		src, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open image"})
			return
		}
		defer src.Close()

		data, err := io.ReadAll(src)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
			return
		}

		requestID, validation, err := routes.UseCase.ValidateImage(c.Request.Context(), userID, data)
		if err != nil {
			if errors.Is(err, usecase.ErrInvalidImage) {
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "image could not be decoded"})
				return
			}
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "validation failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"request_id": requestID,
			"validation": validation,
		})
	})

	api.GET("/images/validations/:id", func(c *gin.Context) {
		userID, ok := auth.GetUserID(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		requestID := c.Param("id")
		if requestID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
			return
		}

		log, err := routes.UseCase.GetResult(c.Request.Context(), userID, requestID)
		if err != nil {
			if errors.Is(err, usecase.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
				return
			}
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load result"})
			return
		}

		c.JSON(http.StatusOK, toValidationResponse(log))
	})

	api.GET("/metrics", func(c *gin.Context) {
		summary, err := routes.UseCase.GetMetricsSummary(c.Request.Context())
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load metrics"})
			return
		}
		c.JSON(http.StatusOK, summary)
	})

	api.POST("/camera/errors", func(c *gin.Context) {
		userID, _ := auth.GetUserID(c.Request.Context())

		var req cameraErrorRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
			return
		}

		c.JSON(http.StatusOK, routes.UseCase.ClassifyCameraError(userID, req.Name, req.Message))
	})

	v1.GET("/capture/stream", streamAuth, func(c *gin.Context) {
		if routes.Hub == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live capture unavailable"})
			return
		}
		userID, ok := auth.GetUserID(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		// Serve answers upgrade failures itself.
		if err := routes.Hub.Serve(c.Writer, c.Request, userID); err != nil {
			_ = c.Error(err)
		}
	})
}

func toValidationResponse(log *repository.ValidationLog) validationResponse {
	issues, warnings := log.Issues, log.Warnings
	if issues == nil {
		issues = []string{}
	}
	if warnings == nil {
		warnings = []string{}
	}
	return validationResponse{
		RequestID: log.RequestID,
		Validation: facequality.ImageValidation{
			IsValid:    log.Valid,
			HasFace:    log.FaceCount > 0,
			FaceCount:  log.FaceCount,
			Brightness: log.Brightness,
			Issues:     issues,
			Warnings:   warnings,
		},
		SHA1Hash:     log.SHA1Hash,
		ProcessingMs: log.ProcessingMs,
		CreatedAt:    log.CreatedAt,
	}
}
