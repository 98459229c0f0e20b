package handlers

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/aerofindr/internal/auth"
	"github.com/example/aerofindr/internal/logging"
	"github.com/example/aerofindr/internal/photos"
	"github.com/example/aerofindr/internal/usecase"
)

// MaxUploadSize is the default per-photo upload limit.
const MaxUploadSize = 10 << 20

// multipartOverhead leaves room for boundaries and part headers around a
// photo that is exactly at the limit.
const multipartOverhead = 64 << 10

// Options tune the HTTP surface.
type Options struct {
	MaxUploadBytes int64
	WaitTimeout    time.Duration
	Logger         *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxUploadBytes <= 0 {
		o.MaxUploadBytes = MaxUploadSize
	}
	if o.WaitTimeout <= 0 {
		o.WaitTimeout = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

type selectPhotoRequest struct {
	Handle string `json:"handle"`
}

type api struct {
	uc     *usecase.FlightLookupUseCase
	store  photos.Store
	opts   Options
	logger *zap.Logger
}

// RegisterRoutes wires the HTTP handlers to the Gin router. Every route but
// /health sits behind authMiddleware, whose subject names the session.
func RegisterRoutes(router *gin.Engine, uc *usecase.FlightLookupUseCase, store photos.Store, authMiddleware gin.HandlerFunc, opts Options) {
	opts = opts.withDefaults()
	a := &api{uc: uc, store: store, opts: opts, logger: opts.Logger.Named("http")}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	secured := router.Group("/", authMiddleware)
	secured.POST("/photos", a.uploadPhoto)
	secured.POST("/lookups", a.lookupImage)
	secured.POST("/lookups/photo", a.lookupSelectedPhoto)
	secured.GET("/lookups/state", a.state)
	secured.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, uc.Metrics())
	})
}

func (a *api) uploadPhoto(c *gin.Context) {
	if a.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "photo storage is not configured"})
		return
	}
	data, contentType, ok := a.readImage(c)
	if !ok {
		return
	}

	requestID := uuid.NewString()
	handle, err := a.store.Put(c.Request.Context(), data, contentType)
	if err != nil {
		logging.WithOperation(a.logger, "http.upload_photo", requestID).Error("failed to store photo", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store photo", "request_id": requestID})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"handle": handle})
}

func (a *api) lookupImage(c *gin.Context) {
	sessionID, ok := sessionFrom(c)
	if !ok {
		return
	}
	data, _, ok := a.readImage(c)
	if !ok {
		return
	}
	a.respond(c, sessionID, a.uc.ProcessImage(c.Request.Context(), sessionID, data))
}

func (a *api) lookupSelectedPhoto(c *gin.Context) {
	sessionID, ok := sessionFrom(c)
	if !ok {
		return
	}
	var body selectPhotoRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	// An empty handle is still a request: it settles as a load failure.
	a.respond(c, sessionID, a.uc.ProcessSelectedPhoto(c.Request.Context(), sessionID, strings.TrimSpace(body.Handle)))
}

func (a *api) state(c *gin.Context) {
	sessionID, ok := sessionFrom(c)
	if !ok {
		return
	}
	st, err := a.uc.State(c.Request.Context(), sessionID)
	if err != nil {
		logging.WithOperation(a.logger, "http.state", sessionID).Error("failed to load state", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load state"})
		return
	}
	c.JSON(http.StatusOK, st)
}

// respond answers 202 with the loading snapshot, or with ?wait=true blocks
// until the request settles.
func (a *api) respond(c *gin.Context, sessionID string, req *usecase.Request) {
	wait, _ := strconv.ParseBool(c.Query("wait"))
	if wait {
		ctx, cancel := context.WithTimeout(c.Request.Context(), a.opts.WaitTimeout)
		defer cancel()
		outcome, err := req.Wait(ctx)
		if err == nil {
			st, stErr := a.uc.State(c.Request.Context(), sessionID)
			if stErr != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load state"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"outcome": outcome, "state": st})
			return
		}
		a.logger.Debug("wait for lookup timed out",
			zap.String("session_id", sessionID),
			zap.Uint64("generation", req.Generation()),
			zap.Error(err),
		)
	}

	st, err := a.uc.State(c.Request.Context(), sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load state"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"generation": req.Generation(), "state": st})
}

// readImage pulls the "image" part out of a multipart body, enforcing the
// size limit and an image/* content type. It writes the error response itself.
func (a *api) readImage(c *gin.Context) ([]byte, string, bool) {
	limit := a.opts.MaxUploadBytes
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)

	file, err := c.FormFile("image")
	if err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			tooLarge(c, limit)
		case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
			c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart body"})
		}
		return nil, "", false
	}
	if file.Size > limit {
		tooLarge(c, limit)
		return nil, "", false
	}

	contentType := file.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "image content type required"})
		return nil, "", false
	}

	data, err := readPart(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
		return nil, "", false
	}
	return data, contentType, true
}

func readPart(file *multipart.FileHeader) ([]byte, error) {
	src, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return io.ReadAll(src)
}

func sessionFrom(c *gin.Context) (string, bool) {
	sessionID, ok := auth.GetSessionID(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing session"})
		return "", false
	}
	return sessionID, true
}

func tooLarge(c *gin.Context, limit int64) {
	c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit", "limit_bytes": limit})
}
