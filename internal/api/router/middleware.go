package router

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/a1davida1/DomainEmpire-sub003/internal/idempotency"
)

// LoggerMiddleware logs HTTP requests with slog
func LoggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		logger.Info("HTTP Request",
			slog.Int("status", c.Writer.Status()),
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.String("ip", c.ClientIP()),
			slog.String("user_agent", c.Request.UserAgent()),
			slog.Duration("latency", latency),
			slog.Int("body_size", c.Writer.Size()),
		)

		if len(c.Errors) > 0 {
			for _, e := range c.Errors {
				logger.Error("Request error",
					slog.String("error", e.Error()),
					slog.Uint64("type", uint64(e.Type)),
				)
			}
		}
	}
}

// CORSMiddleware handles Cross-Origin Resource Sharing
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Idempotency-Key")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// IdempotencyHeader is the client-supplied replay-protection key.
const IdempotencyHeader = "X-Idempotency-Key"

// responseRecorder duplicates the response body so the idempotency
// store can persist it for replay.
type responseRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// IdempotencyMiddleware gives mutating routes at-most-once semantics
// keyed on X-Idempotency-Key. Omitting the header forfeits protection
// for that call; a completed original is replayed byte-identically; a
// still-running original surfaces as a conflict, not a server error.
func IdempotencyMiddleware(store idempotency.Store, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyHeader)
		if key == "" {
			c.Next()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		fingerprint := idempotency.Fingerprint(c.Request.Method, c.Request.URL.Path, body)
		res, err := store.BeginOrReplay(c.Request.Context(), key, c.Request.Method, c.Request.URL.Path, fingerprint)
		switch {
		case err == nil:
		case errors.Is(err, idempotency.ErrDuplicateInFlight):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"error": "a request with this idempotency key is still in flight",
			})
			return
		case errors.Is(err, idempotency.ErrKeyReused):
			c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
				"error": "idempotency key was already used for a different request",
			})
			return
		default:
			logger.Error("Idempotency lookup failed",
				slog.String("key", key),
				slog.Any("error", err),
			)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		if res.Replay != nil {
			c.Header("X-Idempotency-Replay", "true")
			c.Data(res.Replay.Status, "application/json", res.Replay.Body)
			c.Abort()
			return
		}

		recorder := &responseRecorder{ResponseWriter: c.Writer}
		c.Writer = recorder

		c.Next()

		if err := store.Complete(c.Request.Context(), res.Token, c.Writer.Status(), recorder.body.Bytes()); err != nil {
			logger.Error("Failed to store idempotency record",
				slog.String("key", key),
				slog.Any("error", err),
			)
		}
	}
}
