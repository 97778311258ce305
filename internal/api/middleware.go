package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pollpulse/pollpulse/internal/models"
	"github.com/pollpulse/pollpulse/internal/realtime"
	"github.com/pollpulse/pollpulse/pkg/logger"
)

// Middleware is a function that wraps an HTTP handler
type Middleware func(http.Handler) http.Handler

// ChainMiddleware chains multiple middleware functions together
func ChainMiddleware(middlewares ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// CORSMiddleware handles CORS headers
func CORSMiddleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Anon-Token")
			w.Header().Set("Access-Control-Max-Age", "3600")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(wrapped, r)

			logger.Info("HTTP request",
				logger.String("method", r.Method),
				logger.String("path", r.URL.Path),
				logger.String("remote_addr", r.RemoteAddr),
				logger.Int("status", wrapped.statusCode),
				logger.Duration("duration", time.Since(start)),
			)
		})
	}
}

// RecoveryMiddleware turns handler panics into JSON 500 responses
func RecoveryMiddleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("Panic in handler",
						logger.String("path", r.URL.Path),
						logger.Any("error", err),
					)
					respondWithError(w, http.StatusInternalServerError, "Internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitMiddleware implements simple per-IP rate limiting
func RateLimitMiddleware(requestsPerSecond int) Middleware {
	type clientInfo struct {
		count     int
		lastReset time.Time
	}

	clients := make(map[string]*clientInfo)
	var mu sync.Mutex

	go func() {
		ticker := time.NewTicker(1 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			mu.Lock()
			now := time.Now()
			for key, info := range clients {
				if now.Sub(info.lastReset) > 1*time.Minute {
					delete(clients, key)
				}
			}
			mu.Unlock()
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := getClientIP(r)
			now := time.Now()

			mu.Lock()
			info, exists := clients[clientIP]
			if !exists || now.Sub(info.lastReset) >= 1*time.Second {
				clients[clientIP] = &clientInfo{count: 1, lastReset: now}
				mu.Unlock()
				next.ServeHTTP(w, r)
				return
			}

			info.count++
			if info.count > requestsPerSecond {
				mu.Unlock()
				respondWithError(w, http.StatusTooManyRequests, "Rate limit exceeded")
				return
			}
			mu.Unlock()

			next.ServeHTTP(w, r)
		})
	}
}

type contextKey string

const identityKey contextKey = "identity"

// IdentityMiddleware resolves the request's identity (JWT user or
// anonymous token) and stores it on the request context.
func IdentityMiddleware(auth *realtime.AuthManager) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := auth.IdentityFromRequest(r)
			ctx := context.WithValue(r.Context(), identityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromContext retrieves the identity stored by IdentityMiddleware.
func IdentityFromContext(ctx context.Context) models.Identity {
	if identity, ok := ctx.Value(identityKey).(models.Identity); ok {
		return identity
	}
	return models.Identity{}
}

// Helper functions

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": message,
		"code":  code,
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

// respondWithDomainError maps the error taxonomy onto HTTP statuses.
func respondWithDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrPollNotFound),
		errors.Is(err, models.ErrOptionNotFound),
		errors.Is(err, models.ErrVoteNotFound),
		errors.Is(err, models.ErrLikeNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())

	case errors.Is(err, models.ErrDuplicateVote),
		errors.Is(err, models.ErrAlreadyLiked),
		errors.Is(err, models.ErrNotLiked),
		errors.Is(err, models.ErrSlugTaken):
		respondWithError(w, http.StatusConflict, err.Error())

	case errors.Is(err, models.ErrPollExpired):
		respondWithError(w, http.StatusGone, err.Error())

	case errors.Is(err, models.ErrPollInactive),
		errors.Is(err, models.ErrInvalidOption),
		errors.Is(err, models.ErrMultipleNotAllowed),
		errors.Is(err, models.ErrNoOptionsSelected),
		errors.Is(err, models.ErrTooFewOptions),
		errors.Is(err, models.ErrOptionHasVotes),
		errors.Is(err, models.ErrDuplicatePosition),
		errors.Is(err, models.ErrInvalidIdentity):
		respondWithError(w, http.StatusUnprocessableEntity, err.Error())

	case errors.Is(err, models.ErrForbidden):
		respondWithError(w, http.StatusForbidden, err.Error())

	default:
		logger.Error("Unhandled error", logger.ErrorField(err))
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func getClientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		if idx := strings.Index(ip, ","); idx != -1 {
			return strings.TrimSpace(ip[:idx])
		}
		return ip
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if idx := strings.LastIndex(r.RemoteAddr, ":"); idx != -1 {
		return r.RemoteAddr[:idx]
	}
	return r.RemoteAddr
}
