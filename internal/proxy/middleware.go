package proxy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/raaihank/lexmask/internal/jsonedit"
	"github.com/raaihank/lexmask/internal/privacy"
	"github.com/raaihank/lexmask/internal/security"
	"github.com/raaihank/lexmask/internal/websocket"
	"go.uber.org/zap"
)

type contextKey int

const requestIDKey contextKey = iota

// loggingMiddleware assigns a request ID and logs the request
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey, requestID))
		w.Header().Set("X-Request-ID", requestID)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		log := s.logger.WithRequestID(requestID)

		log.Debug("HTTP request started",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
		)

		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		log.Info("HTTP request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status_code", rw.statusCode),
			zap.Duration("duration", duration),
			zap.Int("response_size", rw.size),
		)

		s.wsHub.BroadcastEvent(websocket.Event{
			Type:      websocket.EventTypeRequestLog,
			RequestID: requestID,
			Data: websocket.RequestLogEvent{
				RequestID:    requestID,
				Method:       r.Method,
				Path:         r.URL.Path,
				StatusCode:   rw.statusCode,
				ClientIP:     s.trusted.ClientIP(r),
				Duration:     duration,
				ResponseSize: int64(rw.size),
			},
		})
	})
}

// rateLimitMiddleware rejects clients that exceed their token bucket
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := s.trusted.ClientIP(r)
		if !s.limiter.Allow(ip) {
			s.logger.WithRequestID(getRequestID(r.Context())).Warn("Rate limit exceeded", zap.String("client_ip", ip))
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authMiddleware requires the configured API credentials.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !security.CheckBasicAuth(r, s.config.Server.Username, s.config.Server.Password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="lexmask"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// privacyMiddleware redacts the request body before it is forwarded. A body
// that cannot be redacted is never forwarded.
func (s *Server) privacyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.config.Privacy.Enabled || r.Body == nil || r.Body == http.NoBody {
			next.ServeHTTP(w, r)
			return
		}

		requestID := getRequestID(r.Context())
		log := s.logger.WithRequestID(requestID)
		start := time.Now()

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes()))
		r.Body.Close()
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			log.Error("Failed to read request body", zap.Error(err))
			writeError(w, http.StatusBadRequest, "failed to read request")
			return
		}

		masked, findings, err := s.redactBody(r.Context(), body, r.Header.Get("Content-Type"))
		if err != nil {
			s.writeRedactError(w, log, err)
			return
		}

		if len(findings) > 0 {
			log.Info("Sensitive data masked in request",
				zap.Int("total_findings", totalFindings(findings)),
				zap.Any("findings", findings),
			)
			s.broadcastRedaction(requestID, "proxy", r.URL.Path, findings, time.Since(start))
		}

		r.Body = io.NopCloser(bytes.NewReader(masked))
		r.ContentLength = int64(len(masked))
		r.Header.Set("Content-Length", strconv.Itoa(len(masked)))

		next.ServeHTTP(w, r)
	})
}

// redactBody redacts string values of a JSON body, or the whole body for
// any other content.
func (s *Server) redactBody(ctx context.Context, body []byte, contentType string) ([]byte, []privacy.Finding, error) {
	if len(body) == 0 {
		return body, nil, nil
	}

	var findings []privacy.Finding
	redact := func(text string) (string, error) {
		res, err := s.engine.Redact(ctx, text)
		if err != nil {
			return "", err
		}
		findings = mergeFindings(findings, res.Findings)
		return res.Text, nil
	}

	if isJSON(contentType) {
		out, err := jsonedit.MapStrings(body, func(_ string, _ int, text string) (string, error) {
			return redact(text)
		})
		if err == nil {
			return out, findings, nil
		}
		if !errors.Is(err, jsonedit.ErrInvalid) {
			return nil, nil, err
		}
	}

	text, err := redact(string(body))
	if err != nil {
		return nil, nil, err
	}
	return []byte(text), findings, nil
}

// restoreResponse replaces tokens in a buffered upstream response. Streams
// and encoded bodies are passed through untouched.
func (s *Server) restoreResponse(resp *http.Response) error {
	contentType := resp.Header.Get("Content-Type")
	if !isRestorable(contentType) {
		return nil
	}
	if enc := resp.Header.Get("Content-Encoding"); enc != "" && enc != "identity" {
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return err
	}

	var restored []byte
	if isJSON(contentType) {
		restored, err = jsonedit.MapStrings(body, func(_ string, _ int, text string) (string, error) {
			return s.engine.Restore(text), nil
		})
	}
	if !isJSON(contentType) || err != nil {
		restored = []byte(s.engine.Restore(string(body)))
	}

	resp.Body = io.NopCloser(bytes.NewReader(restored))
	resp.ContentLength = int64(len(restored))
	resp.Header.Set("Content-Length", strconv.Itoa(len(restored)))
	return nil
}

func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}

func isJSON(contentType string) bool {
	mt := mediaType(contentType)
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

func isRestorable(contentType string) bool {
	mt := mediaType(contentType)
	if mt == "text/event-stream" {
		return false
	}
	return isJSON(mt) || strings.HasPrefix(mt, "text/") || mt == "application/x-ndjson"
}

func (s *Server) maxBodyBytes() int64 {
	if s.config.Server.MaxBodyBytes > 0 {
		return s.config.Server.MaxBodyBytes
	}
	return 1 << 20
}

func (s *Server) broadcastRedaction(requestID, source, path string, findings []privacy.Finding, elapsed time.Duration) {
	s.wsHub.BroadcastEvent(websocket.Event{
		Type:      websocket.EventTypeRedaction,
		RequestID: requestID,
		Data: websocket.RedactionEvent{
			RequestID:     requestID,
			Source:        source,
			Path:          path,
			Findings:      findings,
			TotalFindings: totalFindings(findings),
			ProcessingMS:  float64(elapsed.Microseconds()) / 1000,
		},
	})
}

func mergeFindings(into, more []privacy.Finding) []privacy.Finding {
	for _, f := range more {
		merged := false
		for i := range into {
			if into[i].Detector == f.Detector && into[i].Category == f.Category {
				into[i].Count += f.Count
				merged = true
				break
			}
		}
		if !merged {
			into = append(into, f)
		}
	}
	return into
}

func totalFindings(findings []privacy.Finding) int {
	n := 0
	for _, f := range findings {
		n += f.Count
	}
	return n
}

// responseWriter wraps http.ResponseWriter to capture response data
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size
	return size, err
}

// Flush lets streamed upstream responses through the wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// getRequestID extracts request ID from context
func getRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return "unknown"
}
