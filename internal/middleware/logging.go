package middleware

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/adscanner-go/internal/metrics"
	"github.com/Rorqualx/adscanner-go/internal/security"
)

// metricPaths are the paths recorded under their own label; anything else
// is counted as "other" to keep label cardinality bounded.
var metricPaths = map[string]bool{
	"/upload_ad": true,
	"/health":    true,
	"/ads":       true,
}

// maskIP masks an IP address for privacy in logs.
// IPv4 keeps the /24, IPv6 the /48.
func maskIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return "[redacted]"
	}

	if ip4 := ip.To4(); ip4 != nil {
		return ip4.Mask(net.CIDRMask(24, 32)).String() + "/24"
	}
	return ip.Mask(net.CIDRMask(48, 128)).String() + "/48"
}

// responseWriter wraps http.ResponseWriter to capture the status code and
// body size.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += n
	return n, err
}

// Flush implements http.Flusher.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Logging returns middleware that logs each request and records it in the
// HTTP request metrics. Client IPs are masked and query secrets redacted.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)

		path := r.URL.Path
		if !metricPaths[path] {
			path = "other"
		}
		metrics.RecordHTTPRequest(path, strconv.Itoa(wrapped.statusCode), duration)

		event := log.Info()
		if wrapped.statusCode >= http.StatusInternalServerError {
			event = log.Warn()
		}
		event.
			Str("method", r.Method).
			Str("path", security.RedactURL(r.URL.String())).
			Str("remote_addr", maskIP(r.RemoteAddr)).
			Int("status", wrapped.statusCode).
			Int("bytes", wrapped.written).
			Dur("duration", duration).
			Msg("Request completed")
	})
}
