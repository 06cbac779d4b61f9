package http

import (
	"log"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// RequestLogger logs one line per request with its route, status, size and
// latency. Server errors are logged with a WARN prefix, and the trace id is
// added when the request is being traced.
func RequestLogger(next http.Handler, logger *log.Logger) http.Handler {
	if logger == nil {
		logger = log.Default()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		prefix := ""
		if rec.status >= http.StatusInternalServerError {
			prefix = "WARN: "
		}
		traceID := ""
		if sc := trace.SpanContextFromContext(r.Context()); sc.HasTraceID() {
			traceID = " trace_id=" + sc.TraceID().String()
		}
		logger.Printf(
			"%srequest method=%s path=%s status=%d bytes=%d duration=%s%s",
			prefix,
			r.Method,
			r.URL.Path,
			rec.status,
			rec.bytes,
			time.Since(start),
			traceID,
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	r.wroteHeader = true
	n, err := r.ResponseWriter.Write(p)
	r.bytes += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
