package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pbinitiative/zenflow/internal/config"
	otelint "github.com/pbinitiative/zenflow/internal/otel"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

type respWriterWrapper struct {
	http.ResponseWriter

	written     int64
	statusCode  int
	wroteHeader bool
}

func (w *respWriterWrapper) Write(p []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(p)
	w.written += int64(n)
	return n, err
}

func (w *respWriterWrapper) WriteHeader(statusCode int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// Opentelemetry returns middleware that will trace and meter incoming requests.
// Spans are started by otelhttp and renamed to the matched chi route.
func Opentelemetry(conf config.Config) func(next http.Handler) http.Handler {
	traced := otelhttp.NewMiddleware("request",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
	return func(next http.Handler) http.Handler {
		return traced(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			span := trace.SpanFromContext(r.Context())
			span.SetAttributes(getTransferHeaderAttributes(r, conf.Tracing.TransferHeaders)...)
			r = r.WithContext(getTransferHeadersCtx(r.Context(), r, conf.Tracing.TransferHeaders))

			rww := &respWriterWrapper{ResponseWriter: w}
			startTime := time.Now()
			next.ServeHTTP(rww, r)

			pattern := routePattern(r)
			span.SetName(r.Method + " " + pattern)
			if rww.written > 0 {
				span.SetAttributes(otelint.WroteBytesKey.Int64(rww.written))
			}
			setAfterServeMetrics(pattern, r, rww, startTime)
		}))
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return r.URL.Path
}

func setAfterServeMetrics(routePattern string, r *http.Request, rww *respWriterWrapper, startTime time.Time) {
	if otelint.RequestTotal == nil {
		return
	}
	statusCode := rww.statusCode
	if statusCode == 0 {
		statusCode = http.StatusOK
	}
	tags := metric.WithAttributes(
		attribute.String("path", routePattern),
		attribute.String("method", r.Method),
		attribute.Int("status", statusCode),
	)
	otelint.RequestTotal.Add(r.Context(), 1)
	otelint.RequestUriTotal.Add(r.Context(), 1, tags)
	if r.ContentLength >= 0 {
		otelint.RequestBodySize.Add(r.Context(), float64(r.ContentLength), tags)
	}
	if rww.written > 0 {
		otelint.ResponseBodySize.Add(r.Context(), float64(rww.written), tags)
	}
	otelint.RequestDuration.Record(r.Context(), float64(time.Since(startTime).Microseconds())/1000, tags)
}

func getTransferHeadersCtx(ctx context.Context, r *http.Request, transferHeaders []string) context.Context {
	for _, header := range transferHeaders {
		ctx = context.WithValue(ctx, otelint.TransferHeaderKey(header), r.Header.Get(header))
	}
	return ctx
}

func getTransferHeaderAttributes(r *http.Request, transferHeaders []string) []attribute.KeyValue {
	attributes := make([]attribute.KeyValue, len(transferHeaders))
	for i, header := range transferHeaders {
		attributes[i] = attribute.String(header, r.Header.Get(header))
	}
	return attributes
}
