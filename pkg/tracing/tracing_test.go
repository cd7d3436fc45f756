package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/vanilla/proftimers/pkg/logging"
)

func TestInitTracer_Disabled(t *testing.T) {
	p, err := InitTracer(Config{ServiceName: "proftimers"}, logging.NewLogger(logging.ERROR, false))
	require.NoError(t, err)
	assert.NotNil(t, p.Tracer())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestHTTPMiddleware_UsesRouteTemplate(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	p := NewProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)), "test")

	router := mux.NewRouter()
	router.Use(HTTPMiddleware(p))
	router.HandleFunc("/demo/{name}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/demo/slow", nil))

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /demo/{name}", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestRouteName_Unmatched(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/raw/path", nil)
	assert.Equal(t, "POST /raw/path", RouteName(r))
}

func TestConfig_Sampler(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), Config{}.sampler().Description())
	assert.Equal(t, sdktrace.AlwaysSample().Description(), Config{SampleRatio: 1}.sampler().Description())
	assert.Contains(t, Config{SampleRatio: 0.5}.sampler().Description(), "TraceIDRatioBased{0.5}")
}
