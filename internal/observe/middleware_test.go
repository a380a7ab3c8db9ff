package observe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// newInstrumentedHandler builds a middleware-wrapped handler together with
// the metric reader and span exporter backing it.
func newInstrumentedHandler(t *testing.T, inner http.HandlerFunc) (http.Handler, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	origTP := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(origTP) })

	return Middleware(m)(inner), reader, exp
}

func TestMiddleware_CorrelationIDAndSpan(t *testing.T) {
	var capturedCID string
	handler, _, exp := newInstrumentedHandler(t, func(w http.ResponseWriter, r *http.Request) {
		capturedCID = CorrelationID(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/score", nil))

	if len(capturedCID) != 32 {
		t.Errorf("correlation ID in handler context = %q, want a 32-char trace ID", capturedCID)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != capturedCID {
		t.Errorf("response X-Correlation-ID = %q, want %q", got, capturedCID)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded spans = %d, want 1", len(spans))
	}
	if spans[0].Name != "HTTP POST /v1/score" {
		t.Errorf("span name = %q, want %q", spans[0].Name, "HTTP POST /v1/score")
	}
}

func TestMiddleware_RecordsDuration(t *testing.T) {
	handler, reader, _ := newInstrumentedHandler(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/score", nil))

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	met := findMetric(rm, "shadowline.http.request.duration")
	if met == nil {
		t.Fatal("shadowline.http.request.duration not recorded")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) != 1 {
		t.Fatalf("data points = %d, want 1", len(hist.DataPoints))
	}

	dp := hist.DataPoints[0]
	if dp.Count != 1 {
		t.Errorf("sample count = %d, want 1", dp.Count)
	}
	want := map[string]string{"method": "POST", "path": "/v1/score"}
	for _, kv := range dp.Attributes.ToSlice() {
		if v, ok := want[string(kv.Key)]; ok && kv.Value.AsString() == v {
			delete(want, string(kv.Key))
		}
	}
	for key := range want {
		t.Errorf("duration data point missing attribute %q", key)
	}
}

func TestMiddleware_CapturesStatusCode(t *testing.T) {
	handler, _, exp := newInstrumentedHandler(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/score", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("response status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded spans = %d, want 1", len(spans))
	}
	found := false
	for _, a := range spans[0].Attributes {
		if string(a.Key) == "http.response.status_code" && a.Value.AsInt64() == 400 {
			found = true
		}
	}
	if !found {
		t.Error("span missing http.response.status_code attribute")
	}
}

func TestMiddleware_ContinuesIncomingTrace(t *testing.T) {
	var capturedCID string
	handler, _, _ := newInstrumentedHandler(t, func(w http.ResponseWriter, r *http.Request) {
		capturedCID = CorrelationID(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
	req := httptest.NewRequest("POST", "/v1/score", nil)
	req.Header.Set("traceparent", "00-"+traceID+"-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if capturedCID != traceID {
		t.Errorf("correlation ID = %q, want the incoming trace ID %q", capturedCID, traceID)
	}
	if got := rec.Header().Get("X-Correlation-ID"); got != traceID {
		t.Errorf("response X-Correlation-ID = %q, want %q", got, traceID)
	}
}
