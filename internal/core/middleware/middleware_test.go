package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	mylog "github.com/mohammed-shakir/spatial-heatmap/internal/logger"
)

func TestLogging_PropagatesRequestID(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	var seen string
	h := Logging(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("X-Request-ID")
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Header().Get("X-Request-ID") != "abc" || seen != "abc" {
		t.Fatalf("request id not echoed: %q", rr.Header().Get("X-Request-ID"))
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"path":"/healthz"`)) {
		t.Fatalf("request not logged: %s", buf.String())
	}
}

func TestLogging_GeneratesRequestID(t *testing.T) {
	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	var buf bytes.Buffer
	parent := zerolog.New(&buf)
	h := Logging(l)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		mylog.FromContext(r.Context(), &parent).Info().Msg("inside")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	id := rr.Header().Get("X-Request-ID")
	if id == "" {
		t.Fatalf("expected generated request id")
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"request_id":"`+id+`"`)) {
		t.Fatalf("request id missing from context logger: %s", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte(`"component":"http"`)) {
		t.Fatalf("component missing from context logger: %s", buf.String())
	}
}

func TestLogging_CarriesCaseID(t *testing.T) {
	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	var buf bytes.Buffer
	parent := zerolog.New(&buf)
	h := Logging(l)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		mylog.FromContext(r.Context(), &parent).Info().Msg("inside")
	}))
	req := httptest.NewRequest(http.MethodPost, "/v1/heatmap", nil)
	req.Header.Set("X-Case-ID", "case-7")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if !bytes.Contains(buf.Bytes(), []byte(`"case_id":"case-7"`)) {
		t.Fatalf("case id missing from context logger: %s", buf.String())
	}
}

func TestRecover(t *testing.T) {
	l := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Recover(l)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d want 500", rr.Code)
	}
}

func TestCORS_Preflight(t *testing.T) {
	h := CORS()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) }))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/v1/heatmap", nil))
	if rr.Code != http.StatusNoContent || rr.Header().Get("Access-Control-Allow-Methods") == "" {
		t.Fatalf("preflight status=%d headers=%v", rr.Code, rr.Header())
	}
}
