package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/makemore/internal/experiment"
	"github.com/samcharles93/makemore/internal/model"
	"github.com/samcharles93/makemore/internal/report"
)

var (
	runOnce sync.Once
	run     *experiment.Result
	runErr  error
)

func testRun(t *testing.T) *experiment.Result {
	t.Helper()
	runOnce.Do(func() {
		cfg := experiment.Defaults()
		cfg.Words = []string{"emma", "olivia", "ava", "isabella", "sophia", "mia", "amelia", "harper", "evelyn", "ella"}
		cfg.EmbeddingDim = 2
		cfg.Hidden = 8
		cfg.Train.Steps = 20
		cfg.Train.BatchSize = 8
		cfg.Train.LogEvery = 0
		cfg.Samples = 1
		run, runErr = experiment.Run(context.Background(), cfg)
	})
	if runErr != nil {
		t.Fatalf("experiment.Run: %v", runErr)
	}
	return run
}

func newTestEcho(t *testing.T) *echo.Echo {
	t.Helper()
	e := echo.New()
	NewServer(testRun(t)).Register(e)
	return e
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return out
}

func TestModelInfo(t *testing.T) {
	t.Parallel()
	e := newTestEcho(t)
	rec := doJSON(t, e, http.MethodGet, "/v1/model", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body=%s", rec.Code, rec.Body.String())
	}
	info := decode[ModelInfo](t, rec)
	if info.Kind != string(model.KindMLP) || info.BlockSize != 3 || info.Steps != 20 {
		t.Fatalf("info %+v", info)
	}
	if info.VocabSize != len(info.Tokens) || info.Tokens[0] != experiment.Sentinel {
		t.Fatalf("tokens %v for vocab %d", info.Tokens, info.VocabSize)
	}
	// c, w1, b1, w2, b2
	v := info.VocabSize
	if want := v*2 + 6*8 + 8 + 8*v + v; info.Parameters != want {
		t.Fatalf("parameters %d, want %d", info.Parameters, want)
	}
}

func TestSamples(t *testing.T) {
	t.Parallel()
	e := newTestEcho(t)
	rec := doJSON(t, e, http.MethodPost, "/v1/samples", `{"count":4,"temperature":0.5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body=%s", rec.Code, rec.Body.String())
	}
	resp := decode[SamplesResponse](t, rec)
	if len(resp.Samples) != 4 || resp.Temperature != 0.5 {
		t.Fatalf("response %+v", resp)
	}

	rec = doJSON(t, e, http.MethodPost, "/v1/samples", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("empty body: status %d body=%s", rec.Code, rec.Body.String())
	}
	if resp := decode[SamplesResponse](t, rec); len(resp.Samples) != 1 {
		t.Fatalf("default count: %d samples", len(resp.Samples))
	}
}

func TestSamplesRejectsBadRequests(t *testing.T) {
	t.Parallel()
	e := newTestEcho(t)
	for _, body := range []string{`{"count":0}`, `{"count":5000}`, `{"count":"x"}`, `{"unknown":1}`} {
		rec := doJSON(t, e, http.MethodPost, "/v1/samples", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: status %d", body, rec.Code)
		}
		resp := decode[ErrorResponse](t, rec)
		if resp.Error.Type != "invalid_request_error" || resp.Error.Message == "" {
			t.Fatalf("%s: error %+v", body, resp.Error)
		}
	}
}

func TestLoss(t *testing.T) {
	t.Parallel()
	e := newTestEcho(t)
	rec := doJSON(t, e, http.MethodGet, "/v1/loss?window=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body=%s", rec.Code, rec.Body.String())
	}
	snap := decode[report.LossSnapshot](t, rec)
	if len(snap.Losses) != 20 || len(snap.MovingAverage) != 4 || snap.Window != 5 {
		t.Fatalf("snapshot %+v", snap)
	}

	rec = doJSON(t, e, http.MethodGet, "/v1/loss?window=-1", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("negative window: status %d", rec.Code)
	}
}

func TestEmbeddingsAndCounts(t *testing.T) {
	t.Parallel()
	e := newTestEcho(t)
	rec := doJSON(t, e, http.MethodGet, "/v1/embeddings", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("embeddings status %d body=%s", rec.Code, rec.Body.String())
	}
	emb := decode[report.EmbeddingSnapshot](t, rec)
	if len(emb.Vectors) != len(emb.Tokens) || len(emb.Vectors[0]) != 2 {
		t.Fatalf("embeddings %+v", emb)
	}

	rec = doJSON(t, e, http.MethodGet, "/v1/counts", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("counts status %d", rec.Code)
	}
	counts := decode[report.CountsSnapshot](t, rec)
	if len(counts.Counts) != len(counts.Tokens) {
		t.Fatalf("counts %dx? for %d tokens", len(counts.Counts), len(counts.Tokens))
	}
}

func TestPNGFormat(t *testing.T) {
	t.Parallel()
	e := newTestEcho(t)
	for _, path := range []string{"/v1/loss?format=png&window=5", "/v1/embeddings?format=png", "/v1/counts?format=png"} {
		rec := doJSON(t, e, http.MethodGet, path, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status %d body=%s", path, rec.Code, rec.Body.String())
		}
		if ct := rec.Header().Get(echo.HeaderContentType); ct != mimePNG {
			t.Fatalf("%s: content type %q", path, ct)
		}
		if !bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")) {
			t.Fatalf("%s: body is not a PNG", path)
		}
	}
	rec := doJSON(t, e, http.MethodGet, "/v1/counts?format=svg", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unsupported format: status %d", rec.Code)
	}
}
