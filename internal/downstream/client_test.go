package downstream_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"

	"github.com/spachava753/incidentbench/internal/downstream"
	"github.com/spachava753/incidentbench/internal/models"
)

func TestAnalyze(t *testing.T) {
	var gotContext string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/analyze" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req struct {
			Context string `json:"context"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		gotContext = req.Context
		w.Write([]byte(`{"summary":"bad deploy","actions":["rollback","check pool"]}`))
	}))
	defer srv.Close()

	c := downstream.NewClient(srv.URL+"/", nil)
	resp, err := c.Analyze(context.Background(), "incident text")
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if gotContext != "incident text" {
		t.Errorf("server saw context %q", gotContext)
	}
	want := &downstream.AnalyzeResponse{Summary: "bad deploy", Actions: []string{"rollback", "check pool"}}
	if diff := cmp.Diff(want, resp); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}
}

func TestOrchestrate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"brief":"b","actions":["a1","a2","a3"],"agent_outputs":{"diagnosis":"d","risk_assessment":"r"}}`))
	}))
	defer srv.Close()

	resp, err := downstream.NewClient(srv.URL, nil).Orchestrate(context.Background(), "x")
	if err != nil {
		t.Fatalf("Orchestrate failed: %v", err)
	}
	if len(resp.Actions) != 3 || resp.AgentOutputs["risk_assessment"] != "r" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		timeout time.Duration
		want    models.ErrorType
	}{
		{
			name: "status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			want: models.ErrDownstreamStatus,
		},
		{
			name: "decode",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("<html>not json</html>"))
			},
			want: models.ErrDownstreamDecode,
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
			timeout: 20 * time.Millisecond,
			want:    models.ErrDownstreamTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			ctx := context.Background()
			if tt.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, tt.timeout)
				defer cancel()
			}

			_, err := downstream.NewClient(srv.URL, nil).Analyze(ctx, "x")
			if err == nil {
				t.Fatal("expected error")
			}
			if got := downstream.Classify(ctx, err); got != tt.want {
				t.Errorf("Classify = %s, want %s (err: %v)", got, tt.want, err)
			}
		})
	}
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	ctx := context.Background()
	_, err := downstream.NewClient(url, nil).Analyze(ctx, "x")
	if err == nil {
		t.Fatal("expected error from closed server")
	}
	if got := downstream.Classify(ctx, err); got != models.ErrDownstreamTransport {
		t.Errorf("Classify = %s, want %s", got, models.ErrDownstreamTransport)
	}
}

func TestStatusErrorDetails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("circuit open"))
	}))
	defer srv.Close()

	_, err := downstream.NewClient(srv.URL, nil).Orchestrate(context.Background(), "x")
	var se *downstream.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.StatusCode != http.StatusServiceUnavailable || se.Endpoint != "/orchestrate" || se.Body != "circuit open" {
		t.Errorf("unexpected status error %+v", se)
	}
}

func TestStatusErrorBodyKeepsRunesWhole(t *testing.T) {
	body := strings.Repeat("é", 250)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(body))
	}))
	defer srv.Close()

	_, err := downstream.NewClient(srv.URL, nil).Analyze(context.Background(), "x")
	var se *downstream.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if !utf8.ValidString(se.Body) {
		t.Errorf("body is not valid UTF-8: %q", se.Body)
	}
	want := strings.Repeat("é", 200) + "..."
	if se.Body != want {
		t.Errorf("body has %d runes, want %d", utf8.RuneCountInString(se.Body), utf8.RuneCountInString(want))
	}
}

func TestHealth(t *testing.T) {
	var unhealthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if unhealthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"status":"healthy"}`))
	}))
	defer srv.Close()

	c := downstream.NewClient(srv.URL, nil)
	if err := c.Health(context.Background()); err != nil {
		t.Errorf("expected healthy, got %v", err)
	}

	unhealthy.Store(true)
	if err := c.Health(context.Background()); err == nil {
		t.Error("expected error for 503")
	}
}

func TestClassifyNil(t *testing.T) {
	if got := downstream.Classify(context.Background(), nil); got != "" {
		t.Errorf("expected empty type for nil error, got %s", got)
	}
}
