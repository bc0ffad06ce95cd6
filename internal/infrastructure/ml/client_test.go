package ml

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"ProductScout/internal/domain"
)

func TestClientScorePostsBatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/score" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("missing auth header")
		}
		var body struct {
			Items  []domain.ScoreItem `json:"items"`
			Strict bool               `json:"strict"`
		}
		data, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(data, &body); err != nil || len(body.Items) != 1 || !body.Strict {
			t.Errorf("unexpected body %s", data)
		}
		_, _ = io.WriteString(w, `[{"id":"x","score":42}]`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", "k")
	raw, err := client.Score(context.Background(), domain.ScoreRequest{
		Items:  []domain.ScoreItem{{ID: "x", Name: "thing"}},
		Strict: true,
	})
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if raw != `[{"id":"x","score":42}]` {
		t.Fatalf("unexpected body %q", raw)
	}
}

func TestClientScoreRejectsNon200(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL, "").Score(context.Background(), domain.ScoreRequest{}); err == nil {
		t.Fatalf("expected error on 502")
	}
}
