package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ProductScout/internal/domain"
)

func newTestClient(server *httptest.Server, timeout time.Duration) *Client {
	return NewClient(Options{
		HTTPClient: server.Client(),
		Timeout:    timeout,
		Profiles: []Profile{
			{UserAgent: "agent-0", AcceptLanguage: "en-US", Referer: "https://ref0.example"},
			{UserAgent: "agent-1", AcceptLanguage: "de-DE", Referer: "https://ref1.example"},
		},
	})
}

func TestClientFetchClassifiesResponses(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<div class="organic-list">results</div>`))
	})
	mux.HandleFunc("/forbidden", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	mux.HandleFunc("/throttled", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	mux.HandleFunc("/interstitial", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body>Please slide to verify</body></html>`))
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(server, time.Second)
	cases := map[string]domain.FetchStatus{
		"/ok":           domain.FetchOK,
		"/forbidden":    domain.FetchBlocked,
		"/throttled":    domain.FetchBlocked,
		"/interstitial": domain.FetchBlocked,
		"/empty":        domain.FetchNetworkError,
		"/broken":       domain.FetchNetworkError,
	}

	for path, want := range cases {
		res := client.Fetch(context.Background(), Request{URL: server.URL + path, SourceID: "alibaba"}, 0)
		if res.Status != want {
			t.Fatalf("%s: expected %s, got %s (%s)", path, want, res.Status, res.Err)
		}
		if res.SourceID != "alibaba" {
			t.Fatalf("%s: source id not propagated", path)
		}
		if res.FetchedAt.IsZero() {
			t.Fatalf("%s: fetchedAt not set", path)
		}
	}
}

func TestClientFetchAppliesProfile(t *testing.T) {
	t.Parallel()

	var got http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := newTestClient(server, time.Second)
	res := client.Fetch(context.Background(), Request{URL: server.URL}, 3)
	if res.Status != domain.FetchOK {
		t.Fatalf("unexpected status %s", res.Status)
	}
	if got.Get("User-Agent") != "agent-1" {
		t.Fatalf("expected profile index to wrap to agent-1, got %q", got.Get("User-Agent"))
	}
	if got.Get("Accept-Language") != "de-DE" || got.Get("Referer") != "https://ref1.example" {
		t.Fatalf("profile headers missing: %v", got)
	}
}

func TestClientFetchTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := newTestClient(server, 50*time.Millisecond)
	res := client.Fetch(context.Background(), Request{URL: server.URL}, 0)
	if res.Status != domain.FetchTimeout {
		t.Fatalf("expected timeout, got %s (%s)", res.Status, res.Err)
	}
}

func TestClientFetchNetworkError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(Options{Timeout: time.Second})
	res := client.Fetch(context.Background(), Request{URL: url}, 0)
	if res.Status != domain.FetchNetworkError {
		t.Fatalf("expected network error, got %s", res.Status)
	}
}

func TestClientPaceWithinWindow(t *testing.T) {
	t.Parallel()

	client := NewClient(Options{MinDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond})
	for _, j := range []float64{0, 0.5, 0.999} {
		client.jitter = func() float64 { return j }
		d := client.pace()
		if d < 100*time.Millisecond || d >= 300*time.Millisecond {
			t.Fatalf("pace %v outside window for jitter %v", d, j)
		}
	}
}
