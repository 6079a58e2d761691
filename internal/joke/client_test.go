package joke

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hitoshi/jokecentral/internal/model"
)

type recordedRequest struct {
	endpoint string
	status   int
}

type mockRecorder struct {
	requests []recordedRequest
}

func (m *mockRecorder) RecordJokeRequest(endpoint string, statusCode int, _ time.Duration) {
	m.requests = append(m.requests, recordedRequest{endpoint: endpoint, status: statusCode})
}

var validCred = model.Credential{AccessToken: "token-1", ExpiresAt: time.Now().Add(time.Hour)}

func TestClient_List_SendsBearerAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/getJokes" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token-1" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"setup":"Why?","punchline":"Because."},{"setup":"A","punchline":"B"}]`))
	}))
	defer srv.Close()

	rec := &mockRecorder{}
	c := NewClient(srv.URL, srv.Client(), nil, rec)

	jokes, err := c.List(context.Background(), validCred)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	want := []model.Joke{{Setup: "Why?", Punchline: "Because."}, {Setup: "A", Punchline: "B"}}
	if diff := cmp.Diff(want, jokes); diff != "" {
		t.Errorf("List() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]recordedRequest{{endpoint: "/api/getJokes", status: 200}}, rec.requests, cmp.AllowUnexported(recordedRequest{})); diff != "" {
		t.Errorf("metrics mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_List_NullBody_ReturnsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`null`))
	}))
	defer srv.Close()

	jokes, err := NewClient(srv.URL, srv.Client(), nil, nil).List(context.Background(), validCred)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if jokes == nil || len(jokes) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", jokes)
	}
}

func TestClient_List_Non200_ReturnsError(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusCreated, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
				w.Write([]byte(`[]`))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, srv.Client(), nil, nil).List(context.Background(), validCred)
			if err == nil {
				t.Fatalf("expected error for status %d", status)
			}
		})
	}
}

func TestClient_Save_PostsJSONAndIgnoresBody(t *testing.T) {
	var got model.Joke
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/saveJoke" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer token-1" {
			t.Errorf("Authorization = %q", auth)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`not json at all`))
	}))
	defer srv.Close()

	joke := model.Joke{Setup: "Knock knock", Punchline: "Who's there?"}
	if err := NewClient(srv.URL, srv.Client(), nil, nil).Save(context.Background(), validCred, joke); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if diff := cmp.Diff(joke, got); diff != "" {
		t.Errorf("posted joke mismatch (-want +got):\n%s", diff)
	}
}

func TestClient_Save_Non200_ReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, srv.Client(), nil, nil).Save(context.Background(), validCred, model.Joke{Setup: "a", Punchline: "b"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestClient_List_OversizedBody_ReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"setup":"` + strings.Repeat("a", maxResponseSize) + `","punchline":"b"}]`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, srv.Client(), nil, nil).List(context.Background(), validCred)
	if !errors.Is(err, ErrResponseTooLarge) {
		t.Fatalf("expected ErrResponseTooLarge, got %v", err)
	}
}
