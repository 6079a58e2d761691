package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hitoshi/jokecentral/internal/aievent"
	"github.com/hitoshi/jokecentral/internal/model"
	"github.com/hitoshi/jokecentral/internal/security"
	"github.com/hitoshi/jokecentral/internal/workspace"
)

func TestRunAction_GenerateJoke_BecomesDraft(t *testing.T) {
	s := newTestServer(t)
	s.signIn(t)

	// 作成フォームの入力中の値ごと送られても、生成結果で置き換わる
	w := s.do(http.MethodPost, "/actions/joke-json", url.Values{"setup": {"typed"}, "punchline": {""}})

	assertRedirectHome(t, w)
	page := s.do(http.MethodGet, "/", nil).Body.String()
	for _, want := range []string{`value="generated setup"`, `value="generated punchline"`, "Text to Speech"} {
		if !strings.Contains(page, want) {
			t.Errorf("home page should contain %q", want)
		}
	}
	if diff := cmp.Diff([]string{aievent.EventChatRequest}, s.disp.calls); diff != "" {
		t.Errorf("dispatch calls mismatch (-want +got):\n%s", diff)
	}
}

func TestRunAction_TextToSpeech_UsesPostedDraft(t *testing.T) {
	s := newTestServer(t)
	s.signIn(t)

	w := s.do(http.MethodPost, "/actions/audio-url", url.Values{"setup": {"Why?"}, "punchline": {"Because."}})

	assertRedirectHome(t, w)
	if diff := cmp.Diff([]string{aievent.EventTextToSpeech}, s.disp.calls); diff != "" {
		t.Errorf("dispatch calls mismatch (-want +got):\n%s", diff)
	}
	page := s.do(http.MethodGet, "/", nil).Body.String()
	if !strings.Contains(page, `src="/media/audio-url?v=`) {
		t.Error("home page should embed the proxied audio")
	}
	if strings.Contains(page, "cdn.example.com") {
		t.Error("generated media URLs must not reach the browser")
	}
}

func TestRunAction_JSON_ReturnsProxiedResult(t *testing.T) {
	s := newTestServer(t)
	s.signIn(t)

	w := s.do(http.MethodPost, "/actions/image-url", nil, withJSON())

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp actionResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Result == nil {
		t.Fatal("expected a result")
	}
	if resp.Result.Kind != model.CapabilityImage {
		t.Errorf("Kind = %q, want %q", resp.Result.Kind, model.CapabilityImage)
	}
	if !strings.HasPrefix(resp.Result.URL, "/media/image-url?v=") {
		t.Errorf("URL = %q, want the media proxy path", resp.Result.URL)
	}
	if resp.Draft != nil {
		t.Error("draft is only returned for joke generation")
	}
}

func TestRunAction_Errors(t *testing.T) {
	tests := []struct {
		name       string
		signedIn   bool
		target     string
		form       url.Values
		wantStatus int
		wantCode   string
	}{
		{"unknown capability", true, "/actions/video-url", nil, http.StatusNotFound, model.ErrCodeUnknownCapability},
		{"signed out", false, "/actions/joke-json", nil, http.StatusUnauthorized, model.ErrCodeUnauthorized},
		{"speech without draft", true, "/actions/audio-url", nil, http.StatusBadRequest, model.ErrCodeDraftIncomplete},
		{"speech with half draft", true, "/actions/audio-url", url.Values{"setup": {"s"}, "punchline": {" "}}, http.StatusBadRequest, model.ErrCodeDraftIncomplete},
		// チャットの応答はジョーク形式なので、Markdown生成では解釈に失敗する
		{"dispatch failure", true, "/actions/markdown-text", nil, http.StatusBadGateway, model.ErrCodeGenerationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			if tt.signedIn {
				s.signIn(t)
			}
			w := s.do(http.MethodPost, tt.target, tt.form, withJSON())

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if body := decodeErrorBody(t, w); body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
		})
	}
}

func TestRunAction_DispatchFailure_FlashesMessage(t *testing.T) {
	s := newTestServer(t)
	s.signIn(t)
	delete(s.disp.results, aievent.EventGenerateImage)

	w := s.do(http.MethodPost, "/actions/image-url", nil)

	assertRedirectHome(t, w)
	page := s.do(http.MethodGet, "/", nil).Body.String()
	if !strings.Contains(page, model.NewGenerationFailedError().Message) {
		t.Error("home page should show the generation failure")
	}
	if strings.Contains(page, "/media/image-url") {
		t.Error("no image result should be shown after a failure")
	}
}

func TestMedia_ProxiesCurrentResult(t *testing.T) {
	s := newTestServer(t)
	s.signIn(t)

	var gotURL, gotPrefix string
	s.media.fetchFn = func(ctx context.Context, rawURL, typePrefix string) (*security.Media, error) {
		gotURL, gotPrefix = rawURL, typePrefix
		return &security.Media{ContentType: "image/png", Body: []byte("png-bytes")}, nil
	}

	s.do(http.MethodPost, "/actions/image-url", nil)
	w := s.do(http.MethodGet, "/media/image-url?v=1", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotURL != "https://cdn.example.com/a.png" || gotPrefix != "image/" {
		t.Errorf("Fetch(%q, %q), want (%q, %q)", gotURL, gotPrefix, "https://cdn.example.com/a.png", "image/")
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", ct)
	}
	if w.Body.String() != "png-bytes" {
		t.Errorf("body = %q, want %q", w.Body.String(), "png-bytes")
	}
}

func TestMedia_Errors(t *testing.T) {
	tests := []struct {
		name       string
		signedIn   bool
		generate   bool
		target     string
		fetchErr   error
		wantStatus int
	}{
		{"signed out", false, false, "/media/image-url", nil, http.StatusUnauthorized},
		{"not generated", true, false, "/media/image-url", nil, http.StatusNotFound},
		{"not a media kind", true, false, "/media/joke-json", nil, http.StatusNotFound},
		{"fetch rejected", true, true, "/media/image-url", security.ErrUnexpectedMediaType, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			if tt.signedIn {
				s.signIn(t)
			}
			s.media.fetchFn = func(ctx context.Context, rawURL, typePrefix string) (*security.Media, error) {
				if tt.fetchErr != nil {
					return nil, tt.fetchErr
				}
				return nil, errors.New("unexpected fetch")
			}
			if tt.generate {
				s.do(http.MethodPost, "/actions/image-url", nil)
			}

			w := s.do(http.MethodGet, tt.target, nil)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"busy", fmt.Errorf("run: %w", aievent.ErrBusy), http.StatusConflict, model.ErrCodeBusy},
		{"draft incomplete", aievent.ErrDraftIncomplete, http.StatusBadRequest, model.ErrCodeDraftIncomplete},
		{"workspace signed out", workspace.ErrNotSignedIn, http.StatusUnauthorized, model.ErrCodeUnauthorized},
		{"dispatcher signed out", aievent.ErrNotSignedIn, http.StatusUnauthorized, model.ErrCodeUnauthorized},
		{"api error", model.NewUnknownCapabilityError("x"), http.StatusNotFound, model.ErrCodeUnknownCapability},
		{"rate limited", model.NewRateLimitedError(), http.StatusTooManyRequests, model.ErrCodeRateLimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, apiErr := mapError(tt.err)
			if status != tt.wantStatus {
				t.Errorf("status = %d, want %d", status, tt.wantStatus)
			}
			if apiErr == nil || apiErr.Code != tt.wantCode {
				t.Errorf("apiErr = %v, want code %q", apiErr, tt.wantCode)
			}
		})
	}

	if _, apiErr := mapError(errors.New("network down")); apiErr != nil {
		t.Errorf("unexpected APIError for an unclassified error: %v", apiErr)
	}
}
