package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/jokecentral/internal/middleware"
	"github.com/hitoshi/jokecentral/internal/model"
	"github.com/hitoshi/jokecentral/internal/security"
)

// MediaFetcher は生成された画像や音声を取得する。*security.MediaFetcherが満たす。
type MediaFetcher interface {
	Fetch(ctx context.Context, rawURL, typePrefix string) (*security.Media, error)
}

// mediaTypes は中継できる生成結果の種類と、許可するContent-Typeの接頭辞。
var mediaTypes = map[model.Capability]string{
	model.CapabilityImage: "image/",
	model.CapabilityAudio: "audio/",
}

// actionResponse はJSONでの生成結果のレスポンス。
type actionResponse struct {
	Result *model.GenerationResult `json:"result,omitempty"`
	Draft  *model.Joke             `json:"draft,omitempty"`
}

// ActionHandler はAI生成機能のHTTPハンドラー。
type ActionHandler struct {
	media MediaFetcher
}

// NewActionHandler はActionHandlerを生成する。
func NewActionHandler(media MediaFetcher) *ActionHandler {
	return &ActionHandler{media: media}
}

// Run は指定されたAI生成機能を実行する。
// POST /actions/{capability}
func (h *ActionHandler) Run(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromRequest(w, r)
	if ws == nil {
		return
	}

	name := chi.URLParam(r, "capability")
	kind, ok := model.ParseCapability(name)
	if !ok {
		respondError(w, r, ws, http.StatusNotFound, model.NewUnknownCapabilityError(name))
		return
	}

	// 作成フォームから送られた場合は入力中の値を下書きに反映してから実行する
	if r.PostForm == nil {
		if err := r.ParseForm(); err != nil {
			slog.Warn("failed to parse action form", slog.String("error", err.Error()))
		}
	}
	if _, ok := r.PostForm["setup"]; ok {
		ws.SetDraft(model.Joke{
			Setup:     r.PostFormValue("setup"),
			Punchline: r.PostFormValue("punchline"),
		})
	}

	// 送信は接続が切れても完了させ、結果はWorkspaceに残す
	err := ws.Run(context.WithoutCancel(r.Context()), kind)
	if err != nil {
		status, apiErr := mapError(err)
		if apiErr == nil {
			// 送信失敗はログ済み。結果は変わらない
			status, apiErr = http.StatusBadGateway, model.NewGenerationFailedError()
		}
		respondError(w, r, ws, status, apiErr)
		return
	}

	if !wantsJSON(r) {
		redirectHome(w, r)
		return
	}
	var resp actionResponse
	if res, ok := ws.Result(kind); ok {
		res = publicResult(res)
		resp.Result = &res
	}
	if kind == model.CapabilityJoke {
		draft := ws.Draft()
		resp.Draft = &draft
	}
	writeJSON(w, http.StatusOK, resp)
}

// Media は現在の画像または音声の生成結果をサーバー経由で返す。
// 生成サービスのURLはブラウザに渡さない。
// GET /media/{capability}
func (h *ActionHandler) Media(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromRequest(w, r)
	if ws == nil {
		return
	}
	if !ws.Session().SignedIn() {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	name := chi.URLParam(r, "capability")
	kind, _ := model.ParseCapability(name)
	typePrefix, ok := mediaTypes[kind]
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewUnknownCapabilityError(name))
		return
	}

	res, ok := ws.Result(kind)
	if !ok || res.URL == "" {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewResultNotFoundError(kind))
		return
	}

	media, err := h.media.Fetch(r.Context(), res.URL, typePrefix)
	if err != nil {
		slog.Error("failed to fetch generated media",
			slog.String("browser_session_id", ws.ID()),
			slog.String("kind", string(kind)),
			slog.String("error", err.Error()),
		)
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", media.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(media.Body)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	w.Write(media.Body)
}
