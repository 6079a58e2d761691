package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/jokecentral/internal/model"
)

// stateResponse は GET /api/state のレスポンス。
type stateResponse struct {
	CurrentPage model.Page               `json:"currentPage"`
	Busy        bool                     `json:"busy"`
	Jokes       []model.Joke             `json:"jokes"`
	Results     []model.GenerationResult `json:"results"`
}

// publicResult はブラウザに返せる形の生成結果を返す。
// 画像と音声のURLは生成サービスのものではなく中継用のパスに置き換える。
func publicResult(r model.GenerationResult) model.GenerationResult {
	if _, ok := mediaTypes[r.Kind]; ok && r.URL != "" {
		r.URL = fmt.Sprintf("/media/%s?v=%d", r.Kind, r.CreatedAt.UnixNano())
	}
	return r
}

// State はWorkspaceの現在の状態をJSONで返す。別オリジンのフロントエンド向け。
// GET /api/state
func State(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromRequest(w, r)
	if ws == nil {
		return
	}

	ui := ws.UIState()
	resp := stateResponse{
		CurrentPage: ui.CurrentPage,
		Busy:        ui.Busy,
		Jokes:       ws.Jokes(),
		Results:     []model.GenerationResult{},
	}
	if resp.Jokes == nil {
		resp.Jokes = []model.Joke{}
	}
	for _, res := range ws.Results() {
		resp.Results = append(resp.Results, publicResult(res))
	}

	writeJSON(w, http.StatusOK, resp)
}

// HealthChecker は依存するデータストアの疎通を確認する。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// NewHealthHandler はヘルスチェックのハンドラーを返す。
// checkerがnilの場合（データベース無しで起動した場合）は常に正常を返す。
// GET /health
func NewHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
