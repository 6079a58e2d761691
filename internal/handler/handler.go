// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/jokecentral/internal/aievent"
	"github.com/hitoshi/jokecentral/internal/middleware"
	"github.com/hitoshi/jokecentral/internal/model"
	"github.com/hitoshi/jokecentral/internal/workspace"
)

// workspaceFromRequest はリクエストのWorkspaceを返す。
// ブラウザセッションミドルウェアの外で呼ばれた場合は500を書き込みnilを返す。
func workspaceFromRequest(w http.ResponseWriter, r *http.Request) *workspace.Workspace {
	ws, err := middleware.WorkspaceFromContext(r.Context())
	if err != nil {
		slog.Error("workspace missing from request context",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return nil
	}
	return ws
}

// wantsJSON はJSONでの応答を求めるリクエストかを判定する。
// 画面のフォーム送信はリダイレクト、別オリジンのフロントエンドはJSONで応答する。
func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// redirectHome はPOST後にホーム画面へ戻す。
func redirectHome(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// respondError はエラーを応答する。
// JSONを求めるリクエストには統一エラーフォーマットで、画面からの送信にはフラッシュメッセージで伝える。
func respondError(w http.ResponseWriter, r *http.Request, ws *workspace.Workspace, statusCode int, apiErr *model.APIError) {
	if wantsJSON(r) {
		middleware.WriteErrorResponse(w, statusCode, apiErr)
		return
	}
	ws.SetFlash(apiErr.Message)
	redirectHome(w, r)
}

// mapError はドメインのエラーをHTTPステータスとAPIErrorに変換する。
// 利用者に伝える必要の無いエラーはnilを返す。
func mapError(err error) (int, *model.APIError) {
	var apiErr *model.APIError
	switch {
	case errors.As(err, &apiErr):
		return mapAPIErrorToHTTPStatus(apiErr), apiErr
	case errors.Is(err, workspace.ErrNotSignedIn), errors.Is(err, aievent.ErrNotSignedIn):
		return http.StatusUnauthorized, model.NewUnauthorizedError()
	case errors.Is(err, aievent.ErrBusy):
		return http.StatusConflict, model.NewBusyError()
	case errors.Is(err, aievent.ErrDraftIncomplete):
		return http.StatusBadRequest, model.NewDraftIncompleteError()
	default:
		return 0, nil
	}
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeInvalidJoke, model.ErrCodeDraftIncomplete:
		return http.StatusBadRequest
	case model.ErrCodeUnknownCapability, model.ErrCodeResultNotFound:
		return http.StatusNotFound
	case model.ErrCodeBusy:
		return http.StatusConflict
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeGenerationFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}
