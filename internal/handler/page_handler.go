package handler

import (
	"html/template"
	"log/slog"
	"net/http"

	"github.com/hitoshi/jokecentral/internal/auth"
	"github.com/hitoshi/jokecentral/internal/middleware"
	"github.com/hitoshi/jokecentral/internal/model"
	"github.com/hitoshi/jokecentral/internal/profile"
	"github.com/hitoshi/jokecentral/internal/view"
	"github.com/hitoshi/jokecentral/internal/workspace"
)

// MessageJokeIncomplete は保存時にセットアップかオチが空の場合に表示する。
const MessageJokeIncomplete = "Please provide both setup and punchline"

// Renderer は画面の描画。*view.Rendererが満たす。
type Renderer interface {
	Login(w http.ResponseWriter, status int, data view.LoginPage)
	Home(w http.ResponseWriter, status int, data view.HomePage)
	Profile(w http.ResponseWriter, status int, data view.ProfilePage)
}

// MarkdownRenderer はMarkdownを安全なHTMLに変換する。*view.Markdownが満たす。
type MarkdownRenderer interface {
	Render(source string) (template.HTML, error)
}

// PageHandler は画面を返すHTTPハンドラー。
type PageHandler struct {
	renderer Renderer
	markdown MarkdownRenderer
}

// NewPageHandler はPageHandlerを生成する。
func NewPageHandler(renderer Renderer, markdown MarkdownRenderer) *PageHandler {
	return &PageHandler{
		renderer: renderer,
		markdown: markdown,
	}
}

// Index はサインイン状態に応じてサインイン画面かホーム画面を返す。
// GET /
func (h *PageHandler) Index(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromRequest(w, r)
	if ws == nil {
		return
	}

	if ws.UIState().CurrentPage == model.PageLogin {
		h.renderer.Login(w, http.StatusOK, view.LoginPage{
			CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
			Flash:     ws.TakeFlash(),
			Providers: auth.SupportedProviders,
		})
		return
	}

	h.renderHome(w, r, ws, http.StatusOK, ws.TakeFlash())
}

// renderHome はWorkspaceの現在の状態からホーム画面を描画する。
func (h *PageHandler) renderHome(w http.ResponseWriter, r *http.Request, ws *workspace.Workspace, status int, flash string) {
	page := view.HomePage{
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
		Flash:     flash,
		Busy:      ws.UIState().Busy,
		Draft:     ws.Draft(),
		Jokes:     ws.Jokes(),
	}
	if identity := ws.Session().CurrentIdentity(); identity != nil {
		page.Email = identity.Email
	}
	if res, ok := ws.Result(model.CapabilityImage); ok {
		page.Image = &res
	}
	if res, ok := ws.Result(model.CapabilityAudio); ok {
		page.Audio = &res
	}
	if res, ok := ws.Result(model.CapabilityMarkdown); ok {
		story, err := h.markdown.Render(res.Text)
		if err != nil {
			slog.Error("failed to render markdown result",
				slog.String("browser_session_id", ws.ID()),
				slog.String("error", err.Error()),
			)
		}
		page.Story = story
	}

	h.renderer.Home(w, status, page)
}

// SaveJoke は作成フォームのジョークを保存する。
// POST /jokes
func (h *PageHandler) SaveJoke(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromRequest(w, r)
	if ws == nil {
		return
	}
	if !ws.Session().SignedIn() {
		redirectHome(w, r)
		return
	}

	j := model.Joke{
		Setup:     r.FormValue("setup"),
		Punchline: r.FormValue("punchline"),
	}
	if !j.Complete() {
		ws.SetDraft(j)
		if wantsJSON(r) {
			middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidJokeError())
			return
		}
		h.renderHome(w, r, ws, http.StatusBadRequest, MessageJokeIncomplete)
		return
	}

	// 保存の失敗は利用者には伝えず、下書きを残して一覧を変えない
	if err := ws.SaveJoke(r.Context(), j); err != nil {
		slog.Error("failed to save joke",
			slog.String("browser_session_id", ws.ID()),
			slog.String("error", err.Error()),
		)
	}

	if wantsJSON(r) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	redirectHome(w, r)
}

// Profile はプロフィール編集画面を返す。
// GET /profile
func (h *PageHandler) Profile(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromRequest(w, r)
	if ws == nil {
		return
	}
	if !ws.Session().SignedIn() {
		redirectHome(w, r)
		return
	}

	h.renderer.Profile(w, http.StatusOK, view.ProfilePage{
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
		Flash:     ws.TakeFlash(),
		View:      ws.Profile().Load(r.Context()),
	})
}

// UpdateProfile はユーザー名と氏名を保存し、結果を同じ画面に表示する。
// POST /profile
func (h *PageHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	ws := workspaceFromRequest(w, r)
	if ws == nil {
		return
	}
	if !ws.Session().SignedIn() {
		redirectHome(w, r)
		return
	}

	form := profile.Form{
		Username: r.FormValue("username"),
		FullName: r.FormValue("full_name"),
	}
	if identity := ws.Session().CurrentIdentity(); identity != nil {
		form.Email = identity.Email
	}

	h.renderer.Profile(w, http.StatusOK, view.ProfilePage{
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
		View:      ws.Profile().Save(r.Context(), form),
	})
}
