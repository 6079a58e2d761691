// Package view はサーバー側で描画するHTML画面を提供する。
// テンプレートと静的ファイルはバイナリに埋め込む。
package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/jokecentral/internal/model"
	"github.com/hitoshi/jokecentral/internal/profile"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// 画面ごとのテンプレート。各画面はlayout.htmlと組み合わせて描画する。
const (
	pageLogin   = "login.html"
	pageHome    = "home.html"
	pageProfile = "profile.html"
)

// LoginPage はサインイン画面の表示内容。
type LoginPage struct {
	CSRFToken string
	Flash     string
	Providers []string
}

// HomePage はサインイン後のホーム画面の表示内容。
type HomePage struct {
	CSRFToken string
	Flash     string
	Email     string
	Busy      bool
	Draft     model.Joke
	Jokes     []model.Joke

	// 生成結果。未生成の種類はnil。生成されたジョークはDraftに入る。
	Image *model.GenerationResult
	Audio *model.GenerationResult
	Story template.HTML
}

// CanSpeak は読み上げボタンを表示するかを返す。下書きが揃っている場合のみ表示する。
func (p HomePage) CanSpeak() bool {
	return p.Draft.Complete()
}

// ProfilePage はプロフィール編集画面の表示内容。
type ProfilePage struct {
	CSRFToken string
	Flash     string
	profile.View
}

// Renderer は埋め込みテンプレートから画面を描画する。
type Renderer struct {
	pages map[string]*template.Template
}

var funcs = template.FuncMap{
	// mediaVersion はブラウザキャッシュを避けるため生成時刻をクエリに付ける。
	"mediaVersion": func(t time.Time) int64 { return t.UnixNano() },
}

// NewRenderer は全画面のテンプレートを解析する。解析に失敗した場合はエラーを返す。
func NewRenderer() (*Renderer, error) {
	r := &Renderer{pages: make(map[string]*template.Template)}
	for _, page := range []string{pageLogin, pageHome, pageProfile} {
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+page)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", page, err)
		}
		r.pages[page] = t
	}
	return r, nil
}

// Login はサインイン画面を描画する。
func (r *Renderer) Login(w http.ResponseWriter, status int, data LoginPage) {
	r.render(w, status, pageLogin, data)
}

// Home はホーム画面を描画する。
func (r *Renderer) Home(w http.ResponseWriter, status int, data HomePage) {
	r.render(w, status, pageHome, data)
}

// Profile はプロフィール編集画面を描画する。
func (r *Renderer) Profile(w http.ResponseWriter, status int, data ProfilePage) {
	r.render(w, status, pageProfile, data)
}

// render はバッファに描画してから書き込む。途中で失敗した場合は500を返す。
func (r *Renderer) render(w http.ResponseWriter, status int, page string, data any) {
	var buf bytes.Buffer
	if err := r.pages[page].ExecuteTemplate(&buf, "layout.html", data); err != nil {
		slog.Error("failed to render page",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

// StaticHandler は/static/配下のファイルを返すハンドラー。
func StaticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}
