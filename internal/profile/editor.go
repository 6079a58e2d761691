// Package profile はサインイン中ユーザーの表示名とユーザー名の編集を提供する。
package profile

import (
	"context"
	"log/slog"

	"github.com/hitoshi/jokecentral/internal/model"
)

// 画面に表示する固定メッセージ。下位のエラー内容は表示しない。
const (
	MessageLoadFailed   = "Error loading user data"
	MessageUpdateFailed = "Error updating profile"
	MessageUpdated      = "Profile updated successfully!"
)

// UserProvider はEditorが利用するIdPの操作。auth.Providerが満たす。
type UserProvider interface {
	GetUser(ctx context.Context) (*model.Identity, error)
	UpdateUser(ctx context.Context, data model.Metadata) (*model.Identity, error)
}

// Form はプロフィール編集フォームの入力値。Emailは表示のみで更新しない。
type Form struct {
	Email    string
	Username string
	FullName string
}

// View はフォームと、その下に表示するメッセージ。
type View struct {
	Form         Form
	ErrorMessage string
	Notice       string
}

// Editor はプロフィールの読み込みと保存を行う。
type Editor struct {
	provider UserProvider
	logger   *slog.Logger
}

// NewEditor はEditorを生成する。
func NewEditor(provider UserProvider, logger *slog.Logger) *Editor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Editor{provider: provider, logger: logger}
}

// Load は現在のユーザーからフォームの初期値を作る。
// ユーザーがいない場合は空のフォームをエラー無しで返す。
func (e *Editor) Load(ctx context.Context) View {
	user, err := e.provider.GetUser(ctx)
	if err != nil {
		e.logger.Error("Error loading user data", slog.String("error", err.Error()))
		return View{ErrorMessage: MessageLoadFailed}
	}
	if user == nil {
		return View{}
	}
	return View{Form: Form{
		Email:    user.Email,
		Username: user.Metadata.Username,
		FullName: user.Metadata.FullName,
	}}
}

// Save はユーザー名と氏名をメタデータとして保存する。
// 成否に関わらず入力値はそのまま返す。
func (e *Editor) Save(ctx context.Context, form Form) View {
	data := model.Metadata{Username: form.Username, FullName: form.FullName}
	if _, err := e.provider.UpdateUser(ctx, data); err != nil {
		e.logger.Error("Error updating profile", slog.String("error", err.Error()))
		return View{Form: form, ErrorMessage: MessageUpdateFailed}
	}
	return View{Form: form, Notice: MessageUpdated}
}
