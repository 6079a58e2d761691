package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, generation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeInvalidJoke       = "INVALID_JOKE"
	ErrCodeUnknownCapability = "UNKNOWN_CAPABILITY"
	ErrCodeBusy              = "BUSY"
	ErrCodeDraftIncomplete   = "DRAFT_INCOMPLETE"
	ErrCodeResultNotFound    = "RESULT_NOT_FOUND"
	ErrCodeRateLimited       = "RATE_LIMIT_EXCEEDED"
	ErrCodeGenerationFailed  = "GENERATION_FAILED"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// NewUnauthorizedError はサインインが必要な操作を未サインインで実行した場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "You need to sign in first.",
		Category: "auth",
		Action:   "Sign in with a magic link or one of the listed providers.",
	}
}

// NewInvalidJokeError はセットアップまたはオチが空の場合のエラーを生成する。
func NewInvalidJokeError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidJoke,
		Message:  "Both setup and punchline are required.",
		Category: "validation",
		Action:   "Fill in both fields before saving.",
	}
}

// NewUnknownCapabilityError は未定義のAI生成機能が指定された場合のエラーを生成する。
func NewUnknownCapabilityError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownCapability,
		Message:  fmt.Sprintf("Unknown generation feature: %s", name),
		Category: "validation",
		Action:   "Use one of joke-json, image-url, audio-url or markdown-text.",
	}
}

// NewBusyError は別の生成処理が実行中の場合のエラーを生成する。
func NewBusyError() *APIError {
	return &APIError{
		Code:     ErrCodeBusy,
		Message:  "Another generation is still running.",
		Category: "generation",
		Action:   "Wait for it to finish, then try again.",
	}
}

// NewDraftIncompleteError は読み上げ対象のジョークが未入力の場合のエラーを生成する。
func NewDraftIncompleteError() *APIError {
	return &APIError{
		Code:     ErrCodeDraftIncomplete,
		Message:  "Text to speech needs both a setup and a punchline.",
		Category: "validation",
		Action:   "Write or generate a joke first.",
	}
}

// NewResultNotFoundError は指定種類の生成結果が存在しない場合のエラーを生成する。
func NewResultNotFoundError(kind Capability) *APIError {
	return &APIError{
		Code:     ErrCodeResultNotFound,
		Message:  fmt.Sprintf("Nothing has been generated for %s yet.", kind),
		Category: "generation",
		Action:   "Run the generation first.",
	}
}

// NewRateLimitedError はレート制限超過時のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many generation requests.",
		Category: "generation",
		Action:   "Wait a moment before trying again.",
	}
}

// NewGenerationFailedError はAIイベントの送信や応答の解釈に失敗した場合のエラーを生成する。
func NewGenerationFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeGenerationFailed,
		Message:  "Generation failed. Please try again.",
		Category: "generation",
		Action:   "Try again in a moment.",
	}
}

// NewInternalError は想定外の失敗時のエラーを生成する。詳細はログのみに残す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Something went wrong on our side.",
		Category: "system",
		Action:   "Please wait a moment and try again.",
	}
}
