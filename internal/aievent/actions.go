package aievent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/jokecentral/internal/model"
)

// AIイベントAPIの機能名。
const (
	EventChatRequest   = "chatgpt_request"
	EventGenerateImage = "generate_image"
	EventTextToSpeech  = "text_to_speech"
)

// 各生成機能で送信する固定プロンプト。
const (
	JokePrompt     = `Give me a joke in JSON format with the following structure: { "setup": "joke setup", "punchline": "joke punchline" }`
	ImagePrompt    = "A funny cartoon character telling a joke"
	MarkdownPrompt = "Write a short, funny story about a comedian in markdown format"
)

var (
	// ErrBusy は別の生成が実行中のため要求を受け付けなかった場合のエラー。
	ErrBusy = errors.New("aievent: another generation is in flight")
	// ErrDraftIncomplete は読み上げ対象の下書きにセットアップかオチが無い場合のエラー。
	ErrDraftIncomplete = errors.New("aievent: draft joke is incomplete")
)

// Actions は4種類の生成機能と、その直近の結果を保持する。
// 実行中は全機能で共有する1つのbusyフラグが立ち、その間の要求はErrBusyで拒否する。
type Actions struct {
	dispatcher Dispatcher
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	busy    bool
	results map[model.Capability]model.GenerationResult
}

// NewActions はActionsを生成する。
func NewActions(dispatcher Dispatcher, logger *slog.Logger) *Actions {
	if logger == nil {
		logger = slog.Default()
	}
	return &Actions{
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
		results:    make(map[model.Capability]model.GenerationResult),
	}
}

// Busy は生成の実行中かを返す。
func (a *Actions) Busy() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.busy
}

// Result は指定した種類の直近の結果を返す。
func (a *Actions) Result(kind model.Capability) (model.GenerationResult, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r, ok := a.results[kind]
	return r, ok
}

// Results は保持している結果を表示順に返す。
func (a *Actions) Results() []model.GenerationResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]model.GenerationResult, 0, len(a.results))
	for _, kind := range model.Capabilities {
		if r, ok := a.results[kind]; ok {
			out = append(out, r)
		}
	}
	return out
}

// GenerateJoke はジョークを生成する。
func (a *Actions) GenerateJoke(ctx context.Context) (model.Joke, error) {
	payload := map[string]string{"prompt": JokePrompt, "response_type": "json"}
	r, err := a.run(ctx, model.CapabilityJoke, EventChatRequest, payload, "Error creating event", func(raw json.RawMessage, r *model.GenerationResult) error {
		j, err := decodeJoke(raw)
		if err != nil {
			return err
		}
		r.Joke = &j
		return nil
	})
	if err != nil {
		return model.Joke{}, err
	}
	return *r.Joke, nil
}

// GenerateImage は画像を生成し、そのURLを返す。
func (a *Actions) GenerateImage(ctx context.Context) (string, error) {
	payload := map[string]string{"prompt": ImagePrompt}
	r, err := a.run(ctx, model.CapabilityImage, EventGenerateImage, payload, "Error generating image", decodeURLInto)
	if err != nil {
		return "", err
	}
	return r.URL, nil
}

// TextToSpeech は下書きのジョークを読み上げた音声を生成し、そのURLを返す。
// 下書きが不完全な場合は送信せずErrDraftIncompleteを返す。
func (a *Actions) TextToSpeech(ctx context.Context, draft model.Joke) (string, error) {
	if !draft.Complete() {
		return "", ErrDraftIncomplete
	}
	payload := map[string]string{"text": draft.Setup + " ... " + draft.Punchline}
	r, err := a.run(ctx, model.CapabilityAudio, EventTextToSpeech, payload, "Error converting text to speech", decodeURLInto)
	if err != nil {
		return "", err
	}
	return r.URL, nil
}

// GenerateMarkdown はMarkdown形式の短い物語を生成する。
func (a *Actions) GenerateMarkdown(ctx context.Context) (string, error) {
	payload := map[string]string{"prompt": MarkdownPrompt, "response_type": "text"}
	r, err := a.run(ctx, model.CapabilityMarkdown, EventChatRequest, payload, "Error generating markdown", func(raw json.RawMessage, r *model.GenerationResult) error {
		text, err := decodeString(raw)
		if err != nil {
			return err
		}
		r.Text = text
		return nil
	})
	if err != nil {
		return "", err
	}
	return r.Text, nil
}

type decodeFunc func(raw json.RawMessage, r *model.GenerationResult) error

// run は共通の実行手順を行う。busyを立てて送信し、成功した場合のみ結果を置き換える。
// busyは成否に関わらず解除する。
func (a *Actions) run(ctx context.Context, kind model.Capability, event string, payload any, failure string, decode decodeFunc) (model.GenerationResult, error) {
	if !a.acquire() {
		return model.GenerationResult{}, ErrBusy
	}
	defer a.release()

	raw, err := a.dispatcher.Dispatch(ctx, event, payload)
	if err == nil {
		result := model.GenerationResult{Kind: kind, CreatedAt: a.now()}
		if err = decode(raw, &result); err == nil {
			a.mu.Lock()
			a.results[kind] = result
			a.mu.Unlock()
			return result, nil
		}
	}

	a.logger.Error(failure,
		slog.String("capability", string(kind)),
		slog.String("error", err.Error()),
	)
	return model.GenerationResult{}, err
}

func (a *Actions) acquire() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.busy {
		return false
	}
	a.busy = true
	return true
}

func (a *Actions) release() {
	a.mu.Lock()
	a.busy = false
	a.mu.Unlock()
}

// decodeJoke は結果をジョークとして読み込む。
// オブジェクトのほか、JSON文字列に埋め込まれたオブジェクトも受け付ける。
func decodeJoke(raw json.RawMessage) (model.Joke, error) {
	var j model.Joke
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return model.Joke{}, fmt.Errorf("failed to decode joke result: %w", err)
		}
		raw = json.RawMessage(s)
	}
	if err := json.Unmarshal(raw, &j); err != nil {
		return model.Joke{}, fmt.Errorf("failed to decode joke result: %w", err)
	}
	return j, nil
}

func decodeString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("failed to decode text result: %w", err)
	}
	if s == "" {
		return "", fmt.Errorf("empty result")
	}
	return s, nil
}

func decodeURLInto(raw json.RawMessage, r *model.GenerationResult) error {
	u, err := decodeString(raw)
	if err != nil {
		return err
	}
	r.URL = u
	return nil
}
