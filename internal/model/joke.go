package model

import "time"

// Joke はセットアップとオチの組。保存後は不変として扱う。
type Joke struct {
	Setup     string `json:"setup"`
	Punchline string `json:"punchline"`
}

// Complete はセットアップとオチの両方が空でないかを判定する。
// 空白のみの入力もそのまま受け付ける（フォームのrequiredと同じ判定）。
func (j Joke) Complete() bool {
	return j.Setup != "" && j.Punchline != ""
}

// Capability はAI生成機能の種類。
type Capability string

const (
	CapabilityJoke     Capability = "joke-json"
	CapabilityImage    Capability = "image-url"
	CapabilityAudio    Capability = "audio-url"
	CapabilityMarkdown Capability = "markdown-text"
)

// Capabilities は全てのAI生成機能を表示順に並べたもの。
var Capabilities = []Capability{
	CapabilityJoke,
	CapabilityImage,
	CapabilityAudio,
	CapabilityMarkdown,
}

// ParseCapability は文字列をCapabilityに変換する。
func ParseCapability(s string) (Capability, bool) {
	for _, c := range Capabilities {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// GenerationResult はAI生成機能の直近の出力。種類ごとに最大1件のみ保持される。
// Kindに応じてJoke、URL、Textのいずれか1つが設定される。
type GenerationResult struct {
	Kind      Capability `json:"kind"`
	Joke      *Joke      `json:"joke,omitempty"`
	URL       string     `json:"url,omitempty"`
	Text      string     `json:"text,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Page は表示中の画面。
type Page string

const (
	PageLogin Page = "login"
	PageHome  Page = "homePage"
)

// UIState はセッションと実行中リクエストから導出される画面状態。永続化しない。
type UIState struct {
	CurrentPage Page `json:"currentPage"`
	Busy        bool `json:"busy"`
}
