// Package joke はジョーク保存APIのクライアントと、サインイン中ユーザーのジョーク一覧を提供する。
package joke

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/jokecentral/internal/model"
)

const (
	listPath = "/api/getJokes"
	savePath = "/api/saveJoke"

	// maxResponseSize はジョークAPIの応答ボディの上限。
	maxResponseSize = 4 << 20
)

// ErrResponseTooLarge はジョークAPIの応答がmaxResponseSizeを超えた場合のエラー。
var ErrResponseTooLarge = errors.New("joke: response too large")

// RequestRecorder はジョークAPI呼び出しの結果を記録する。
type RequestRecorder interface {
	RecordJokeRequest(endpoint string, statusCode int, duration time.Duration)
}

// Client はジョーク保存APIのHTTPクライアント。
// 全リクエストにサインイン中ユーザーのBearerトークンを付与する。
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    RequestRecorder
}

// NewClient はClientを生成する。
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger, metrics RequestRecorder) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
		metrics:    metrics,
	}
}

// List はユーザーのジョーク一覧を取得する。200以外はエラーとする。
func (c *Client) List(ctx context.Context, cred model.Credential) ([]model.Joke, error) {
	body, err := c.do(ctx, http.MethodGet, listPath, cred, nil)
	if err != nil {
		return nil, err
	}

	var jokes []model.Joke
	if err := json.Unmarshal(body, &jokes); err != nil {
		return nil, fmt.Errorf("ジョーク一覧のパースに失敗しました: %w", err)
	}
	if jokes == nil {
		jokes = []model.Joke{}
	}
	return jokes, nil
}

// Save はジョークを保存する。200であればレスポンスボディの内容に関わらず成功とする。
func (c *Client) Save(ctx context.Context, cred model.Credential, joke model.Joke) error {
	payload, err := json.Marshal(joke)
	if err != nil {
		return fmt.Errorf("ジョークのエンコードに失敗しました: %w", err)
	}
	_, err = c.do(ctx, http.MethodPost, savePath, cred, payload)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, cred model.Credential, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(path, 0, start)
		return nil, fmt.Errorf("ジョークAPIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()
	c.record(path, resp.StatusCode, start)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ジョークAPIがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}
	if len(body) > maxResponseSize {
		return nil, fmt.Errorf("%s: %w", path, ErrResponseTooLarge)
	}
	return body, nil
}

func (c *Client) record(path string, status int, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordJokeRequest(path, status, time.Since(start))
	}
}
