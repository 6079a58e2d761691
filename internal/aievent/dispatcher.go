// Package aievent はAIイベントAPIへの生成リクエストと、その実行状態を提供する。
package aievent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hitoshi/jokecentral/internal/model"
)

const tracerName = "github.com/hitoshi/jokecentral/internal/aievent"

// maxResponseSize はAIイベントAPIの応答ボディの上限。結果はURLかテキストのため1MiBで足りる。
const maxResponseSize = 1 << 20

// ErrResponseTooLarge はAIイベントAPIの応答がmaxResponseSizeを超えた場合のエラー。
var ErrResponseTooLarge = errors.New("aievent: response too large")

// ErrNotSignedIn は認証情報を取得できない状態で生成を要求した場合のエラー。
var ErrNotSignedIn = errors.New("aievent: not signed in")

// Dispatcher は機能名とペイロードを送信し、結果を返す汎用の生成API。
type Dispatcher interface {
	Dispatch(ctx context.Context, capability string, payload any) (json.RawMessage, error)
}

// CredentialFunc はリクエストごとにサインイン中ユーザーの認証情報を返す。
type CredentialFunc func(ctx context.Context) (model.Credential, error)

// DispatchRecorder は生成リクエストの結果を記録する。
type DispatchRecorder interface {
	RecordDispatch(capability string, success bool, duration time.Duration)
}

// HTTPConfig はHTTPDispatcherの設定。
type HTTPConfig struct {
	Endpoint   string
	AppID      string
	HTTPClient *http.Client
	Metrics    DispatchRecorder
}

// HTTPDispatcher はAIイベントAPIへPOSTするDispatcher。
// リトライとタイムアウトは行わず、呼び出し元のcontextに従う。
type HTTPDispatcher struct {
	config      HTTPConfig
	client      *http.Client
	credentials CredentialFunc
	tracer      trace.Tracer
}

// NewHTTPDispatcher はHTTPDispatcherを生成する。
func NewHTTPDispatcher(config HTTPConfig, credentials CredentialFunc) *HTTPDispatcher {
	client := config.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPDispatcher{
		config:      config,
		client:      client,
		credentials: credentials,
		tracer:      otel.Tracer(tracerName),
	}
}

type eventRequest struct {
	AppID     string `json:"app_id"`
	EventType string `json:"event_type"`
	Data      any    `json:"data"`
}

type eventResponse struct {
	Result json.RawMessage `json:"result"`
}

// Dispatch は生成リクエストを1回送信し、レスポンスのresultを返す。
func (d *HTTPDispatcher) Dispatch(ctx context.Context, capability string, payload any) (result json.RawMessage, err error) {
	requestID := uuid.New().String()
	ctx, span := d.tracer.Start(ctx, "aievent.dispatch",
		trace.WithAttributes(
			attribute.String("aievent.capability", capability),
			attribute.String("aievent.request_id", requestID),
		))
	start := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if d.config.Metrics != nil {
			d.config.Metrics.RecordDispatch(capability, err == nil, time.Since(start))
		}
	}()

	cred, err := d.credentials(ctx)
	if err != nil {
		return nil, err
	}
	if cred.AccessToken == "" {
		return nil, ErrNotSignedIn
	}

	body, err := json.Marshal(eventRequest{AppID: d.config.AppID, EventType: capability, Data: payload})
	if err != nil {
		return nil, fmt.Errorf("failed to encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create event request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("X-Request-ID", requestID)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("event request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read event response: %w", err)
	}
	if len(respBody) > maxResponseSize {
		return nil, ErrResponseTooLarge
	}
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("event request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed eventResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse event response: %w", err)
	}
	if len(parsed.Result) == 0 {
		return nil, fmt.Errorf("event response has no result")
	}
	return parsed.Result, nil
}

// compile-time interface check
var _ Dispatcher = (*HTTPDispatcher)(nil)
