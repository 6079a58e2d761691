package security

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrMediaTooLarge はメディアが上限サイズを超えた場合のエラー。
	ErrMediaTooLarge = errors.New("media exceeds size limit")
	// ErrUnexpectedMediaType は期待した種類以外のContent-Typeが返された場合のエラー。
	ErrUnexpectedMediaType = errors.New("unexpected media content type")
)

// Media は中継するメディアの内容。
type Media struct {
	ContentType string
	Body        []byte
}

// MediaFetcher は生成された画像や音声をSSRF対策付きで取得する。
// ブラウザには外部URLを直接渡さず、サーバーから中継する。
type MediaFetcher struct {
	guard   SSRFGuardService
	client  *http.Client
	maxSize int64
}

// NewMediaFetcher はMediaFetcherを生成する。
func NewMediaFetcher(guard SSRFGuardService, timeout time.Duration, maxSize int64) *MediaFetcher {
	return &MediaFetcher{
		guard:   guard,
		client:  guard.NewSafeClient(timeout),
		maxSize: maxSize,
	}
}

// Fetch はURLのメディアを取得する。
// Content-TypeがtypePrefix（例: "image/"）で始まらない場合と、maxSizeを超える場合はエラーを返す。
func (f *MediaFetcher) Fetch(ctx context.Context, rawURL, typePrefix string) (*Media, error) {
	if err := f.guard.ValidateURL(rawURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create media request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("media request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("media request failed with status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, typePrefix) {
		return nil, fmt.Errorf("%w: %q", ErrUnexpectedMediaType, contentType)
	}
	if resp.ContentLength > f.maxSize {
		return nil, ErrMediaTooLarge
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read media: %w", err)
	}
	if int64(len(body)) > f.maxSize {
		return nil, ErrMediaTooLarge
	}

	return &Media{ContentType: contentType, Body: body}, nil
}
