package cleanup

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// mockJob は関数フィールドで振る舞いを差し替えるジョブ。
type mockJob struct {
	name  string
	runFn func(ctx context.Context) error
	runs  int
}

func (m *mockJob) Name() string { return m.name }

func (m *mockJob) Run(ctx context.Context) error {
	m.runs++
	if m.runFn != nil {
		return m.runFn(ctx)
	}
	return nil
}

func TestScheduler_RunOnce_ContinuesAfterFailure(t *testing.T) {
	var buf bytes.Buffer
	failing := &mockJob{name: "failing", runFn: func(ctx context.Context) error { return errors.New("boom") }}
	ok := &mockJob{name: "ok"}
	s := NewScheduler(newTestLogger(&buf), failing, ok)

	failed := s.RunOnce(context.Background())

	if failed != 1 {
		t.Errorf("RunOnce() = %d, want 1", failed)
	}
	if failing.runs != 1 || ok.runs != 1 {
		t.Errorf("runs = (%d, %d), want (1, 1)", failing.runs, ok.runs)
	}
	if !strings.Contains(buf.String(), `"job":"failing"`) {
		t.Errorf("失敗したジョブ名がログに記録されていない。ログ出力: %s", buf.String())
	}
}

func TestScheduler_RunOnce_CancelledContext_SkipsJobs(t *testing.T) {
	var buf bytes.Buffer
	job := &mockJob{name: "job"}
	s := NewScheduler(newTestLogger(&buf), job)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.RunOnce(ctx)

	if job.runs != 0 {
		t.Errorf("キャンセル済みコンテキストではジョブを実行しない: runs = %d", job.runs)
	}
}

func TestScheduler_Start_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	evicter := &mockIdleEvicter{}
	s := NewScheduler(newTestLogger(&buf), NewWorkspaceSweepJob(evicter, time.Minute, nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx, time.Hour)
		close(done)
	}()

	// 起動直後の1回目を待つ
	deadline := time.Now().Add(2 * time.Second)
	for evicter.calls() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if evicter.calls() != 1 {
		t.Errorf("起動直後の実行回数 = %d, want 1", evicter.calls())
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("キャンセル後にスケジューラが停止しなかった")
	}
}
