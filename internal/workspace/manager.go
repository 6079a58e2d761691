package workspace

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Factory はブラウザセッションIDからWorkspaceの構成要素を生成する。
type Factory func(browserID string) Components

// GaugeRecorder は保持中のWorkspace数を記録する。
type GaugeRecorder interface {
	SetActiveWorkspaces(n int)
}

type entry struct {
	once sync.Once
	ws   atomic.Pointer[Workspace]
}

// Manager はブラウザセッションIDごとのWorkspaceを保持する。
// 最初のリクエストで生成してOpenし、明示的な破棄かアイドル掃除でCloseする。
type Manager struct {
	factory Factory
	logger  *slog.Logger
	gauge   GaugeRecorder
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

// NewManager はManagerを生成する。
func NewManager(factory Factory, logger *slog.Logger, gauge GaugeRecorder) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		factory: factory,
		logger:  logger,
		gauge:   gauge,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// Get は指定IDのWorkspaceを返す。無ければ生成してOpenする。
// 同じIDへの同時リクエストでもOpenは1度だけ行われる。
// Open中に破棄されたエントリは返さず、新しいエントリで作り直す。
func (m *Manager) Get(ctx context.Context, id string) *Workspace {
	for {
		m.mu.Lock()
		e, ok := m.entries[id]
		if !ok {
			e = &entry{}
			m.entries[id] = e
		}
		n := len(m.entries)
		m.mu.Unlock()

		if !ok {
			m.recordGauge(n)
		}

		e.once.Do(func() {
			ws := New(id, m.factory(id), m.logger)
			ws.now = m.now
			ws.Open(context.WithoutCancel(ctx))
			e.ws.Store(ws)
		})

		// 登録が残っている間にtouchすれば、EvictIdleの対象にはならない
		m.mu.Lock()
		current := m.entries[id] == e
		ws := e.ws.Load()
		if current && ws != nil {
			ws.touch()
		}
		m.mu.Unlock()

		if current && ws != nil {
			return ws
		}
	}
}

// Evict は指定IDのWorkspaceをCloseして破棄する。
func (m *Manager) Evict(id string) {
	m.mu.Lock()
	e, ok := m.entries[id]
	delete(m.entries, id)
	n := len(m.entries)
	m.mu.Unlock()

	if !ok {
		return
	}
	m.recordGauge(n)
	closeEntry(e)
}

// EvictIdle はmaxIdleより長くリクエストの無いWorkspaceを破棄し、件数を返す。
func (m *Manager) EvictIdle(maxIdle time.Duration) int {
	cutoff := m.now().Add(-maxIdle)

	m.mu.Lock()
	var idle []*entry
	for id, e := range m.entries {
		if ws := e.ws.Load(); ws != nil && ws.LastActive().Before(cutoff) {
			idle = append(idle, e)
			delete(m.entries, id)
		}
	}
	n := len(m.entries)
	m.mu.Unlock()

	if len(idle) == 0 {
		return 0
	}
	m.recordGauge(n)
	for _, e := range idle {
		closeEntry(e)
	}
	m.logger.Info("idle workspaces evicted", slog.Int("count", len(idle)))
	return len(idle)
}

// Len は保持中のWorkspace数を返す。
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// CloseAll は全てのWorkspaceをCloseする。シャットダウン時に使用する。
func (m *Manager) CloseAll() {
	m.mu.Lock()
	entries := m.entries
	m.entries = make(map[string]*entry)
	m.mu.Unlock()

	for _, e := range entries {
		closeEntry(e)
	}
	m.recordGauge(0)
}

func (m *Manager) recordGauge(n int) {
	if m.gauge != nil {
		m.gauge.SetActiveWorkspaces(n)
	}
}

// closeEntry は生成中であれば完了を待ってからCloseする。
func closeEntry(e *entry) {
	e.once.Do(func() {})
	if ws := e.ws.Load(); ws != nil {
		ws.Close()
	}
}
