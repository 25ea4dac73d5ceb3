// Package progress reports per-source scan progress: interactive bars for a
// TTY, throttled log lines otherwise, and a silent manager for tests.
package progress

import (
	"fmt"
	"sync/atomic"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// Tracker tracks progress for a single MRF source.
type Tracker interface {
	SetStage(stage string)
	SetProgress(current, total int64)
	SetCounter(name string, value int64)
	Done()
}

// Manager creates trackers for individual sources.
type Manager interface {
	NewTracker(index, total int, name string) Tracker
	Wait()
}

// MPBManager implements Manager using the mpb multi-progress-bar library.
type MPBManager struct {
	container *mpb.Progress
}

// NewMPBManager creates a new mpb-based progress manager.
func NewMPBManager() *MPBManager {
	return &MPBManager{container: mpb.New(mpb.WithWidth(60))}
}

// NewTracker creates a progress bar for one source.
func (m *MPBManager) NewTracker(index, total int, name string) Tracker {
	stageVal := &atomic.Value{}
	stageVal.Store("")
	bar := m.container.AddBar(100,
		mpb.PrependDecorators(
			decor.Name(fmt.Sprintf("[%d/%d] %s ", index+1, total, name), decor.WCSyncSpaceR),
		),
		mpb.AppendDecorators(
			decor.Any(func(s decor.Statistics) string {
				return stageVal.Load().(string)
			}),
		),
	)

	return &mpbTracker{bar: bar, stagePtr: stageVal}
}

// Wait waits for all progress bars to finish.
func (m *MPBManager) Wait() {
	m.container.Wait()
}

type mpbTracker struct {
	bar      *mpb.Bar
	stagePtr *atomic.Value
}

func (t *mpbTracker) SetStage(stage string) {
	t.stagePtr.Store(stage)
	t.bar.SetCurrent(0) // reset progress for new stage
}

func (t *mpbTracker) SetProgress(current, total int64) {
	if total > 0 {
		pct := int64(float64(current) / float64(total) * 100)
		t.bar.SetTotal(100, false)
		t.bar.SetCurrent(pct)
	}
}

func (t *mpbTracker) SetCounter(name string, value int64) {
	// Counters are shown by the log manager; bars track bytes only.
}

func (t *mpbTracker) Done() {
	t.bar.SetTotal(100, false)
	t.bar.SetCurrent(100)
	t.bar.Abort(false) // complete without removing
}

// NoopManager is a silent progress manager for tests and embedding.
type NoopManager struct{}

func (m *NoopManager) NewTracker(index, total int, name string) Tracker { return &noopTracker{} }

func (m *NoopManager) Wait() {}

type noopTracker struct{}

func (t *noopTracker) SetStage(stage string)               {}
func (t *noopTracker) SetProgress(current, total int64)    {}
func (t *noopTracker) SetCounter(name string, value int64) {}
func (t *noopTracker) Done()                               {}
