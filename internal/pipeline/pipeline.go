// Package pipeline implements the concurrent ingestion pipeline that turns a
// bucketed image+metadata dump into the content-addressed store:
// Source → Normalize → Merge → Write.
//
// Stages are goroutines joined by bounded channels. Only the source stage
// watches the caller's context: on cancellation it stops admitting records
// and closes its output, and the close cascades so downstream stages drain
// everything already in flight. Fatal errors (a failing store, an unreadable
// dataset root) cancel a separate internal context that aborts blocked sends
// immediately.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mkivela/tagdex/internal/conf"
	"github.com/mkivela/tagdex/internal/dataset"
	"github.com/mkivela/tagdex/internal/datastore"
	"github.com/mkivela/tagdex/internal/logging"
	"github.com/mkivela/tagdex/internal/observability"
	"github.com/mkivela/tagdex/internal/observability/metrics"
)

// Stats summarizes one pipeline run.
type Stats struct {
	RunID        string
	RecordsRead  int64
	Dropped      int64
	Posts        int64
	Merged       int64
	Conflicts    int64
	Commits      int64
	ImagesPlaced int64
	Elapsed      time.Duration
}

// runStats collects counters across stage goroutines.
type runStats struct {
	recordsRead  atomic.Int64
	dropped      atomic.Int64
	posts        atomic.Int64
	merged       atomic.Int64
	conflicts    atomic.Int64
	commits      atomic.Int64
	imagesPlaced atomic.Int64
}

// Pipeline wires the four stages over a shared store and settings.
type Pipeline struct {
	settings *conf.Settings
	store    datastore.Interface
	metrics  *metrics.PipelineMetrics
	locator  *dataset.Locator
	log      *slog.Logger
	logClose func() error
	stats    runStats
}

// New builds a pipeline over the given store. The store must already be open.
// With file logging enabled the pipeline logs to its rotated service log,
// falling back to the shared structured logger otherwise.
func New(settings *conf.Settings, store datastore.Interface, m *observability.Metrics) *Pipeline {
	p := &Pipeline{
		settings: settings,
		store:    store,
		metrics:  m.Pipeline,
		locator:  dataset.NewLocator(settings.Dataset.ImageDir),
		log:      logging.ForService("pipeline"),
	}

	if settings.Log.Enabled && settings.Log.Path != "" {
		level := slog.LevelInfo
		if settings.Debug {
			level = slog.LevelDebug
		}
		fileLogger, closeFunc, err := logging.NewFileLogger(settings.Log.Path, "pipeline", level)
		if err != nil {
			p.log.Warn("failed to open log file, using standard output", "path", settings.Log.Path, "error", err)
		} else {
			p.log = fileLogger
			p.logClose = closeFunc
		}
	}

	return p
}

// Run executes the pipeline until the source is exhausted or ctx is
// cancelled, and returns the run statistics. A cancelled ctx is a clean stop:
// admission halts, in-flight records drain to the store, and Run returns nil.
func (p *Pipeline) Run(ctx context.Context) (*Stats, error) {
	start := time.Now()
	if p.logClose != nil {
		defer p.logClose()
	}
	runID := uuid.New().String()
	log := p.log.With("run_id", runID)

	slots, err := Distribute(
		p.settings.Pipeline.Budget,
		map[string]int{RoleMerge: 1, RoleWrite: 1},
		map[string]int{RoleSource: 1, RoleNormalize: p.settings.Pipeline.NormalizeWeight},
	)
	if err != nil {
		return nil, err
	}
	log.Info("starting ingestion",
		"source_workers", slots[RoleSource],
		"normalize_workers", slots[RoleNormalize],
		"queue_size", p.settings.Pipeline.QueueSize,
		"commit_batch", p.settings.Pipeline.CommitBatch)

	queueSize := p.settings.Pipeline.QueueSize
	raw := make(chan *dataset.RawRecord, queueSize)
	normalized := make(chan *dataset.NormalizedRecord, queueSize)
	drafts := make(chan *Draft, queueSize)

	// The group context carries fatal aborts only; the caller's ctx governs
	// admission so a clean stop still drains.
	g, fatalCtx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		defer close(raw)
		return p.runSource(ctx, fatalCtx, slots[RoleSource], raw)
	})

	var normWG sync.WaitGroup
	for i := 0; i < slots[RoleNormalize]; i++ {
		normWG.Add(1)
		g.Go(func() error {
			defer normWG.Done()
			return p.runNormalize(fatalCtx, raw, normalized)
		})
	}
	g.Go(func() error {
		normWG.Wait()
		close(normalized)
		return nil
	})

	g.Go(func() error {
		defer close(drafts)
		return p.runMerge(fatalCtx, normalized, drafts)
	})

	g.Go(func() error {
		return p.runWrite(drafts)
	})

	err = g.Wait()
	stats := p.snapshot(runID, time.Since(start))
	if err != nil {
		log.Error("ingestion aborted",
			"error", err,
			"records_read", stats.RecordsRead,
			"posts", stats.Posts,
			"commits", stats.Commits)
		return stats, err
	}

	log.Info("ingestion complete",
		"records_read", stats.RecordsRead,
		"dropped", stats.Dropped,
		"posts", stats.Posts,
		"merged", stats.Merged,
		"conflicts", stats.Conflicts,
		"commits", stats.Commits,
		"images_placed", stats.ImagesPlaced,
		"elapsed", stats.Elapsed)
	return stats, nil
}

func (p *Pipeline) snapshot(runID string, elapsed time.Duration) *Stats {
	return &Stats{
		RunID:        runID,
		RecordsRead:  p.stats.recordsRead.Load(),
		Dropped:      p.stats.dropped.Load(),
		Posts:        p.stats.posts.Load(),
		Merged:       p.stats.merged.Load(),
		Conflicts:    p.stats.conflicts.Load(),
		Commits:      p.stats.commits.Load(),
		ImagesPlaced: p.stats.imagesPlaced.Load(),
		Elapsed:      elapsed,
	}
}

// drop records one discarded record with its reason.
func (p *Pipeline) drop(reason string, err error, args ...any) {
	p.stats.dropped.Add(1)
	p.metrics.RecordDropped(reason)
	if err != nil {
		args = append(args, "error", err)
	}
	p.log.Debug("record dropped", append([]any{"reason", reason}, args...)...)
}
