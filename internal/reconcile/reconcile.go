// Package reconcile replays side effects that failed after their triggering
// event committed, and repairs follow asymmetry.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anonto42/campus-feed/backend/internal/metrics"
	"github.com/anonto42/campus-feed/backend/internal/models"
	"github.com/anonto42/campus-feed/backend/internal/repositories"
	"github.com/rs/zerolog"
)

// Replayer re-executes one queued task. Replays must be idempotent.
type Replayer interface {
	Replay(ctx context.Context, task models.ReconcileTask) error
}

// GraphRepairer restores followers/following symmetry.
type GraphRepairer interface {
	Reconcile(ctx context.Context) (int, error)
}

const (
	// BatchSize is how many pending tasks one pass picks up.
	BatchSize = 100
	// MaxAttempts is how many replays a task gets before it is marked dead.
	MaxAttempts = 10
)

type Reconciler struct {
	queue     repositories.ReconcileRepository
	replayers map[models.ReconcileKind]Replayer
	graph     GraphRepairer
	logger    zerolog.Logger
}

func New(queue repositories.ReconcileRepository, ledger, fanout Replayer, graph GraphRepairer, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		queue: queue,
		replayers: map[models.ReconcileKind]Replayer{
			models.ReconcileKindLedger: ledger,
			models.ReconcileKindFanout: fanout,
		},
		graph:  graph,
		logger: logger.With().Str("component", "reconcile").Logger(),
	}
}

// Report summarizes one pass.
type Report struct {
	Replayed      int `json:"replayed"`
	Failed        int `json:"failed"`
	Dead          int `json:"dead"`
	GraphRepaired int `json:"graphRepaired"`
}

// RunOnce replays pending tasks and then runs the graph symmetry pass.
func (r *Reconciler) RunOnce(ctx context.Context) (Report, error) {
	var rep Report
	tasks, err := r.queue.Pending(ctx, BatchSize)
	if err != nil {
		return rep, fmt.Errorf("load pending tasks: %w", err)
	}
	for _, task := range tasks {
		replayer, ok := r.replayers[task.Kind]
		if !ok {
			r.logger.Error().Str("task", task.Key).Str("kind", string(task.Kind)).Msg("unknown task kind")
			continue
		}
		if err := replayer.Replay(ctx, task); err != nil {
			attempts := task.Attempts + 1
			if errors.Is(err, models.ErrNotFound) || attempts >= MaxAttempts {
				rep.Dead++
				metrics.ReconcileTasks.WithLabelValues(string(task.Kind), "dead").Inc()
				r.logger.Error().Err(err).Str("task", task.Key).Int("attempts", attempts).Msg("replay failed for good, task marked dead")
				if err := r.queue.MarkDead(ctx, task.ID, err); err != nil {
					return rep, err
				}
				continue
			}
			rep.Failed++
			metrics.ReconcileTasks.WithLabelValues(string(task.Kind), "failed").Inc()
			r.logger.Warn().Err(err).Str("task", task.Key).Int("attempts", attempts).Msg("replay failed")
			if err := r.queue.MarkFailed(ctx, task.ID, err); err != nil {
				return rep, err
			}
			continue
		}
		if err := r.queue.MarkDone(ctx, task.ID); err != nil {
			return rep, err
		}
		rep.Replayed++
		metrics.ReconcileTasks.WithLabelValues(string(task.Kind), "done").Inc()
	}

	n, err := r.graph.Reconcile(ctx)
	rep.GraphRepaired = n
	if err != nil {
		return rep, fmt.Errorf("graph pass: %w", err)
	}
	if rep.Replayed+rep.Failed+rep.Dead+rep.GraphRepaired > 0 {
		r.logger.Info().Int("replayed", rep.Replayed).Int("failed", rep.Failed).Int("dead", rep.Dead).Int("graph_repaired", rep.GraphRepaired).Msg("reconcile pass")
	}
	return rep, nil
}

// Run calls RunOnce every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.Error().Err(err).Msg("reconcile pass failed")
			}
		}
	}
}
