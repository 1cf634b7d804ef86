package compliance

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rdss/casework/internal/shared/clock"
	"github.com/rdss/casework/internal/shared/events"
	"github.com/rdss/casework/internal/shared/metrics"
	"github.com/rdss/casework/internal/shared/types"
)

const (
	snapshotKey = "rdss:compliance:report"
	breachedKey = "rdss:compliance:breached"
)

// Runner drives the compliance engine: it serves cached report snapshots,
// deduplicates concurrent recomputations with a single-flight guard, runs
// the report on a schedule, and emits a breach event the first time a case
// turns Overdue.
type Runner struct {
	engine      *Engine
	redis       *redis.Client // nil disables the snapshot cache
	bus         events.Publisher
	clock       clock.Clock
	logger      *zap.Logger
	snapshotTTL time.Duration

	group singleflight.Group

	// In-memory breach set used when redis is unavailable
	mu       sync.Mutex
	breached map[types.ID]bool
}

// NewRunner creates a compliance runner. redisClient and bus may be nil.
func NewRunner(engine *Engine, redisClient *redis.Client, bus events.Publisher, clk clock.Clock, snapshotTTL time.Duration, logger *zap.Logger) *Runner {
	return &Runner{
		engine:      engine,
		redis:       redisClient,
		bus:         bus,
		clock:       clk,
		logger:      logger,
		snapshotTTL: snapshotTTL,
		breached:    make(map[types.ID]bool),
	}
}

// Report returns the compliance report as of now. Unless refresh is set, a
// cached snapshot within its TTL is served; otherwise the report is
// recomputed, with concurrent callers collapsed onto one computation.
func (r *Runner) Report(ctx context.Context, refresh bool) (*Report, error) {
	if !refresh {
		if cached := r.cachedSnapshot(ctx); cached != nil {
			return cached, nil
		}
	}

	result, err, _ := r.group.Do("report", func() (interface{}, error) {
		return r.run(ctx)
	})
	if err != nil {
		return nil, err
	}

	return result.(*Report), nil
}

// Start runs the report on a fixed interval until ctx is cancelled. A zero
// interval disables the periodic runner.
func (r *Runner) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := r.Report(ctx, true); err != nil {
					r.logger.Warn("scheduled compliance run failed", zap.Error(err))
				}
			}
		}
	}()
}

func (r *Runner) run(ctx context.Context) (*Report, error) {
	start := time.Now()

	report, err := r.engine.ComputeReport(ctx, r.clock.Now())
	if err != nil {
		return nil, err
	}

	metrics.RecordComplianceRun(time.Since(start), report.OverdueCount)

	r.storeSnapshot(ctx, report)
	r.emitBreaches(ctx, report)

	return report, nil
}

func (r *Runner) cachedSnapshot(ctx context.Context) *Report {
	if r.redis == nil {
		return nil
	}

	data, err := r.redis.Get(ctx, snapshotKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.logger.Warn("failed to read report snapshot", zap.Error(err))
		}
		return nil
	}

	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		r.logger.Warn("failed to decode report snapshot", zap.Error(err))
		return nil
	}

	return &report
}

func (r *Runner) storeSnapshot(ctx context.Context, report *Report) {
	if r.redis == nil {
		return
	}

	data, err := json.Marshal(report)
	if err != nil {
		r.logger.Warn("failed to encode report snapshot", zap.Error(err))
		return
	}

	if err := r.redis.Set(ctx, snapshotKey, data, r.snapshotTTL).Err(); err != nil {
		r.logger.Warn("failed to store report snapshot", zap.Error(err))
	}
}

// emitBreaches publishes a compliance.breached event for every case that is
// Overdue now but was not in the previous run. Cases leaving Overdue are
// removed from the breach set so a later relapse fires again.
func (r *Runner) emitBreaches(ctx context.Context, report *Report) {
	previous := r.loadBreachSet(ctx)

	current := make(map[types.ID]bool, report.OverdueCount)
	for _, rec := range report.Records {
		if rec.Status != StatusOverdue {
			continue
		}
		current[rec.CaseID] = true

		if previous[rec.CaseID] {
			continue
		}

		if r.bus != nil {
			event := events.NewEvent(events.TypeComplianceBreached, "compliance", map[string]any{
				"days_overdue":      rec.DaysOverdue,
				"cadence_months":    rec.CadenceMonths,
				"never_contacted":   rec.DaysOverdue == NeverContactedDays,
				"primary_worker_id": rec.PrimaryWorkerID,
				"supervisor_id":     rec.SupervisorID,
			}).WithCase(rec.CaseID, rec.BeneficiaryID, rec.PriorityCode)

			if err := r.bus.Publish(ctx, event); err != nil {
				r.logger.Warn("failed to publish breach event",
					zap.String("case_id", rec.CaseID.String()), zap.Error(err))
			}
		}
	}

	r.storeBreachSet(ctx, current)
}

func (r *Runner) loadBreachSet(ctx context.Context) map[types.ID]bool {
	if r.redis != nil {
		members, err := r.redis.SMembers(ctx, breachedKey).Result()
		if err == nil {
			set := make(map[types.ID]bool, len(members))
			for _, m := range members {
				set[types.ID(m)] = true
			}
			return set
		}
		r.logger.Warn("failed to read breach set", zap.Error(err))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	set := make(map[types.ID]bool, len(r.breached))
	for id := range r.breached {
		set[id] = true
	}
	return set
}

func (r *Runner) storeBreachSet(ctx context.Context, current map[types.ID]bool) {
	if r.redis != nil {
		pipe := r.redis.TxPipeline()
		pipe.Del(ctx, breachedKey)
		if len(current) > 0 {
			members := make([]interface{}, 0, len(current))
			for id := range current {
				members = append(members, id.String())
			}
			pipe.SAdd(ctx, breachedKey, members...)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			r.logger.Warn("failed to store breach set", zap.Error(err))
		}
	}

	r.mu.Lock()
	r.breached = current
	r.mu.Unlock()
}
