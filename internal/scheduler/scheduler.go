// Package scheduler runs the subscription lifecycle jobs: expiry warnings,
// automatic renewals and grace period expirations. Jobs are batch oriented
// and safe to re-run; each pass only selects records still in the job's
// pre-state.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	analyticsdomain "github.com/classbill/classbill/internal/analytics/domain"
	"github.com/classbill/classbill/internal/clock"
	"github.com/classbill/classbill/internal/notification"
	obsmetrics "github.com/classbill/classbill/internal/observability/metrics"
	organizationdomain "github.com/classbill/classbill/internal/organization/domain"
	paymentdomain "github.com/classbill/classbill/internal/payment/domain"
	subscriptiondomain "github.com/classbill/classbill/internal/subscription/domain"
	transactiondomain "github.com/classbill/classbill/internal/transaction/domain"
	"github.com/oklog/ulid/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock

	SubscriptionSvc  subscriptiondomain.Service
	SubscriptionRepo subscriptiondomain.Repository
	OrgRepo          organizationdomain.Repository
	Gateway          paymentdomain.Gateway
	LedgerSvc        transactiondomain.Service
	AnalyticsSvc     analyticsdomain.Service
	Notifications    *notification.Queue `optional:"true"`

	Config Config `optional:"true"`
}

type Scheduler struct {
	db    *gorm.DB
	log   *zap.Logger
	cfg   Config
	genID *snowflake.Node
	clock clock.Clock

	subscriptionSvc  subscriptiondomain.Service
	subscriptionRepo subscriptiondomain.Repository
	orgRepo          organizationdomain.Repository
	gateway          paymentdomain.Gateway
	ledgerSvc        transactiondomain.Service
	analyticsSvc     analyticsdomain.Service
	notifications    *notification.Queue
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil ||
		p.SubscriptionSvc == nil || p.SubscriptionRepo == nil || p.OrgRepo == nil ||
		p.Gateway == nil || p.LedgerSvc == nil || p.AnalyticsSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:    p.DB,
		log:   p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:   p.Config.withDefaults(),
		genID: p.GenID,
		clock: p.Clock,

		subscriptionSvc:  p.SubscriptionSvc,
		subscriptionRepo: p.SubscriptionRepo,
		orgRepo:          p.OrgRepo,
		gateway:          p.Gateway,
		ledgerSvc:        p.LedgerSvc,
		analyticsSvc:     p.AnalyticsSvc,
		notifications:    p.Notifications,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context, run *jobRun) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	run := &jobRun{
		job:       name,
		runID:     ulid.Make().String(),
		batchSize: s.cfg.BatchSize,
		startedAt: start,
	}
	s.logJobStart(run)

	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx, run)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if err != nil && run.errorCount == 0 {
		run.IncError()
	}
	s.logJobFinish(run)
	if err == nil {
		return nil
	}

	// A run that hits its deadline is a soft timeout: the next tick picks up
	// where this one stopped, so it is logged and counted but not propagated.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		schedMetrics.IncJobTimeout(name)
		schedMetrics.IncJobError(name, err)
		s.log.Warn("job timed out",
			zap.String("job", name),
			zap.String("run_id", run.runID),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	schedMetrics.IncJobError(name, err)
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce executes one pass of every enabled lifecycle job. Warnings run
// before renewals so an organization is never reminded about an expiry the
// same pass already pushed forward.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Timeout time.Duration
		Run     func(context.Context, *jobRun) error
	}{
		{JobExpiryWarnings, s.cfg.JobTimeout, s.expiryWarningsJob},
		{JobProcessRenewals, s.cfg.JobTimeout, s.processRenewalsJob},
		{JobExpireGracePeriods, s.cfg.JobTimeout, s.expireGracePeriodsJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, job.Timeout, job.Run))
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// An empty EnabledJobs list enables everything (monolith mode).
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}
