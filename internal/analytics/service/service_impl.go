package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	analyticsdomain "github.com/classbill/classbill/internal/analytics/domain"
	"github.com/classbill/classbill/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID *snowflake.Node
	clock clock.Clock
	repo  analyticsdomain.Repository
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  analyticsdomain.Repository
}

func NewService(p ServiceParam) analyticsdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("analytics.service"),

		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

// Record implements domain.Service.
func (s *Service) Record(ctx context.Context, event analyticsdomain.LifecycleEvent) error {
	if event.OrgID == 0 || event.EventType == "" {
		return analyticsdomain.ErrInvalidEvent
	}
	if event.ID == 0 {
		event.ID = s.genID.Generate()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.clock.Now()
	}
	if err := s.repo.InsertEvent(ctx, s.db, &event); err != nil {
		s.log.Error("recording lifecycle event",
			zap.Int64("org_id", int64(event.OrgID)),
			zap.String("event_type", string(event.EventType)),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// EventsForOrg implements domain.Service.
func (s *Service) EventsForOrg(ctx context.Context, orgID snowflake.ID, limit int) ([]analyticsdomain.LifecycleEvent, error) {
	if orgID == 0 {
		return nil, analyticsdomain.ErrInvalidEvent
	}
	return s.repo.FindEventsByOrg(ctx, s.db, orgID, limit)
}

// Summary implements domain.Service.
func (s *Service) Summary(ctx context.Context) (analyticsdomain.Summary, error) {
	revenue, err := s.repo.RevenueByTier(ctx, s.db)
	if err != nil {
		return analyticsdomain.Summary{}, err
	}
	subs, err := s.repo.SubscriptionCounts(ctx, s.db)
	if err != nil {
		return analyticsdomain.Summary{}, err
	}
	events, err := s.repo.CountEventsByType(ctx, s.db)
	if err != nil {
		return analyticsdomain.Summary{}, err
	}
	return analyticsdomain.Summary{
		GeneratedAt:   s.clock.Now(),
		Revenue:       revenue,
		Subscriptions: subs,
		EventCounts:   events,
	}, nil
}
