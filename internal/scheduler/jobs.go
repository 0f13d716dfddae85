package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	analyticsdomain "github.com/classbill/classbill/internal/analytics/domain"
	"github.com/classbill/classbill/internal/notification"
	obsmetrics "github.com/classbill/classbill/internal/observability/metrics"
	organizationdomain "github.com/classbill/classbill/internal/organization/domain"
	plandomain "github.com/classbill/classbill/internal/plan/domain"
	subscriptiondomain "github.com/classbill/classbill/internal/subscription/domain"
	transactiondomain "github.com/classbill/classbill/internal/transaction/domain"
	"go.uber.org/zap"
)

const (
	JobExpiryWarnings     = "expiry_warnings"
	JobProcessRenewals    = "process_renewals"
	JobExpireGracePeriods = "expire_grace_periods"
)

const dateLayout = "Jan 2, 2006"

// expiryWarningsJob notifies organizations whose paid subscription expires
// inside the reminder window. It does not mutate subscription state, so each
// run sends at most one batch.
func (s *Scheduler) expiryWarningsJob(ctx context.Context, run *jobRun) error {
	now := s.clock.Now()
	subs, err := s.subscriptionRepo.FindExpiringBetween(ctx, s.db, now, now.Add(s.cfg.ReminderWindow), s.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, sub := range subs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		org, lookupErr := s.orgRepo.FindByID(ctx, s.db, sub.OrgID)
		if lookupErr != nil {
			s.logItemError(run, sub.OrgID, lookupErr)
			continue
		}
		if org == nil || org.SupportEmail == "" {
			continue
		}
		s.notify(org.SupportEmail, notification.TemplateRenewalReminder, map[string]any{
			"org_name":    org.Name,
			"plan_tier":   string(sub.PlanTier),
			"days_left":   daysUntil(now, sub.ExpiryDate),
			"expiry_date": formatDate(sub.ExpiryDate),
		})
		run.AddProcessed(1)
	}
	obsmetrics.Scheduler().AddBatchProcessed(run.job, "subscriptions", len(subs))
	return nil
}

// processRenewalsJob charges every active paid subscription whose expiry has
// passed. Every outcome moves the record out of the due set, so looping
// until an empty batch terminates.
func (s *Scheduler) processRenewalsJob(ctx context.Context, run *jobRun) error {
	var jobErr error

	for {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		subs, err := s.subscriptionRepo.FindRenewalDue(ctx, s.db, s.clock.Now(), s.cfg.BatchSize)
		if err != nil {
			return errors.Join(jobErr, err)
		}
		if len(subs) == 0 {
			break
		}

		renewed := 0
		for _, sub := range subs {
			if ctx.Err() != nil {
				return errors.Join(jobErr, ctx.Err())
			}
			sub := sub
			if err := s.safely(func() error { return s.renewOne(ctx, run, sub) }); err != nil {
				jobErr = errors.Join(jobErr, err)
				s.logItemError(run, sub.OrgID, err)
				continue
			}
			run.AddProcessed(1)
			renewed++
		}
		obsmetrics.Scheduler().AddBatchProcessed(run.job, "subscriptions", len(subs))

		// Failed items stay in the due set. Once a whole batch makes no
		// progress, stop and leave the remainder for the next tick.
		if renewed == 0 {
			break
		}
	}

	return jobErr
}

func (s *Scheduler) renewOne(ctx context.Context, run *jobRun, sub subscriptiondomain.Subscription) error {
	org, err := s.orgRepo.FindByID(ctx, s.db, sub.OrgID)
	if err != nil {
		return err
	}

	if !sub.HasStoredPaymentMethod() {
		return s.renewalFailed(ctx, run, sub, org, "no_payment_method", "no stored payment method")
	}

	customerRef := ""
	if sub.ExternalCustomerRef != nil {
		customerRef = *sub.ExternalCustomerRef
	}
	verified, chargeErr := s.gateway.ChargeAuthorization(ctx, *sub.ExternalSubscriptionRef, customerRef, sub.Amount, sub.Currency)
	if chargeErr != nil {
		return s.renewalFailed(ctx, run, sub, org, "failed", chargeErr.Error())
	}

	reference := verified.Reference
	if reference == "" {
		reference = "renewal_" + s.genID.Generate().String()
	}
	if _, err := s.ledgerSvc.Record(ctx, transactiondomain.Transaction{
		ID:              reference,
		OrgID:           sub.OrgID,
		PlanTier:        sub.PlanTier,
		Amount:          verified.AmountPaid,
		Currency:        verified.Currency,
		Status:          transactiondomain.StatusSuccess,
		GatewayResponse: verified.GatewayMessage,
	}); err != nil {
		return err
	}

	renewed, err := s.subscriptionSvc.RenewalSucceeded(ctx, sub.OrgID)
	if err != nil {
		return err
	}
	obsmetrics.Scheduler().IncRenewalCharge("success")

	s.recordEvent(ctx, analyticsdomain.LifecycleEvent{
		OrgID:     sub.OrgID,
		EventType: analyticsdomain.EventRenewal,
		FromTier:  sub.PlanTier,
		ToTier:    sub.PlanTier,
		Amount:    verified.AmountPaid,
		Currency:  verified.Currency,
	})
	if org != nil && org.SupportEmail != "" {
		s.notify(org.SupportEmail, notification.TemplateRenewalSuccess, map[string]any{
			"org_name":    org.Name,
			"plan_tier":   string(sub.PlanTier),
			"expiry_date": formatDate(renewed.ExpiryDate),
		})
	}
	return nil
}

// renewalFailed records the failed charge, moves the subscription into its
// grace period and tells the organization why.
func (s *Scheduler) renewalFailed(
	ctx context.Context,
	run *jobRun,
	sub subscriptiondomain.Subscription,
	org *organizationdomain.Organization,
	outcome string,
	reason string,
) error {
	reference := "renewal_" + s.genID.Generate().String()
	if _, err := s.ledgerSvc.Record(ctx, transactiondomain.Transaction{
		ID:              reference,
		OrgID:           sub.OrgID,
		PlanTier:        sub.PlanTier,
		Amount:          sub.Amount,
		Currency:        sub.Currency,
		Status:          transactiondomain.StatusFailed,
		GatewayResponse: reason,
	}); err != nil {
		return err
	}

	graced, err := s.subscriptionSvc.RenewalFailed(ctx, sub.OrgID)
	if err != nil {
		return err
	}
	obsmetrics.Scheduler().IncRenewalCharge(outcome)
	s.log.Warn("renewal charge failed",
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.String("org_id", idString(sub.OrgID)),
		zap.String("reason", reason),
	)

	s.recordEvent(ctx, analyticsdomain.LifecycleEvent{
		OrgID:     sub.OrgID,
		EventType: analyticsdomain.EventPaymentFailed,
		FromTier:  sub.PlanTier,
		ToTier:    sub.PlanTier,
		Amount:    sub.Amount,
		Currency:  sub.Currency,
	})
	s.recordEvent(ctx, analyticsdomain.LifecycleEvent{
		OrgID:     sub.OrgID,
		EventType: analyticsdomain.EventGraceEntered,
		FromTier:  sub.PlanTier,
		ToTier:    sub.PlanTier,
	})
	if org != nil && org.SupportEmail != "" {
		s.notify(org.SupportEmail, notification.TemplateGracePeriod, map[string]any{
			"org_name":  org.Name,
			"plan_tier": string(sub.PlanTier),
			"reason":    reason,
			"grace_end": formatDate(graced.GracePeriodEnd),
		})
	}
	return nil
}

// expireGracePeriodsJob downgrades subscriptions whose grace period has run
// out. Usage counters are preserved by the subscription service.
func (s *Scheduler) expireGracePeriodsJob(ctx context.Context, run *jobRun) error {
	var jobErr error

	for {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		subs, err := s.subscriptionRepo.FindGraceExpired(ctx, s.db, s.clock.Now(), s.cfg.BatchSize)
		if err != nil {
			return errors.Join(jobErr, err)
		}
		if len(subs) == 0 {
			break
		}

		expired := 0
		for _, sub := range subs {
			if ctx.Err() != nil {
				return errors.Join(jobErr, ctx.Err())
			}
			sub := sub
			if err := s.safely(func() error { return s.expireOne(ctx, sub) }); err != nil {
				jobErr = errors.Join(jobErr, err)
				s.logItemError(run, sub.OrgID, err)
				continue
			}
			run.AddProcessed(1)
			expired++
		}
		obsmetrics.Scheduler().AddBatchProcessed(run.job, "subscriptions", len(subs))

		if expired == 0 {
			break
		}
	}

	return jobErr
}

func (s *Scheduler) expireOne(ctx context.Context, sub subscriptiondomain.Subscription) error {
	previousTier := sub.PlanTier
	downgraded, err := s.subscriptionSvc.ExpireGracePeriod(ctx, sub.OrgID)
	if err != nil {
		return err
	}

	s.recordEvent(ctx, analyticsdomain.LifecycleEvent{
		OrgID:     sub.OrgID,
		EventType: analyticsdomain.EventDowngrade,
		FromTier:  previousTier,
		ToTier:    plandomain.TierFree,
	})

	org, err := s.orgRepo.FindByID(ctx, s.db, sub.OrgID)
	if err != nil || org == nil || org.SupportEmail == "" {
		return err
	}
	// Counters survive the downgrade, so an organization can sit above the
	// free limits. The notice wording depends on that comparison.
	overLimit := downgraded.CurrentSubjects > downgraded.SubjectLimit ||
		downgraded.CurrentStudents > downgraded.StudentLimit
	s.notify(org.SupportEmail, notification.TemplateDowngrade, map[string]any{
		"org_name":         org.Name,
		"over_limit":       overLimit,
		"subjects_current": downgraded.CurrentSubjects,
		"subjects_limit":   downgraded.SubjectLimit,
		"students_current": downgraded.CurrentStudents,
		"students_limit":   downgraded.StudentLimit,
	})
	return nil
}

// safely isolates a single subscription so a panic in one item never takes
// down the batch.
func (s *Scheduler) safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("item panic: %v", r)
		}
	}()
	return fn()
}

func (s *Scheduler) recordEvent(ctx context.Context, event analyticsdomain.LifecycleEvent) {
	if err := s.analyticsSvc.Record(ctx, event); err != nil {
		s.log.Warn("recording lifecycle event",
			zap.String("org_id", idString(event.OrgID)),
			zap.String("event_type", string(event.EventType)),
			zap.Error(err),
		)
	}
}

func (s *Scheduler) notify(to string, tmpl notification.Template, data map[string]any) {
	if s.notifications == nil {
		return
	}
	s.notifications.Enqueue(to, tmpl, data)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateLayout)
}

func daysUntil(now time.Time, t *time.Time) int {
	if t == nil {
		return 0
	}
	days := int(math.Ceil(t.Sub(now).Hours() / 24))
	if days < 0 {
		return 0
	}
	return days
}
