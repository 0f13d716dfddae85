package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/classbill/classbill/internal/authorization"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"gorm.io/gorm"
)

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "deadline",
			err:  context.DeadlineExceeded,
			want: SchedulerJobReasonDeadlineExceeded,
		},
		{
			name: "forbidden",
			err:  authorization.ErrForbidden,
			want: SchedulerJobReasonForbidden,
		},
		{
			name: "duplicate_key",
			err:  gorm.ErrDuplicatedKey,
			want: SchedulerJobReasonDB,
		},
		{
			name: "not_found_is_business_rule",
			err:  gorm.ErrRecordNotFound,
			want: SchedulerJobReasonBusinessRule,
		},
		{
			name: "plain_error",
			err:  errors.New("boom"),
			want: SchedulerJobReasonBusinessRule,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySchedulerJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestAddBatchProcessed(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSchedulerMetrics(registry, Config{
		ServiceName: "classbill",
		Environment: "test",
	})

	metrics.AddBatchProcessed("process_renewals", "subscriptions", 3)

	got := testutil.ToFloat64(metrics.batchProcessed.WithLabelValues("process_renewals", "subscriptions"))
	if got != 3 {
		t.Fatalf("expected processed count 3, got %v", got)
	}
}

func TestIncRenewalCharge(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSchedulerMetrics(registry, Config{
		ServiceName: "classbill",
		Environment: "test",
	})

	metrics.IncRenewalCharge("success")
	metrics.IncRenewalCharge("failed")
	metrics.IncRenewalCharge("failed")

	if got := testutil.ToFloat64(metrics.renewalCharges.WithLabelValues("failed")); got != 2 {
		t.Fatalf("expected 2 failed charges, got %v", got)
	}
}

func TestObserveJobDuration(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSchedulerMetrics(registry, Config{
		ServiceName: "classbill",
		Environment: "test",
	})

	metrics.ObserveJobDuration("process_renewals", 250*time.Millisecond)
	metrics.ObserveJobDuration("process_renewals", 750*time.Millisecond)

	observer, err := metrics.jobDuration.GetMetricWithLabelValues("process_renewals")
	if err != nil {
		t.Fatal(err)
	}
	var m dto.Metric
	if err := observer.(prometheus.Histogram).Write(&m); err != nil {
		t.Fatal(err)
	}
	if got := m.GetHistogram().GetSampleCount(); got != 2 {
		t.Fatalf("expected 2 samples, got %d", got)
	}
	if got := m.GetHistogram().GetSampleSum(); got != 1.0 {
		t.Fatalf("expected 1.0s total, got %v", got)
	}
}
