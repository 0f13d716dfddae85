// Package catalog loads the plan catalog from configuration and serves it
// from an atomic snapshot. Plans are immutable at runtime; a config change on
// disk swaps the whole snapshot.
package catalog

import (
	"strings"
	"sync/atomic"

	plandomain "github.com/classbill/classbill/internal/plan/domain"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func DefaultPlans() []plandomain.Plan {
	return []plandomain.Plan{
		{
			Tier:            plandomain.TierFree,
			Name:            "Free",
			PriceByCurrency: map[string]int64{"NGN": 0, "USD": 0},
			SubjectLimit:    plandomain.Fixed(3),
			StudentLimit:    plandomain.Fixed(5),
			Features: []string{
				"Up to 3 subjects",
				"Up to 5 students",
				"Basic result sheets",
			},
			BillingCycle: plandomain.BillingCycleNone,
		},
		{
			Tier:            plandomain.TierPremium,
			Name:            "Premium",
			PriceByCurrency: map[string]int64{"NGN": 500000, "USD": 1000},
			SubjectLimit:    plandomain.Fixed(6),
			StudentLimit:    plandomain.Fixed(20),
			Features: []string{
				"Up to 6 subjects",
				"Up to 20 students",
				"Result sheets and analytics",
				"Priority support",
			},
			BillingCycle: plandomain.BillingCycleMonthly,
		},
		{
			Tier:            plandomain.TierVIP,
			Name:            "VIP",
			PriceByCurrency: map[string]int64{"NGN": 1500000, "USD": 2500},
			SubjectLimit:    plandomain.Range(6, 12),
			StudentLimit:    plandomain.Range(20, 100),
			Features: []string{
				"Up to 12 subjects",
				"Up to 100 students",
				"Result sheets and analytics",
				"Dedicated support",
			},
			BillingCycle: plandomain.BillingCycleMonthly,
		},
	}
}

// Holder serves the current plan snapshot.
type Holder struct {
	current atomic.Value // holds map[plandomain.Tier]plandomain.Plan
	ordered atomic.Value // holds []plandomain.Plan
}

// NewHolder reads plans.yml if present, otherwise serves the built-in
// defaults, and hot-reloads on config change.
func NewHolder(log *zap.Logger) (*Holder, error) {
	log = log.Named("plan.catalog")
	v := viper.New()

	v.SetConfigName("plans")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/classbill/config") // Volume-mounted config
	v.AddConfigPath("/etc/classbill")            // System config
	v.AddConfigPath(".")                         // Current directory (dev mode)

	v.SetEnvPrefix("CLASSBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &Holder{}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		holder.store(DefaultPlans())
		return holder, nil
	}

	plans, err := unmarshalPlans(v)
	if err != nil {
		return nil, err
	}
	holder.store(plans)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := unmarshalPlans(v)
		if err != nil {
			log.Warn("invalid plan config ignored", zap.Error(err))
			return
		}
		holder.store(updated)
		log.Info("plan catalog reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// NewStaticHolder serves a fixed set of plans. Used in tests.
func NewStaticHolder(plans []plandomain.Plan) *Holder {
	holder := &Holder{}
	holder.store(plans)
	return holder
}

func (h *Holder) store(plans []plandomain.Plan) {
	byTier := make(map[plandomain.Tier]plandomain.Plan, len(plans))
	for _, p := range plans {
		byTier[p.Tier] = p
	}
	h.current.Store(byTier)
	h.ordered.Store(plans)
}

// Resolve implements domain.Catalog.
func (h *Holder) Resolve(tier plandomain.Tier) (plandomain.Plan, error) {
	byTier := h.current.Load().(map[plandomain.Tier]plandomain.Plan)
	p, ok := byTier[tier]
	if !ok {
		return plandomain.Plan{}, plandomain.ErrInvalidPlanTier
	}
	return p, nil
}

// All implements domain.Catalog.
func (h *Holder) All() []plandomain.Plan {
	return h.ordered.Load().([]plandomain.Plan)
}

func unmarshalPlans(v *viper.Viper) ([]plandomain.Plan, error) {
	var plans []plandomain.Plan
	if err := v.UnmarshalKey("plans", &plans); err != nil {
		return nil, err
	}
	if len(plans) == 0 {
		return DefaultPlans(), nil
	}
	if err := validatePlans(plans); err != nil {
		return nil, err
	}
	return plans, nil
}

func validatePlans(plans []plandomain.Plan) error {
	seen := make(map[plandomain.Tier]bool, len(plans))
	for _, p := range plans {
		if _, err := plandomain.ParseTier(string(p.Tier)); err != nil {
			return err
		}
		if seen[p.Tier] {
			return plandomain.ErrInvalidPlanTier
		}
		seen[p.Tier] = true
	}
	return nil
}
