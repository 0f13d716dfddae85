package catalog

import (
	"testing"

	plandomain "github.com/classbill/classbill/internal/plan/domain"
	"github.com/stretchr/testify/assert"
)

func TestResolveDefaults(t *testing.T) {
	h := NewStaticHolder(DefaultPlans())

	free, err := h.Resolve(plandomain.TierFree)
	assert.NoError(t, err)
	assert.Equal(t, 3, free.SubjectLimit.Resolve())
	assert.Equal(t, 5, free.StudentLimit.Resolve())
	assert.False(t, free.Tier.IsPaid())

	vip, err := h.Resolve(plandomain.TierVIP)
	assert.NoError(t, err)
	assert.Equal(t, 12, vip.SubjectLimit.Resolve())
	assert.Equal(t, 100, vip.StudentLimit.Resolve())
	assert.True(t, vip.Tier.IsPaid())

	_, err = h.Resolve(plandomain.Tier("enterprise"))
	assert.ErrorIs(t, err, plandomain.ErrInvalidPlanTier)
}

func TestPriceLookup(t *testing.T) {
	h := NewStaticHolder(DefaultPlans())

	premium, err := h.Resolve(plandomain.TierPremium)
	assert.NoError(t, err)

	amount, ok := premium.Price("ngn")
	assert.True(t, ok)
	assert.Equal(t, int64(500000), amount)

	_, ok = premium.Price("EUR")
	assert.False(t, ok)
}

func TestParseTier(t *testing.T) {
	tier, err := plandomain.ParseTier("  Premium ")
	assert.NoError(t, err)
	assert.Equal(t, plandomain.TierPremium, tier)

	_, err = plandomain.ParseTier("gold")
	assert.ErrorIs(t, err, plandomain.ErrInvalidPlanTier)
}

func TestValidatePlansRejectsDuplicates(t *testing.T) {
	err := validatePlans([]plandomain.Plan{
		{Tier: plandomain.TierFree},
		{Tier: plandomain.TierFree},
	})
	assert.ErrorIs(t, err, plandomain.ErrInvalidPlanTier)
}

func TestAllPreservesOrder(t *testing.T) {
	h := NewStaticHolder(DefaultPlans())
	all := h.All()
	assert.Len(t, all, 3)
	assert.Equal(t, plandomain.TierFree, all[0].Tier)
	assert.Equal(t, plandomain.TierVIP, all[2].Tier)
}
