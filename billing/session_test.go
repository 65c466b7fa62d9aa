package billing

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/robsonalexmmf/contact-pilot-system-sub002/app/models"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// brokenStorage fails every operation.
type brokenStorage struct{}

var errStorageDown = errors.New("storage unavailable")

func (brokenStorage) Load(context.Context, string) ([]byte, error) { return nil, errStorageDown }
func (brokenStorage) Save(context.Context, string, []byte) error   { return errStorageDown }
func (brokenStorage) Delete(context.Context, string) error         { return errStorageDown }

func newTestSession(t *testing.T, storage Storage) (*Session, *clock) {
	t.Helper()
	c := &clock{t: refNow}
	return NewSession(context.Background(), storage, WithClock(c.Now)), c
}

func TestNewSessionDefaultsToFree(t *testing.T) {
	storage := NewMemoryStorage()
	s, _ := newTestSession(t, storage)

	info := s.UsageInfo()
	assert.Equal(t, models.PlanFree, info.Plan)
	assert.True(t, info.IsActive)
	require.NotNil(t, info.DaysRemaining)
	assert.Equal(t, 7, *info.DaysRemaining)
	assert.Nil(t, info.ExpiresAt)

	_, err := storage.Load(context.Background(), KeyActivePlan)
	assert.NoError(t, err, "default plan should be persisted so the trial start is stable")
}

func TestActivatePlanPro(t *testing.T) {
	ctx := context.Background()
	s, c := newTestSession(t, NewMemoryStorage())
	require.NoError(t, s.RecordUsage(ctx, models.LimitLeads))

	c.Advance(3 * time.Hour)
	require.NoError(t, s.ActivatePlan(ctx, models.PlanPro))

	rec := s.Plan()
	assert.Equal(t, models.PlanPro, rec.PlanType)
	assert.True(t, rec.IsActive)
	assert.Equal(t, c.Now(), rec.StartDate)
	assert.Equal(t, 0, rec.DaysUsed)
	require.NotNil(t, rec.ExpiresAt)
	assert.Equal(t, c.Now().Add(30*24*time.Hour), *rec.ExpiresAt)

	info := s.UsageInfo()
	assert.Equal(t, 0, info.Usage.Leads, "activation resets usage")
	require.NotNil(t, info.DaysRemaining)
	assert.Equal(t, 30, *info.DaysRemaining)
}

func TestActivatePlanPremiumHasNoExpiry(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t, NewMemoryStorage())
	require.NoError(t, s.ActivatePlan(ctx, models.PlanPro))
	require.NoError(t, s.ActivatePlan(ctx, models.PlanPremium))

	assert.Nil(t, s.Plan().ExpiresAt)
	assert.Nil(t, s.UsageInfo().DaysRemaining)
}

func TestActivatePlanAdminKeepsLabel(t *testing.T) {
	s, _ := newTestSession(t, NewMemoryStorage())
	require.NoError(t, s.ActivatePlan(context.Background(), models.PlanAdmin))

	info := s.UsageInfo()
	assert.Equal(t, models.PlanAdmin, info.Plan)
	assert.Equal(t, models.LimitsFor(models.PlanPremium), info.Limits)
	assert.Nil(t, info.DaysRemaining)
	assert.True(t, s.Check(models.LimitLeads).Allowed)
}

func TestActivatePlanRejectsUnknown(t *testing.T) {
	s, _ := newTestSession(t, NewMemoryStorage())
	err := s.ActivatePlan(context.Background(), models.PlanType("enterprise"))
	assert.ErrorIs(t, err, ErrInvalidPlan)
	assert.Equal(t, models.PlanFree, s.Plan().PlanType)
}

func TestRecordUsage(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	s, _ := newTestSession(t, storage)

	require.NoError(t, s.RecordUsage(ctx, models.LimitLeads))
	require.NoError(t, s.RecordUsage(ctx, models.LimitLeads))
	require.NoError(t, s.RecordUsage(ctx, models.LimitPipelines))
	assert.ErrorIs(t, s.RecordUsage(ctx, models.LimitDays), ErrInvalidKind)

	info := s.UsageInfo()
	assert.Equal(t, 2, info.Usage.Leads)
	assert.Equal(t, 1, info.Usage.Pipelines)

	reloaded := NewSession(ctx, storage, WithClock(func() time.Time { return refNow }))
	assert.Equal(t, info.Usage, reloaded.UsageInfo().Usage)
}

func TestUseBlocksAtLimit(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t, NewMemoryStorage())

	for i := 0; i < 1; i++ {
		d, err := s.Use(ctx, models.LimitPipelines)
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}
	d, err := s.Use(ctx, models.LimitPipelines)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	require.NotNil(t, d.Violation)
	assert.Equal(t, 1, d.Violation.Current)
	assert.Equal(t, 1, d.Violation.Limit)
	assert.Equal(t, 1, s.UsageInfo().Usage.Pipelines, "blocked actions are not recorded")
}

func TestDaysRemainingFloorsAtZero(t *testing.T) {
	s, c := newTestSession(t, NewMemoryStorage())
	c.Advance(20 * day)

	info := s.UsageInfo()
	require.NotNil(t, info.DaysRemaining)
	assert.Equal(t, 0, *info.DaysRemaining)
	assert.Equal(t, 20, info.DaysUsed)
	assert.False(t, s.Check(models.LimitDays).Allowed)
}

func TestExpiredProIsInactive(t *testing.T) {
	s, c := newTestSession(t, NewMemoryStorage())
	require.NoError(t, s.ActivatePlan(context.Background(), models.PlanPro))
	c.Advance(31 * day)
	assert.False(t, s.UsageInfo().IsActive)
}

func TestTrialOverBlocksEveryKind(t *testing.T) {
	ctx := context.Background()
	s, c := newTestSession(t, NewMemoryStorage())
	c.Advance(8 * day)

	d, err := s.Use(ctx, models.LimitLeads)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	require.NotNil(t, d.Violation)
	assert.Equal(t, models.LimitDays, d.Violation.Kind)
	assert.Equal(t, 8, d.Violation.Current)
	assert.Equal(t, 7, d.Violation.Limit)
	assert.Zero(t, s.UsageInfo().Usage.Leads)
}

func TestExpiredProBlocksUsage(t *testing.T) {
	s, c := newTestSession(t, NewMemoryStorage())
	require.NoError(t, s.ActivatePlan(context.Background(), models.PlanPro))
	assert.True(t, s.Check(models.LimitLeads).Allowed)

	c.Advance(31 * day)
	d := s.Check(models.LimitLeads)
	assert.False(t, d.Allowed)
	require.NotNil(t, d.Violation)
	assert.Equal(t, models.LimitDays, d.Violation.Kind)
}

func TestPastExpirationBlocksUnlimitedPlan(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	expires := refNow.Add(-day)
	raw, err := json.Marshal(models.PlanRecord{
		PlanType:  models.PlanPremium,
		StartDate: refNow.Add(-10 * day),
		IsActive:  true,
		ExpiresAt: &expires,
	})
	require.NoError(t, err)
	require.NoError(t, storage.Save(ctx, KeyActivePlan, raw))

	s, _ := newTestSession(t, storage)
	d := s.Check(models.LimitLeads)
	assert.False(t, d.Allowed)
	require.NotNil(t, d.Violation)
	assert.Equal(t, models.LimitDays, d.Violation.Kind)
	assert.Equal(t, 10, d.Violation.Current)
	assert.Equal(t, 9, d.Violation.Limit)
}

func TestUseRejectsDays(t *testing.T) {
	s, _ := newTestSession(t, NewMemoryStorage())
	_, err := s.Use(context.Background(), models.LimitDays)
	assert.ErrorIs(t, err, ErrInvalidKind)
	assert.Contains(t, err.Error(), "derived")
}

func TestRefreshDaysUsedOncePerDay(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	s, c := newTestSession(t, storage)

	c.Advance(2*day + time.Hour)
	assert.Equal(t, 2, s.RefreshDaysUsed(ctx))

	raw, err := storage.Load(ctx, KeyLastUsageUpdate)
	require.NoError(t, err)
	assert.Equal(t, c.Now().Format(dateLayout), string(raw))

	// Same calendar day: the stored value is kept.
	c.Advance(time.Hour)
	assert.Equal(t, 2, s.RefreshDaysUsed(ctx))
	assert.Equal(t, 2, s.Plan().DaysUsed)
}

func TestPendingPaymentConfirm(t *testing.T) {
	ctx := context.Background()
	s, c := newTestSession(t, NewMemoryStorage())

	_, err := s.ConfirmPendingPayment(ctx)
	assert.ErrorIs(t, err, ErrNoPendingPayment)

	s.SetPendingPayment(ctx, "ana@example.com", models.PlanPro)
	email, plan, ok := s.PendingPayment(ctx)
	require.True(t, ok)
	assert.Equal(t, "ana@example.com", email)
	assert.Equal(t, models.PlanPro, plan)

	c.Advance(time.Minute)
	got, err := s.ConfirmPendingPayment(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.PlanPro, got)
	assert.Equal(t, models.PlanPro, s.Plan().PlanType)

	_, _, ok = s.PendingPayment(ctx)
	assert.False(t, ok)
}

func TestSelectedPlan(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestSession(t, NewMemoryStorage())

	_, ok := s.SelectedPlan(ctx)
	assert.False(t, ok)

	s.SelectPlan(ctx, models.PlanPremium)
	p, ok := s.SelectedPlan(ctx)
	require.True(t, ok)
	assert.Equal(t, models.PlanPremium, p)

	s.ClearSelectedPlan(ctx)
	_, ok = s.SelectedPlan(ctx)
	assert.False(t, ok)
}

func TestIdentityAndReset(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	s, _ := newTestSession(t, storage)

	_, ok := s.Identity(ctx)
	assert.False(t, ok)

	s.SetIdentity(ctx, Identity{ID: "u1", Email: "u1@example.com", AccessToken: "tok"})
	id, ok := s.Identity(ctx)
	require.True(t, ok)
	assert.Equal(t, "u1", id.ID)
	assert.Equal(t, "u1@example.com", id.Email)
	assert.Equal(t, "tok", id.AccessToken)

	require.NoError(t, s.ActivatePlan(ctx, models.PlanPremium))
	s.Reset(ctx)

	_, ok = s.Identity(ctx)
	assert.False(t, ok)
	assert.Equal(t, models.PlanFree, s.Plan().PlanType)
	for _, k := range allKeys {
		_, err := storage.Load(ctx, k)
		assert.ErrorIs(t, err, ErrNotFound, k)
	}
}

func TestSessionSurvivesBrokenStorage(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.WarnLevel)
	c := &clock{t: refNow}

	s := NewSession(ctx, brokenStorage{}, WithClock(c.Now), WithLogger(zap.New(core)))
	assert.Equal(t, models.PlanFree, s.Plan().PlanType)

	require.NoError(t, s.ActivatePlan(ctx, models.PlanPro))
	require.NoError(t, s.RecordUsage(ctx, models.LimitLeads))

	info := s.UsageInfo()
	assert.Equal(t, models.PlanPro, info.Plan)
	assert.Equal(t, 1, info.Usage.Leads)
	assert.NotZero(t, logs.FilterMessage("session persistence failed").Len())
}

func TestSessionIgnoresCorruptPlan(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	require.NoError(t, storage.Save(ctx, KeyActivePlan, []byte(`{"planType":"gold"}`)))
	require.NoError(t, storage.Save(ctx, KeyUsageCounters, []byte(`not json`)))

	s, _ := newTestSession(t, storage)
	assert.Equal(t, models.PlanFree, s.Plan().PlanType)
	assert.Equal(t, models.UsageCounters{}, s.UsageInfo().Usage)
}
