package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/robsonalexmmf/contact-pilot-system-sub002/app/models"
)

const dateLayout = "2006-01-02"

var (
	ErrInvalidPlan      = errors.New("invalid plan type")
	ErrInvalidKind      = errors.New("usage kind cannot be recorded")
	ErrNoPendingPayment = errors.New("no pending payment")

	errDaysDerived = fmt.Errorf("%w: days are derived from the plan start, check them instead", ErrInvalidKind)
)

// Identity is the authenticated user a session belongs to.
type Identity struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	AccessToken string `json:"-"`
}

// Session owns the active plan and usage counters of one identity for the
// lifetime of a local session. Storage failures are logged and never returned;
// the in-memory state stays authoritative for the rest of the session.
// A Session is not safe for concurrent use.
type Session struct {
	storage    Storage
	log        *zap.Logger
	now        func() time.Time
	plan       models.PlanRecord
	usage      models.UsageCounters
	lastUpdate string
}

type SessionOption func(*Session)

func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

func WithLogger(l *zap.Logger) SessionOption {
	return func(s *Session) { s.log = l }
}

// NewSession loads persisted state from storage, falling back to a fresh
// free plan when nothing usable is stored.
func NewSession(ctx context.Context, storage Storage, opts ...SessionOption) *Session {
	s := &Session{
		storage: storage,
		log:     zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.load(ctx)
	return s
}

func (s *Session) load(ctx context.Context) {
	now := s.now()

	var plan models.PlanRecord
	switch found, err := s.loadJSON(ctx, KeyActivePlan, &plan); {
	case err != nil:
		s.warn("load", KeyActivePlan, err)
		s.plan = models.DefaultPlanRecord(now)
	case !found:
		s.plan = models.DefaultPlanRecord(now)
		s.saveJSON(ctx, KeyActivePlan, s.plan)
	default:
		if _, perr := models.ParsePlanType(string(plan.PlanType)); perr != nil {
			s.warn("load", KeyActivePlan, perr)
			plan = models.DefaultPlanRecord(now)
		}
		s.plan = plan
	}

	var usage models.UsageCounters
	if _, err := s.loadJSON(ctx, KeyUsageCounters, &usage); err != nil {
		s.warn("load", KeyUsageCounters, err)
		usage = models.UsageCounters{}
	}
	s.usage = usage

	if v, ok := s.loadString(ctx, KeyLastUsageUpdate); ok {
		s.lastUpdate = v
	}
}

// Plan returns the active plan record.
func (s *Session) Plan() models.PlanRecord {
	return s.plan
}

// UsageInfo reports the plan, its limits, the counters and the days left.
func (s *Session) UsageInfo() models.UsageInfo {
	now := s.now()
	isActive := s.plan.IsActive
	if s.plan.ExpiresAt != nil && !now.Before(*s.plan.ExpiresAt) {
		isActive = false
	}
	return models.UsageInfo{
		Plan:          s.plan.PlanType,
		IsActive:      isActive,
		Limits:        models.LimitsFor(s.plan.PlanType),
		Usage:         s.usage,
		DaysUsed:      ElapsedDays(s.plan.StartDate, now),
		DaysRemaining: DaysRemaining(s.plan, now),
		StartDate:     s.plan.StartDate,
		ExpiresAt:     s.plan.ExpiresAt,
	}
}

// ActivatePlan starts planType now and resets usage. Pro plans expire
// after ProPlanDuration; every other plan has no expiration.
func (s *Session) ActivatePlan(ctx context.Context, planType models.PlanType) error {
	if _, err := models.ParsePlanType(string(planType)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	now := s.now()
	rec := models.PlanRecord{
		PlanType:  planType,
		StartDate: now,
		IsActive:  true,
		DaysUsed:  0,
	}
	if planType == models.PlanPro {
		expires := now.Add(models.ProPlanDuration)
		rec.ExpiresAt = &expires
	}
	s.plan = rec
	s.usage = models.UsageCounters{}
	s.lastUpdate = now.Format(dateLayout)

	s.saveJSON(ctx, KeyActivePlan, s.plan)
	s.saveJSON(ctx, KeyUsageCounters, s.usage)
	s.saveString(ctx, KeyLastUsageUpdate, s.lastUpdate)

	s.log.Info("plan activated",
		zap.String("plan", string(planType)),
		zap.Time("start", now),
	)
	return nil
}

// RecordUsage counts one more action of kind. Counters never decrease.
func (s *Session) RecordUsage(ctx context.Context, kind models.LimitKind) error {
	if kind == models.LimitDays {
		return errDaysDerived
	}
	if !s.usage.Increment(kind) {
		return fmt.Errorf("%w: %s", ErrInvalidKind, kind)
	}
	s.saveJSON(ctx, KeyUsageCounters, s.usage)
	return nil
}

// Check evaluates kind against the active plan without recording anything.
// A plan past its day limit or expiration blocks every kind with a days
// violation before the counters are looked at.
func (s *Session) Check(kind models.LimitKind) Decision {
	now := s.now()
	if d := Evaluate(models.LimitDays, 0, s.plan, now); !d.Allowed {
		return d
	}
	if exp := s.plan.ExpiresAt; exp != nil && !now.Before(*exp) {
		return blocked(models.LimitDays, ElapsedDays(s.plan.StartDate, now), ElapsedDays(s.plan.StartDate, *exp))
	}
	return Evaluate(kind, s.usage.Count(kind), s.plan, now)
}

// Use checks kind and records it only when the action is allowed. Days are
// rejected up front since they follow from the plan start.
func (s *Session) Use(ctx context.Context, kind models.LimitKind) (Decision, error) {
	if kind == models.LimitDays {
		return Decision{}, errDaysDerived
	}
	d := s.Check(kind)
	if !d.Allowed {
		return d, nil
	}
	if err := s.RecordUsage(ctx, kind); err != nil {
		return Decision{}, err
	}
	return d, nil
}

// RefreshDaysUsed updates the stored day counter at most once per calendar day.
func (s *Session) RefreshDaysUsed(ctx context.Context) int {
	now := s.now()
	today := now.Format(dateLayout)
	if s.lastUpdate == today {
		return s.plan.DaysUsed
	}
	s.plan.DaysUsed = ElapsedDays(s.plan.StartDate, now)
	s.lastUpdate = today
	s.saveJSON(ctx, KeyActivePlan, s.plan)
	s.saveString(ctx, KeyLastUsageUpdate, today)
	return s.plan.DaysUsed
}

// SelectPlan remembers a plan chosen before registration.
func (s *Session) SelectPlan(ctx context.Context, planType models.PlanType) {
	s.saveString(ctx, KeySelectedPlan, string(planType))
}

func (s *Session) SelectedPlan(ctx context.Context) (models.PlanType, bool) {
	v, ok := s.loadString(ctx, KeySelectedPlan)
	if !ok {
		return "", false
	}
	p, err := models.ParsePlanType(v)
	if err != nil {
		return "", false
	}
	return p, true
}

func (s *Session) ClearSelectedPlan(ctx context.Context) {
	s.delete(ctx, KeySelectedPlan)
}

// SetPendingPayment records who is paying for what until the gateway returns.
func (s *Session) SetPendingPayment(ctx context.Context, email string, planType models.PlanType) {
	s.saveString(ctx, KeyPaymentPendingEmail, email)
	s.saveString(ctx, KeyPaymentPendingPlan, string(planType))
}

func (s *Session) PendingPayment(ctx context.Context) (string, models.PlanType, bool) {
	email, ok := s.loadString(ctx, KeyPaymentPendingEmail)
	if !ok {
		return "", "", false
	}
	raw, ok := s.loadString(ctx, KeyPaymentPendingPlan)
	if !ok {
		return "", "", false
	}
	p, err := models.ParsePlanType(raw)
	if err != nil {
		return "", "", false
	}
	return email, p, true
}

// ConfirmPendingPayment activates the pending plan after the gateway
// redirected back with an approved payment, then clears the pending keys.
func (s *Session) ConfirmPendingPayment(ctx context.Context) (models.PlanType, error) {
	_, planType, ok := s.PendingPayment(ctx)
	if !ok {
		return "", ErrNoPendingPayment
	}
	if err := s.ActivatePlan(ctx, planType); err != nil {
		return "", err
	}
	s.delete(ctx, KeyPaymentPendingEmail)
	s.delete(ctx, KeyPaymentPendingPlan)
	return planType, nil
}

// SetIdentity marks the session as logged in.
func (s *Session) SetIdentity(ctx context.Context, id Identity) {
	s.saveString(ctx, KeyUserLoggedIn, "true")
	s.saveString(ctx, KeyUserID, id.ID)
	s.saveString(ctx, KeyUserEmail, id.Email)
	if id.AccessToken != "" {
		s.saveString(ctx, KeyAccessToken, id.AccessToken)
	}
}

// Identity returns the logged-in identity, if any.
func (s *Session) Identity(ctx context.Context) (*Identity, bool) {
	if v, ok := s.loadString(ctx, KeyUserLoggedIn); !ok || v != "true" {
		return nil, false
	}
	id := &Identity{}
	id.ID, _ = s.loadString(ctx, KeyUserID)
	id.Email, _ = s.loadString(ctx, KeyUserEmail)
	id.AccessToken, _ = s.loadString(ctx, KeyAccessToken)
	if id.ID == "" {
		return nil, false
	}
	return id, true
}

// Reset forgets everything, as on logout, and starts over on the free plan.
func (s *Session) Reset(ctx context.Context) {
	for _, k := range allKeys {
		s.delete(ctx, k)
	}
	s.plan = models.DefaultPlanRecord(s.now())
	s.usage = models.UsageCounters{}
	s.lastUpdate = ""
}

func (s *Session) warn(op, key string, err error) {
	s.log.Warn("session persistence failed",
		zap.String("op", op),
		zap.String("key", key),
		zap.Error(err),
	)
}

func (s *Session) loadJSON(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := s.storage.Load(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Session) saveJSON(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		s.warn("encode", key, err)
		return
	}
	if err := s.storage.Save(ctx, key, raw); err != nil {
		s.warn("save", key, err)
	}
}

func (s *Session) loadString(ctx context.Context, key string) (string, bool) {
	raw, err := s.storage.Load(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.warn("load", key, err)
		}
		return "", false
	}
	return string(raw), true
}

func (s *Session) saveString(ctx context.Context, key, v string) {
	if err := s.storage.Save(ctx, key, []byte(v)); err != nil {
		s.warn("save", key, err)
	}
}

func (s *Session) delete(ctx context.Context, key string) {
	if err := s.storage.Delete(ctx, key); err != nil {
		s.warn("delete", key, err)
	}
}
