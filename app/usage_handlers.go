package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/robsonalexmmf/contact-pilot-system-sub002/app/models"
	"github.com/robsonalexmmf/contact-pilot-system-sub002/auth"
	"github.com/robsonalexmmf/contact-pilot-system-sub002/billing"
	"github.com/robsonalexmmf/contact-pilot-system-sub002/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Health is a public health check endpoint.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// SessionStore hands out per-identity usage sessions. With a Redis client the
// state survives restarts; without one it lives in process memory. With a
// ProfileStore, a paid plan recorded on the profile is carried into the session.
type SessionStore struct {
	redis    *redis.Client
	ttl      time.Duration
	profiles ProfileStore

	mu     sync.Mutex
	memory map[string]*billing.MemoryStorage
	locks  map[string]*sync.Mutex
}

func NewSessionStore(client *redis.Client, ttl time.Duration, profiles ProfileStore) *SessionStore {
	return &SessionStore{
		redis:    client,
		ttl:      ttl,
		profiles: profiles,
		memory:   make(map[string]*billing.MemoryStorage),
		locks:    make(map[string]*sync.Mutex),
	}
}

func (s *SessionStore) storageFor(identity string) billing.Storage {
	if s.redis != nil {
		return billing.NewRedisStorage(s.redis, identity, s.ttl)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.memory[identity]
	if !ok {
		st = billing.NewMemoryStorage()
		s.memory[identity] = st
	}
	return st
}

// lock serializes session access per identity within this process.
func (s *SessionStore) lock(identity string) func() {
	s.mu.Lock()
	l, ok := s.locks[identity]
	if !ok {
		l = &sync.Mutex{}
		s.locks[identity] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Open loads the session of claims.Subject and moves it onto the plan the
// identity holds outside the session, if any.
func (s *SessionStore) Open(ctx context.Context, claims *auth.Claims, log *zap.Logger) *billing.Session {
	session := billing.NewSession(ctx, s.storageFor(claims.Subject), billing.WithLogger(log))
	if plan := s.entitlement(ctx, claims, log); plan != "" && session.Plan().PlanType != plan {
		if err := session.ActivatePlan(ctx, plan); err != nil {
			log.Error("plan sync failed",
				zap.String("user_id", claims.Subject),
				zap.String("plan", string(plan)),
				zap.Error(err),
			)
		}
	}
	session.RefreshDaysUsed(ctx)
	return session
}

// entitlement is the admin label for admin identities, otherwise the paid
// tier stored on the profile. Empty means the session plan stands.
func (s *SessionStore) entitlement(ctx context.Context, claims *auth.Claims, log *zap.Logger) models.PlanType {
	if claims.IsAdmin() {
		return models.PlanAdmin
	}
	if s.profiles == nil {
		return ""
	}
	profile, err := s.profiles.FindByID(ctx, claims.Subject)
	if err != nil {
		if !errors.Is(err, ErrProfileNotFound) {
			log.Warn("profile lookup failed", zap.String("user_id", claims.Subject), zap.Error(err))
		}
		return ""
	}
	if profile.PlanType.IsPaid() {
		return profile.PlanType
	}
	return ""
}

// UsageHandlers serves the /api/usage endpoints.
type UsageHandlers struct {
	sessions *SessionStore
	metrics  *Metrics
	log      *zap.Logger
}

func NewUsageHandlers(sessions *SessionStore, metrics *Metrics, log *zap.Logger) *UsageHandlers {
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &UsageHandlers{sessions: sessions, metrics: metrics, log: log}
}

type usageDecisionResponse struct {
	Allowed   bool                   `json:"allowed"`
	Violation *models.LimitViolation `json:"violation,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Usage     *models.UsageInfo      `json:"usage,omitempty"`
}

// GetUsage returns the caller's plan, limits and counters.
func (h *UsageHandlers) GetUsage(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}
	unlock := h.sessions.lock(claims.Subject)
	defer unlock()

	session := h.sessions.Open(c.Request.Context(), claims, logger.FromContext(c, h.log))
	c.JSON(http.StatusOK, session.UsageInfo())
}

// CheckUsage evaluates one more action of :kind without recording it.
func (h *UsageHandlers) CheckUsage(c *gin.Context) {
	claims, kind, ok := h.parse(c)
	if !ok {
		return
	}
	unlock := h.sessions.lock(claims.Subject)
	defer unlock()

	session := h.sessions.Open(c.Request.Context(), claims, logger.FromContext(c, h.log))
	decision := session.Check(kind)
	h.metrics.UsageDecisions.WithLabelValues(string(kind), decisionLabel(decision.Allowed)).Inc()
	respondDecision(c, decision, nil)
}

// RecordUsage gates :kind and records it when allowed.
func (h *UsageHandlers) RecordUsage(c *gin.Context) {
	claims, kind, ok := h.parse(c)
	if !ok {
		return
	}
	unlock := h.sessions.lock(claims.Subject)
	defer unlock()

	log := logger.FromContext(c, h.log)
	session := h.sessions.Open(c.Request.Context(), claims, log)
	decision, err := session.Use(c.Request.Context(), kind)
	if err != nil {
		if errors.Is(err, billing.ErrInvalidKind) {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
			return
		}
		log.Error("record usage failed", zap.String("kind", string(kind)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to record usage"})
		return
	}
	h.metrics.UsageDecisions.WithLabelValues(string(kind), decisionLabel(decision.Allowed)).Inc()
	if decision.Allowed {
		h.metrics.UsageRecorded.WithLabelValues(string(kind)).Inc()
	}
	info := session.UsageInfo()
	respondDecision(c, decision, &info)
}

func (h *UsageHandlers) parse(c *gin.Context) (*auth.Claims, models.LimitKind, bool) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return nil, "", false
	}
	kind, err := models.ParseLimitKind(c.Param("kind"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return nil, "", false
	}
	return claims, kind, true
}

func respondDecision(c *gin.Context, d billing.Decision, info *models.UsageInfo) {
	if d.Allowed {
		c.JSON(http.StatusOK, usageDecisionResponse{Allowed: true, Usage: info})
		return
	}
	resp := usageDecisionResponse{Allowed: false, Violation: d.Violation, Usage: info}
	if d.Violation != nil {
		resp.Message = d.Violation.Error()
	}
	c.JSON(http.StatusForbidden, resp)
}
