package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/robsonalexmmf/contact-pilot-system-sub002/app/config"
	"github.com/robsonalexmmf/contact-pilot-system-sub002/app/models"
	"github.com/robsonalexmmf/contact-pilot-system-sub002/auth"
	"github.com/robsonalexmmf/contact-pilot-system-sub002/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const statementDescriptor = "CRM"

// CheckoutDeps are the collaborators of a CheckoutHandler. Gateway defaults
// to a MercadoPagoClient built from config; Profiles and Metrics are optional.
type CheckoutDeps struct {
	Gateway  GatewayClient
	Verifier auth.TokenVerifier
	Profiles ProfileStore
	Metrics  *Metrics
	Logger   *zap.Logger
	Now      func() time.Time
}

// CheckoutHandler turns an authenticated plan request into a gateway
// checkout preference. It keeps no state between requests.
type CheckoutHandler struct {
	gateway     GatewayClient
	verifier    auth.TokenVerifier
	profiles    ProfileStore
	metrics     *Metrics
	log         *zap.Logger
	now         func() time.Time
	frontendURL string
	currency    string
	authBypass  bool
}

// NewCheckoutHandler returns ErrConfiguration when the gateway access token is missing.
func NewCheckoutHandler(cfg *config.Config, deps CheckoutDeps) (*CheckoutHandler, error) {
	if cfg == nil || cfg.Gateway.AccessToken == "" {
		return nil, ErrConfiguration
	}

	gateway := deps.Gateway
	if gateway == nil {
		client, err := NewMercadoPagoClient(cfg.Gateway.BaseURL, cfg.Gateway.AccessToken, cfg.Gateway.Timeout)
		if err != nil {
			return nil, err
		}
		gateway = client
	}

	h := &CheckoutHandler{
		gateway:     gateway,
		verifier:    deps.Verifier,
		profiles:    deps.Profiles,
		metrics:     deps.Metrics,
		log:         deps.Logger,
		now:         deps.Now,
		frontendURL: cfg.Frontend.URL,
		currency:    cfg.Gateway.Currency,
		authBypass:  cfg.Auth.Disabled && auth.AuthDisabled(),
	}
	if h.log == nil {
		h.log = zap.NewNop()
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.metrics == nil {
		h.metrics = NewMetrics()
	}
	return h, nil
}

// Handle serves POST /api/billing/create-preference.
func (h *CheckoutHandler) Handle(c *gin.Context) {
	log := logger.FromContext(c, h.log)

	resp, plan, err := h.createPreference(c)
	if err != nil {
		planLabel := string(plan)
		if planLabel == "" {
			planLabel = "unknown"
		}
		h.metrics.CheckoutTotal.WithLabelValues(planLabel, errorKind(err)).Inc()
		log.Warn("checkout failed", zap.String("plan", planLabel), zap.Error(err))
		respondError(c, err)
		return
	}

	h.metrics.CheckoutTotal.WithLabelValues(string(plan), "created").Inc()
	log.Info("checkout preference created",
		zap.String("plan", string(plan)),
		zap.String("preference_id", resp.PreferenceID),
	)
	c.JSON(http.StatusOK, resp)
}

func (h *CheckoutHandler) createPreference(c *gin.Context) (*models.CreatePreferenceResponse, models.PlanType, error) {
	claims, err := h.authenticate(c.GetHeader("Authorization"))
	if err != nil {
		return nil, "", err
	}

	var req models.CreatePreferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, "", fmt.Errorf("%w: planType is required", ErrValidation)
	}
	plan, err := models.ParsePlanType(req.PlanType)
	if err != nil || !plan.IsPaid() {
		return nil, "", fmt.Errorf("%w: unsupported plan type %q", ErrValidation, req.PlanType)
	}
	price, _ := models.PriceFor(plan)

	email, err := h.payerEmail(c.Request.Context(), claims)
	if err != nil {
		return nil, plan, err
	}

	origin := requestOrigin(c.Request, h.frontendURL)
	if origin == "" {
		return nil, plan, fmt.Errorf("%w: cannot determine return origin", ErrValidation)
	}

	pref := h.buildPreference(claims.Subject, price, email, origin)

	start := time.Now()
	created, err := h.gateway.CreatePreference(c.Request.Context(), pref)
	h.metrics.GatewayDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, plan, err
	}

	return &models.CreatePreferenceResponse{
		PreferenceID: created.ID,
		CheckoutURL:  created.InitPoint,
		SandboxURL:   created.SandboxInitPoint,
	}, plan, nil
}

func (h *CheckoutHandler) authenticate(header string) (*auth.Claims, error) {
	if h.authBypass {
		return auth.LocalDevClaims(), nil
	}
	token, ok := auth.ExtractBearerToken(header)
	if !ok {
		return nil, fmt.Errorf("%w: missing bearer token", ErrAuth)
	}
	if h.verifier == nil {
		return nil, fmt.Errorf("%w: token verifier not configured", ErrAuth)
	}
	claims, err := h.verifier.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuth, err)
	}
	return claims, nil
}

// payerEmail prefers the token claim and falls back to the profiles table.
func (h *CheckoutHandler) payerEmail(ctx context.Context, claims *auth.Claims) (string, error) {
	if claims.Email != "" {
		return claims.Email, nil
	}
	if h.profiles != nil {
		profile, err := h.profiles.FindByID(ctx, claims.Subject)
		if err != nil && !errors.Is(err, ErrProfileNotFound) {
			return "", fmt.Errorf("load profile: %w", err)
		}
		if profile != nil && profile.Email != "" {
			return profile.Email, nil
		}
	}
	return "", fmt.Errorf("%w: no email for user", ErrAuth)
}

func (h *CheckoutHandler) buildPreference(userID string, price models.PlanPrice, email, origin string) *models.PreferenceRequest {
	currency := h.currency
	if currency == "" {
		currency = price.Currency
	}
	return &models.PreferenceRequest{
		Items: []models.PreferenceItem{{
			ID:          string(price.PlanType),
			Title:       price.Title,
			Description: price.Description,
			Quantity:    1,
			CurrencyID:  currency,
			UnitPrice:   price.Price.InexactFloat64(),
		}},
		Payer: models.PreferencePayer{Email: email},
		BackURLs: models.PreferenceBackURLs{
			Success: origin + "/payment/success",
			Failure: origin + "/payment/failure",
			Pending: origin + "/payment/pending",
		},
		AutoReturn:          "approved",
		ExternalReference:   externalReference(userID, price.PlanType, h.now()),
		StatementDescriptor: statementDescriptor,
		Metadata: map[string]string{
			"user_id":   userID,
			"plan_type": string(price.PlanType),
		},
	}
}

func externalReference(userID string, plan models.PlanType, now time.Time) string {
	return userID + "_" + string(plan) + "_" + strconv.FormatInt(now.UnixMilli(), 10)
}

// requestOrigin is the Origin header, else the scheme and host of Referer,
// else fallback.
func requestOrigin(r *http.Request, fallback string) string {
	if o := strings.TrimSpace(r.Header.Get("Origin")); o != "" && o != "null" {
		return strings.TrimRight(o, "/")
	}
	if ref := strings.TrimSpace(r.Header.Get("Referer")); ref != "" {
		if u, err := url.Parse(ref); err == nil && u.Scheme != "" && u.Host != "" {
			return u.Scheme + "://" + u.Host
		}
	}
	return strings.TrimRight(fallback, "/")
}

// unconfiguredCheckout answers every request when the handler could not be built.
func unconfiguredCheckout(err error, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		logger.FromContext(c, log).Error("checkout handler unavailable", zap.Error(err))
		respondError(c, err)
	}
}
