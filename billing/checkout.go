package billing

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/robsonalexmmf/contact-pilot-system-sub002/app/models"
)

// PreferenceCreator asks the checkout handler for a gateway preference.
type PreferenceCreator interface {
	CreatePreference(ctx context.Context, accessToken string, req models.CheckoutRequest) (*models.CreatePreferenceResponse, error)
}

// CheckoutError is returned by Subscribe when no redirect target could be obtained.
type CheckoutError struct {
	Plan models.PlanType
	Err  error
}

func (e *CheckoutError) Error() string {
	return fmt.Sprintf("checkout for plan %s failed: %v", e.Plan, e.Err)
}

func (e *CheckoutError) Unwrap() error {
	return e.Err
}

// Initiator starts checkouts for paid plans on behalf of a session.
type Initiator struct {
	session *Session
	creator PreferenceCreator
	log     *zap.Logger
}

func NewInitiator(session *Session, creator PreferenceCreator, log *zap.Logger) *Initiator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Initiator{session: session, creator: creator, log: log}
}

// BuildCheckoutRequest prices plan from the static plan table.
func BuildCheckoutRequest(plan models.PlanType, payerEmail string) (models.CheckoutRequest, error) {
	price, ok := models.PriceFor(plan)
	if !ok {
		return models.CheckoutRequest{}, fmt.Errorf("%w: %s is not sold through checkout", ErrInvalidPlan, plan)
	}
	return models.CheckoutRequest{
		PlanType:    plan,
		Price:       price.Price,
		Description: fmt.Sprintf("%s - %s %s", price.Description, price.Currency, price.Price.StringFixed(2)),
		PayerEmail:  payerEmail,
	}, nil
}

// Subscribe starts a checkout for plan.
//
// Without an identity nothing is sent: the plan is remembered for after
// registration and an AuthRequired result is returned. On success the
// payer email and plan are stored as a pending payment and the redirect
// URL is returned; on failure a *CheckoutError is returned and nothing is stored.
func (i *Initiator) Subscribe(ctx context.Context, plan models.PlanType, identity *Identity) (*models.CheckoutResult, error) {
	req, err := BuildCheckoutRequest(plan, "")
	if err != nil {
		return nil, err
	}

	if identity == nil || identity.ID == "" || identity.AccessToken == "" {
		i.session.SelectPlan(ctx, plan)
		i.log.Info("checkout requires registration", zap.String("plan", string(plan)))
		return &models.CheckoutResult{AuthRequired: true}, nil
	}
	req.PayerEmail = identity.Email

	resp, err := i.creator.CreatePreference(ctx, identity.AccessToken, req)
	if err != nil {
		i.log.Warn("checkout failed",
			zap.String("plan", string(plan)),
			zap.String("user_id", identity.ID),
			zap.Error(err),
		)
		return nil, &CheckoutError{Plan: plan, Err: err}
	}
	if resp == nil || resp.CheckoutURL == "" {
		return nil, &CheckoutError{Plan: plan, Err: errors.New("checkout handler returned no redirect url")}
	}

	i.session.SetPendingPayment(ctx, identity.Email, plan)
	i.log.Info("checkout started",
		zap.String("plan", string(plan)),
		zap.String("user_id", identity.ID),
		zap.String("preference_id", resp.PreferenceID),
	)

	return &models.CheckoutResult{
		PreferenceID: resp.PreferenceID,
		RedirectURL:  resp.CheckoutURL,
		SandboxURL:   resp.SandboxURL,
	}, nil
}
