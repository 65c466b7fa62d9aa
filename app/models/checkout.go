package models

import "github.com/shopspring/decimal"

// CheckoutRequest is built fresh for every checkout attempt and never stored.
type CheckoutRequest struct {
	PlanType    PlanType        `json:"planType"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	PayerEmail  string          `json:"payerEmail"`
}

// CheckoutResult is either a full redirect target or an auth-required outcome.
type CheckoutResult struct {
	PreferenceID string `json:"preferenceId,omitempty" yaml:"preferenceId,omitempty"`
	RedirectURL  string `json:"redirectUrl,omitempty" yaml:"redirectUrl,omitempty"`
	SandboxURL   string `json:"sandboxUrl,omitempty" yaml:"sandboxUrl,omitempty"`
	AuthRequired bool   `json:"authRequired,omitempty" yaml:"authRequired,omitempty"`
}

// CreatePreferenceRequest is the body accepted by the checkout handler.
type CreatePreferenceRequest struct {
	PlanType string `json:"planType" binding:"required"`
}

// CreatePreferenceResponse is the body returned by the checkout handler on success.
type CreatePreferenceResponse struct {
	PreferenceID string `json:"preference_id"`
	CheckoutURL  string `json:"checkout_url"`
	SandboxURL   string `json:"sandbox_url"`
}

// ErrorResponse is the single error shape the server emits.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Payment gateway preference payloads.

type PreferenceItem struct {
	ID          string  `json:"id,omitempty"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Quantity    int     `json:"quantity"`
	CurrencyID  string  `json:"currency_id"`
	UnitPrice   float64 `json:"unit_price"`
}

type PreferencePayer struct {
	Email string `json:"email"`
}

type PreferenceBackURLs struct {
	Success string `json:"success"`
	Failure string `json:"failure"`
	Pending string `json:"pending"`
}

type PreferenceRequest struct {
	Items               []PreferenceItem   `json:"items"`
	Payer               PreferencePayer    `json:"payer"`
	BackURLs            PreferenceBackURLs `json:"back_urls"`
	AutoReturn          string             `json:"auto_return,omitempty"`
	ExternalReference   string             `json:"external_reference"`
	StatementDescriptor string             `json:"statement_descriptor,omitempty"`
	Metadata            map[string]string  `json:"metadata,omitempty"`
}

type Preference struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}
