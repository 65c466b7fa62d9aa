// Package models defines subscription plans, their limit tables and usage tracking fields.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type PlanType string

const (
	PlanFree    PlanType = "free"
	PlanPro     PlanType = "pro"
	PlanPremium PlanType = "premium"
	// PlanAdmin is an identity label, not a sellable tier.
	PlanAdmin PlanType = "admin"
)

// Unlimited marks a limit that is never enforced.
const Unlimited = -1

// ProPlanDuration is how long a pro activation stays valid.
const ProPlanDuration = 30 * 24 * time.Hour

// ParsePlanType maps a raw tag to a known plan, rejecting everything else.
func ParsePlanType(raw string) (PlanType, error) {
	p := PlanType(strings.ToLower(strings.TrimSpace(raw)))
	switch p {
	case PlanFree, PlanPro, PlanPremium, PlanAdmin:
		return p, nil
	}
	return "", fmt.Errorf("unknown plan type %q", raw)
}

// IsPaid reports whether the plan can be bought through checkout.
func (p PlanType) IsPaid() bool {
	return p == PlanPro || p == PlanPremium
}

// tierAliases maps identity labels onto the tier whose limits they get.
var tierAliases = map[PlanType]PlanType{
	PlanAdmin: PlanPremium,
}

// LimitsTier returns the tier used to resolve limits for p.
func (p PlanType) LimitsTier() PlanType {
	if tier, ok := tierAliases[p]; ok {
		return tier
	}
	return p
}

type PlanLimits struct {
	Leads       int `json:"leads" yaml:"leads"`
	Pipelines   int `json:"pipelines" yaml:"pipelines"`
	Automations int `json:"automations" yaml:"automations"`
	Users       int `json:"users" yaml:"users"`
	TrialDays   int `json:"trialDays" yaml:"trialDays"`
}

var planLimits = map[PlanType]PlanLimits{
	PlanFree: {
		Leads:       50,
		Pipelines:   1,
		Automations: 2,
		Users:       1,
		TrialDays:   7,
	},
	PlanPro: {
		Leads:       1000,
		Pipelines:   10,
		Automations: 20,
		Users:       5,
		TrialDays:   30,
	},
	PlanPremium: {
		Leads:       Unlimited,
		Pipelines:   Unlimited,
		Automations: Unlimited,
		Users:       Unlimited,
		TrialDays:   Unlimited,
	},
}

// LimitsFor returns the limit table of p after alias resolution.
// Unknown plans get the free tier.
func LimitsFor(p PlanType) PlanLimits {
	if l, ok := planLimits[p.LimitsTier()]; ok {
		return l
	}
	return planLimits[PlanFree]
}

// For returns the numeric limit for kind, and false when kind is unknown.
func (l PlanLimits) For(kind LimitKind) (int, bool) {
	switch kind {
	case LimitLeads:
		return l.Leads, true
	case LimitPipelines:
		return l.Pipelines, true
	case LimitAutomations:
		return l.Automations, true
	case LimitUsers:
		return l.Users, true
	case LimitDays:
		return l.TrialDays, true
	}
	return 0, false
}

// PlanRecord is the active plan of one identity.
type PlanRecord struct {
	PlanType  PlanType   `json:"planType" yaml:"planType"`
	StartDate time.Time  `json:"startDate" yaml:"startDate"`
	IsActive  bool       `json:"isActive" yaml:"isActive"`
	DaysUsed  int        `json:"daysUsed" yaml:"daysUsed"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty" yaml:"expiresAt,omitempty"`
}

// DefaultPlanRecord is what a fresh session starts on.
func DefaultPlanRecord(now time.Time) PlanRecord {
	return PlanRecord{
		PlanType:  PlanFree,
		StartDate: now,
		IsActive:  true,
	}
}

// PlanPrice is the sellable side of a paid tier.
type PlanPrice struct {
	PlanType    PlanType
	Title       string
	Description string
	Price       decimal.Decimal
	Currency    string
}

const DefaultCurrency = "BRL"

var planPrices = map[PlanType]PlanPrice{
	PlanPro: {
		PlanType:    PlanPro,
		Title:       "CRM Pro",
		Description: "CRM Pro plan - 30 days of access",
		Price:       decimal.RequireFromString("97.00"),
		Currency:    DefaultCurrency,
	},
	PlanPremium: {
		PlanType:    PlanPremium,
		Title:       "CRM Premium",
		Description: "CRM Premium plan - unlimited access",
		Price:       decimal.RequireFromString("197.00"),
		Currency:    DefaultCurrency,
	},
}

// PriceFor looks up the price of a paid tier.
func PriceFor(p PlanType) (PlanPrice, bool) {
	price, ok := planPrices[p]
	return price, ok
}
