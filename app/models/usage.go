package models

import (
	"fmt"
	"strings"
	"time"
)

type LimitKind string

const (
	LimitLeads       LimitKind = "leads"
	LimitPipelines   LimitKind = "pipelines"
	LimitAutomations LimitKind = "automations"
	LimitUsers       LimitKind = "users"
	LimitDays        LimitKind = "days"
)

// ParseLimitKind accepts the kinds a plan can limit.
func ParseLimitKind(raw string) (LimitKind, error) {
	k := LimitKind(strings.ToLower(strings.TrimSpace(raw)))
	switch k {
	case LimitLeads, LimitPipelines, LimitAutomations, LimitUsers, LimitDays:
		return k, nil
	}
	return "", fmt.Errorf("unknown limit kind %q", raw)
}

// UsageCounters only grow between plan activations.
type UsageCounters struct {
	Leads       int `json:"leads" yaml:"leads"`
	Pipelines   int `json:"pipelines" yaml:"pipelines"`
	Automations int `json:"automations" yaml:"automations"`
	Users       int `json:"users" yaml:"users"`
}

// Count returns the counter for kind. Days are not counted here.
func (u UsageCounters) Count(kind LimitKind) int {
	switch kind {
	case LimitLeads:
		return u.Leads
	case LimitPipelines:
		return u.Pipelines
	case LimitAutomations:
		return u.Automations
	case LimitUsers:
		return u.Users
	}
	return 0
}

// Increment bumps the counter for kind by one.
func (u *UsageCounters) Increment(kind LimitKind) bool {
	switch kind {
	case LimitLeads:
		u.Leads++
	case LimitPipelines:
		u.Pipelines++
	case LimitAutomations:
		u.Automations++
	case LimitUsers:
		u.Users++
	default:
		return false
	}
	return true
}

// LimitViolation is produced when an action would exceed a plan limit.
// For the days kind Current holds the elapsed days.
type LimitViolation struct {
	Kind    LimitKind `json:"kind" yaml:"kind"`
	Current int       `json:"current" yaml:"current"`
	Limit   int       `json:"limit" yaml:"limit"`
}

func (v *LimitViolation) Error() string {
	if v.Kind == LimitDays {
		return fmt.Sprintf("trial period over: %d of %d days used", v.Current, v.Limit)
	}
	return fmt.Sprintf("%s limit reached: %d of %d", v.Kind, v.Current, v.Limit)
}

// UsageInfo is the read model of a session. DaysRemaining is nil for
// unlimited-duration plans.
type UsageInfo struct {
	Plan          PlanType      `json:"plan" yaml:"plan"`
	IsActive      bool          `json:"isActive" yaml:"isActive"`
	Limits        PlanLimits    `json:"limits" yaml:"limits"`
	Usage         UsageCounters `json:"usage" yaml:"usage"`
	DaysUsed      int           `json:"daysUsed" yaml:"daysUsed"`
	DaysRemaining *int          `json:"daysRemaining" yaml:"daysRemaining"`
	StartDate     time.Time     `json:"startDate" yaml:"startDate"`
	ExpiresAt     *time.Time    `json:"expiresAt,omitempty" yaml:"expiresAt,omitempty"`
}
