// Package model defines the core domain records shared by the parsers,
// pipeline, and stores. All money is integer cents; all dates inside
// hashable records are ISO calendar-date strings.
package model

import "time"

// Accrual is the declared accrual revenue reference for a deal. When absent,
// reconciliation never runs.
type Accrual struct {
	RevenueCents int64  `json:"accrual_revenue_cents"`
	PeriodStart  string `json:"accrual_period_start"`
	PeriodEnd    string `json:"accrual_period_end"`
}

// Deal is an investment deal under analysis. Created once; the accrual
// reference is set at creation or left nil.
type Deal struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Currency  string    `json:"currency"`
	Accrual   *Accrual  `json:"accrual,omitempty"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}
