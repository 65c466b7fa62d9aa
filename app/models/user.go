package models

// Profile mirrors the columns of the profiles table the checkout flow reads.
type Profile struct {
	ID       string   `db:"id"`
	Email    string   `db:"email"`
	FullName string   `db:"full_name"`
	PlanType PlanType `db:"plan_type"`
}
