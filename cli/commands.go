package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robsonalexmmf/contact-pilot-system-sub002/app/models"
	"github.com/robsonalexmmf/contact-pilot-system-sub002/billing"

	"github.com/spf13/cobra"
)

// ErrLimitReached is returned when usage is blocked by the active plan.
var ErrLimitReached = errors.New("plan limit reached")

type decisionView struct {
	Kind      models.LimitKind       `json:"kind" yaml:"kind"`
	Allowed   bool                   `json:"allowed" yaml:"allowed"`
	Violation *models.LimitViolation `json:"violation,omitempty" yaml:"violation,omitempty"`
}

type identityView struct {
	ID    string `json:"id" yaml:"id"`
	Email string `json:"email" yaml:"email"`
}

type pendingView struct {
	Email string          `json:"email" yaml:"email"`
	Plan  models.PlanType `json:"plan" yaml:"plan"`
}

func (c *cli) loginCmd() *cobra.Command {
	var id, email, token string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the authenticated identity and resume a pending plan selection",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(id) == "" || strings.TrimSpace(token) == "" {
				return errors.New("--id and --token are required")
			}
			ctx := cmd.Context()
			identity := billing.Identity{
				ID:          strings.TrimSpace(id),
				Email:       strings.ToLower(strings.TrimSpace(email)),
				AccessToken: strings.TrimSpace(token),
			}
			c.session.SetIdentity(ctx, identity)
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s.\n", identity.ID)

			plan, ok := c.session.SelectedPlan(ctx)
			if !ok {
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Resuming checkout for plan %s.\n", plan)
			result, err := billing.NewInitiator(c.session, c.creator, c.log).Subscribe(ctx, plan, &identity)
			if err != nil {
				return err
			}
			c.session.ClearSelectedPlan(ctx)
			return c.print(cmd, result)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "user id")
	cmd.Flags().StringVar(&email, "email", "", "user email")
	cmd.Flags().StringVar(&token, "token", "", "access token issued by the auth service")
	return cmd
}

func (c *cli) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, ok := c.session.Identity(cmd.Context())
			if !ok {
				return errors.New("not logged in")
			}
			return c.print(cmd, identityView{ID: id.ID, Email: id.Email})
		},
	}
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the identity, plan and usage of this session",
		RunE: func(cmd *cobra.Command, args []string) error {
			c.session.Reset(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}

func (c *cli) planCmd() *cobra.Command {
	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Inspect and change the active plan",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the active plan, its limits and current usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.print(cmd, c.session.UsageInfo())
		},
	}

	activate := &cobra.Command{
		Use:   "activate free",
		Short: "Restart the free plan now and reset usage counters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := models.ParsePlanType(args[0])
			if err != nil {
				return err
			}
			switch {
			case plan.IsPaid():
				return fmt.Errorf("%s is a paid plan: use 'crmctl subscribe %s'", plan, plan)
			case plan != models.PlanFree:
				return fmt.Errorf("%s is granted by the identity provider, not activated", plan)
			}
			if err := c.session.ActivatePlan(cmd.Context(), plan); err != nil {
				return err
			}
			return c.print(cmd, c.session.UsageInfo())
		},
	}

	limits := &cobra.Command{
		Use:   "limits [plan]",
		Short: "Show the limit table of a plan (default: the active plan)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan := c.session.Plan().PlanType
			if len(args) == 1 {
				p, err := models.ParsePlanType(args[0])
				if err != nil {
					return err
				}
				plan = p
			}
			return c.print(cmd, models.LimitsFor(plan))
		},
	}

	planCmd.AddCommand(show, activate, limits)
	return planCmd
}

func (c *cli) usageCmd() *cobra.Command {
	usageCmd := &cobra.Command{
		Use:   "usage",
		Short: "Gate and record actions against the plan limits",
	}

	check := &cobra.Command{
		Use:   "check <kind>",
		Short: "Check whether one more action of kind is allowed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := models.ParseLimitKind(args[0])
			if err != nil {
				return err
			}
			d := c.session.Check(kind)
			if err := c.print(cmd, decisionView{Kind: kind, Allowed: d.Allowed, Violation: d.Violation}); err != nil {
				return err
			}
			return decisionErr(d)
		},
	}

	record := &cobra.Command{
		Use:   "record <kind>",
		Short: "Record one action of kind if the plan allows it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := models.ParseLimitKind(args[0])
			if err != nil {
				return err
			}
			d, err := c.session.Use(cmd.Context(), kind)
			if err != nil {
				return err
			}
			if err := c.print(cmd, decisionView{Kind: kind, Allowed: d.Allowed, Violation: d.Violation}); err != nil {
				return err
			}
			return decisionErr(d)
		},
	}

	usageCmd.AddCommand(check, record)
	return usageCmd
}

func (c *cli) subscribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "subscribe <pro|premium>",
		Short: "Start a checkout for a paid plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := models.ParsePlanType(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			identity, _ := c.session.Identity(ctx)
			result, err := billing.NewInitiator(c.session, c.creator, c.log).Subscribe(ctx, plan, identity)
			if err != nil {
				return err
			}
			if result.AuthRequired {
				fmt.Fprintf(cmd.OutOrStdout(), "Plan %s selected. Log in with 'crmctl login' to continue.\n", plan)
			}
			return c.print(cmd, result)
		},
	}
}

func (c *cli) paymentCmd() *cobra.Command {
	paymentCmd := &cobra.Command{
		Use:   "payment",
		Short: "Follow up on a checkout started with subscribe",
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the pending payment, if any",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, plan, ok := c.session.PendingPayment(cmd.Context())
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "No pending payment.")
				return nil
			}
			return c.print(cmd, pendingView{Email: email, Plan: plan})
		},
	}

	confirm := &cobra.Command{
		Use:   "confirm",
		Short: "Activate the pending plan after the gateway approved the payment",
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := c.session.ConfirmPendingPayment(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Plan %s activated.\n", plan)
			return c.print(cmd, c.session.UsageInfo())
		},
	}

	paymentCmd.AddCommand(status, confirm)
	return paymentCmd
}

func decisionErr(d billing.Decision) error {
	if d.Allowed {
		return nil
	}
	if d.Violation != nil {
		return fmt.Errorf("%w: %v", ErrLimitReached, d.Violation)
	}
	return ErrLimitReached
}
