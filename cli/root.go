// Package cli implements crmctl, the client side of the plan, usage and
// checkout flow. Session state lives in a YAML file or in Redis.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/robsonalexmmf/contact-pilot-system-sub002/billing"
	"github.com/robsonalexmmf/contact-pilot-system-sub002/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultAPIURL = "http://localhost:8080"

// Option customizes the command tree, mainly for tests.
type Option func(*cli)

// WithStorage replaces the session backend chosen from flags.
func WithStorage(s billing.Storage) Option {
	return func(c *cli) { c.storage = s }
}

// WithPreferenceCreator replaces the HTTP client of the checkout handler.
func WithPreferenceCreator(p billing.PreferenceCreator) Option {
	return func(c *cli) { c.creator = p }
}

// WithClock fixes the session clock.
func WithClock(now func() time.Time) Option {
	return func(c *cli) { c.now = now }
}

// WithLogger replaces the stderr logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *cli) { c.log = l }
}

type cli struct {
	// flags
	sessionPath  string
	apiURL       string
	redisURL     string
	profile      string
	outputFormat string
	timeout      time.Duration
	retries      int
	backoff      time.Duration

	// state set during PersistentPreRunE
	storage   billing.Storage
	creator   billing.PreferenceCreator
	now       func() time.Time
	log       *zap.Logger
	session   *billing.Session
	formatter Formatter
	closers   []func()
}

// NewRootCmd builds a fresh crmctl command tree.
func NewRootCmd(opts ...Option) *cobra.Command {
	c := &cli{}
	for _, opt := range opts {
		opt(c)
	}

	root := &cobra.Command{
		Use:   "crmctl",
		Short: "crmctl manages CRM plans, usage limits and checkout",
		Long: `crmctl keeps a local CRM session: the active plan, usage counters and
the pending checkout. Usage is gated by the plan's limits and paid plans
are bought through the CRM API's checkout handler.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			c.teardown()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.sessionPath, "session", "", "session file (default is ~/.crmctl/session.yaml)")
	flags.StringVar(&c.apiURL, "api", envOr("CRM_API_URL", defaultAPIURL), "CRM API base URL")
	flags.StringVar(&c.redisURL, "redis", os.Getenv("REDIS_URL"), "keep the session in Redis instead of a file")
	flags.StringVar(&c.profile, "profile", "default", "session namespace when using Redis")
	flags.StringVarP(&c.outputFormat, "output", "o", "yaml", "output format: yaml, json")
	flags.DurationVar(&c.timeout, "timeout", 15*time.Second, "checkout request timeout")
	flags.IntVar(&c.retries, "retries", 1, "checkout attempts on transport failure")
	flags.DurationVar(&c.backoff, "retry-backoff", time.Second, "wait between checkout attempts")

	root.AddCommand(
		c.loginCmd(),
		c.logoutCmd(),
		c.whoamiCmd(),
		c.planCmd(),
		c.usageCmd(),
		c.subscribeCmd(),
		c.paymentCmd(),
	)
	return root
}

// Execute runs crmctl with os.Args.
func Execute() {
	if err := NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (c *cli) setup(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if c.log == nil {
		c.log = logger.New(logger.Config{Level: "warn", Format: "console", Output: "stderr"})
	}
	if c.now == nil {
		c.now = time.Now
	}

	formatter, err := NewFormatter(c.outputFormat)
	if err != nil {
		return err
	}
	c.formatter = formatter

	if c.storage == nil {
		storage, err := c.openStorage(ctx)
		if err != nil {
			return err
		}
		c.storage = storage
	}

	if c.creator == nil {
		c.creator = billing.NewHandlerClient(c.apiURL,
			billing.WithTimeout(c.timeout),
			billing.WithRetryPolicy(billing.RetryPolicy{MaxAttempts: c.retries, Backoff: c.backoff}),
			billing.WithClientLogger(c.log),
		)
	}

	c.session = billing.NewSession(ctx, c.storage,
		billing.WithClock(c.now),
		billing.WithLogger(c.log),
	)
	c.session.RefreshDaysUsed(ctx)
	return nil
}

func (c *cli) openStorage(ctx context.Context) (billing.Storage, error) {
	if c.redisURL != "" {
		client, err := billing.NewRedisClient(ctx, c.redisURL)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, func() { _ = client.Close() })
		return billing.NewRedisStorage(client, c.profile, 0), nil
	}
	path := c.sessionPath
	if path == "" {
		path = billing.DefaultSessionPath()
	}
	return billing.NewFileStorage(path), nil
}

func (c *cli) teardown() {
	for _, closeFn := range c.closers {
		closeFn()
	}
	c.closers = nil
	if c.log != nil {
		_ = c.log.Sync()
	}
}

func (c *cli) print(cmd *cobra.Command, v any) error {
	out, err := c.formatter.Format(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), out)
	return err
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
