// Package cli implements rulesctl, the operator command line for the tenant
// rules API.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/upb/tenant-rules-admin/auth"
	"github.com/upb/tenant-rules-admin/client"
	"github.com/upb/tenant-rules-admin/config"
	"github.com/upb/tenant-rules-admin/internal/observability"
	"github.com/upb/tenant-rules-admin/services"
	"go.uber.org/zap"
)

// options holds the persistent flags shared by every subcommand
type options struct {
	url       string
	tenant    string
	token     string
	devSecret string
	output    string
	timeout   time.Duration
	verbose   bool

	cfg    *config.Config
	client *client.Client
}

// NewRootCommand builds the rulesctl command tree. Flag defaults come from
// the environment (see config.Load).
func NewRootCommand() *cobra.Command {
	cfg := config.Load()
	o := &options{cfg: cfg}

	root := &cobra.Command{
		Use:   "rulesctl",
		Short: "Manage tenant rules on the LLM gateway",
		Long: `rulesctl talks to the tenant rules API of the LLM gateway.
It lists, edits, validates, dry-runs, versions, imports and exports the
rules of one tenant.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.init()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&o.url, "url", cfg.Client.BaseURL, "Rules API base URL")
	flags.StringVar(&o.tenant, "tenant", cfg.Client.TenantID, "Tenant ID")
	flags.StringVar(&o.token, "token", cfg.Auth.Token, "Bearer token")
	flags.StringVar(&o.devSecret, "dev-secret", cfg.Auth.JWTSecret, "Mint tokens locally with this HS256 secret (development backend)")
	flags.StringVarP(&o.output, "output", "o", "json", "Output format (json, yaml)")
	flags.DurationVar(&o.timeout, "timeout", cfg.Client.Timeout, "Per-request timeout")
	flags.BoolVarP(&o.verbose, "verbose", "v", false, "Log requests to stderr")

	root.AddCommand(
		newListCmd(o),
		newGetCmd(o),
		newCreateCmd(o),
		newUpdateCmd(o),
		newDeleteCmd(o),
		newStatusCmd(o, "enable", true),
		newStatusCmd(o, "disable", false),
		newValidateCmd(o),
		newTestCmd(o),
		newHistoryCmd(o),
		newVersionCmd(o),
		newRollbackCmd(o),
		newImportCmd(o),
		newExportCmd(o),
	)
	return root
}

// Execute runs rulesctl and returns the process exit code
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "Error:", describe(err))
		return exitCode(err)
	}
	return 0
}

func (o *options) init() error {
	switch o.output {
	case "json", "yaml":
	default:
		return fmt.Errorf("unsupported output format %q (json, yaml)", o.output)
	}
	if o.tenant == "" {
		return errors.New("a tenant is required (--tenant or RULES_TENANT_ID)")
	}

	logger := zap.NewNop()
	if o.verbose {
		o.cfg.Observability.LogLevel = "debug"
		o.cfg.Observability.LogFormat = "console"
		l, err := observability.NewLogger(o.cfg.Observability)
		if err != nil {
			return err
		}
		logger = l
	}

	c, err := client.New(client.Config{
		BaseURL:     o.url,
		Timeout:     o.timeout,
		Credentials: o.credentials(),
		Logger:      logger,
		UserAgent:   "rulesctl/1.0",

		ValidateLocally: o.cfg.Client.ValidateLocally,
	})
	if err != nil {
		return err
	}
	o.client = c
	return nil
}

// credentials prefers an explicit token over locally minted ones
func (o *options) credentials() auth.CredentialProvider {
	switch {
	case o.token != "":
		return auth.StaticToken(o.token)
	case o.devSecret != "":
		return &auth.HMACTokenSource{
			Secret:   []byte(o.devSecret),
			Issuer:   o.cfg.Auth.Issuer,
			Subject:  o.cfg.Auth.Subject,
			Email:    o.cfg.Auth.Email,
			TenantID: o.tenant,
			Role:     o.cfg.Auth.Role,
			TTL:      o.cfg.Auth.TokenTTL,
		}
	default:
		return nil
	}
}

// describe renders an error with the field messages a validation failure carries
func describe(err error) string {
	msg := err.Error()
	var de *services.DomainError
	if errors.As(err, &de) {
		// keep any context wrapped around the domain error
		msg = strings.TrimSuffix(msg, de.Error()) + de.Message
		if de.StatusCode != 0 {
			msg = fmt.Sprintf("%s (HTTP %d)", msg, de.StatusCode)
		}
		for _, f := range de.FieldErrors {
			if f.Field == "" {
				msg += "\n  " + f.Message
				continue
			}
			msg += fmt.Sprintf("\n  %s: %s", f.Field, f.Message)
		}
	}
	return msg
}

func exitCode(err error) int {
	switch {
	case services.IsValidationError(err):
		return 2
	case services.IsNotFoundError(err):
		return 3
	case services.IsConflictError(err):
		return 4
	case services.IsUnauthorizedError(err), services.IsForbiddenError(err):
		return 5
	case services.IsAbortedError(err):
		return 130
	default:
		return 1
	}
}
