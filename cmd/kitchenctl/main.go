// Command kitchenctl is the operator tool: manual grants, one-off sweeps,
// account inspection and API token issuing.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/whattoeat/kitchenbot/internal/app"
	"github.com/whattoeat/kitchenbot/internal/app/api/middleware"
	"github.com/whattoeat/kitchenbot/internal/app/service/account"
	"github.com/whattoeat/kitchenbot/internal/app/service/entitlement"
	"github.com/whattoeat/kitchenbot/internal/app/service/expiry_sweep"
	"github.com/whattoeat/kitchenbot/pkg/config"
	"github.com/whattoeat/kitchenbot/pkg/types"
)

// Version is set at build time with -ldflags.
var Version = "dev"

// services is what the commands need from the dependency graph.
type services struct {
	fx.In

	Cfg      *config.Config
	Accounts *account.Service
	Grants   *entitlement.Service
	Sweep    *expiry_sweep.Service
}

// loadServices builds the graph without starting it, so neither the HTTP
// server nor the sweep scheduler run.
var loadServices = func() (*services, error) {
	var s services
	a := fx.New(app.Core, fx.NopLogger, fx.Invoke(func(in services) { s = in }))
	if err := a.Err(); err != nil {
		return nil, err
	}
	return &s, nil
}

var clock = time.Now

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "kitchenctl",
		Short:         "Operator tool for the kitchenbot backend",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newGrantCmd(), newSweepCmd(), newShowCmd(), newTokenCmd())
	return root
}

func newGrantCmd() *cobra.Command {
	var operator string
	cmd := &cobra.Command{
		Use:   "grant <external_id> <months>",
		Short: "Grant premium months to an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseExternalID(args[0])
			if err != nil {
				return err
			}
			months, err := strconv.Atoi(args[1])
			if err != nil || months < 1 {
				return fmt.Errorf("months must be a positive integer, got %q", args[1])
			}
			s, err := loadServices()
			if err != nil {
				return err
			}
			res, err := s.Grants.GrantPremium(cmd.Context(), entitlement.GrantRequest{
				ExternalID: id,
				Months:     months,
				Source:     types.GrantSourceAdmin,
				OperatorID: operator,
			}, clock())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&operator, "operator", "kitchenctl", "operator recorded on the grant")
	return cmd
}

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Clear expired premium flags once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadServices()
			if err != nil {
				return err
			}
			n, err := s.Sweep.Run(cmd.Context(), clock())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired %d account(s)\n", n)
			return nil
		},
	}
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <external_id>",
		Short: "Print an account with its effective premium status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseExternalID(args[0])
			if err != nil {
				return err
			}
			s, err := loadServices()
			if err != nil {
				return err
			}
			acc, err := s.Accounts.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			st, err := s.Grants.Status(cmd.Context(), id, clock())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"account": acc, "premium": st})
		},
	}
}

func newTokenCmd() *cobra.Command {
	var (
		role    string
		subject string
		secret  string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := middleware.Role(role)
			if r != middleware.RoleBot && r != middleware.RoleAdmin {
				return fmt.Errorf("unknown role %q", role)
			}
			if secret == "" {
				cfg, err := config.New()
				if err != nil {
					return err
				}
				secret = cfg.Auth.JWTSecret
			}
			tok, err := middleware.IssueToken(secret, r, subject, ttl, clock())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", string(middleware.RoleBot), "bot or admin")
	cmd.Flags().StringVar(&subject, "sub", "kitchenctl", "token subject")
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (defaults to auth.jwt_secret)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime, 0 for none")
	return cmd
}

func parseExternalID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid external id %q", s)
	}
	return id, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
