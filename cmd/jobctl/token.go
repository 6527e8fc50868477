package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/printworks/jobtrack/internal/auth"
	"github.com/printworks/jobtrack/internal/config"
	"github.com/printworks/jobtrack/internal/model"
)

type tokenOptions struct {
	user       string
	name       string
	role       string
	department string
	ttl        time.Duration
	secret     string
}

func newTokenCmd() *cobra.Command {
	var opts tokenOptions

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an HMAC token for a user",
		Long: `Issues a legacy HMAC-signed token carrying the user's role and department.
Intended for development and service accounts; the secret defaults to JWT_SECRET.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.secret == "" {
				cfg, err := config.Load()
				if err != nil {
					return fmt.Errorf("token: load config: %w", err)
				}
				opts.secret = cfg.JWT.Secret
			}
			return runToken(cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.user, "user", "", "user id (required)")
	cmd.Flags().StringVar(&opts.name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.role, "role", string(model.RoleViewer), "ADMIN, HOD, DESIGNER, OPERATOR or VIEWER")
	cmd.Flags().StringVar(&opts.department, "department", "", "department an HOD is scoped to")
	cmd.Flags().DurationVar(&opts.ttl, "ttl", 24*time.Hour, "token lifetime (0 for no expiry)")
	cmd.Flags().StringVar(&opts.secret, "secret", "", "signing secret (default from JWT_SECRET)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func runToken(out io.Writer, opts tokenOptions) error {
	role := model.Role(strings.ToUpper(opts.role))
	if !role.Valid() {
		return fmt.Errorf("token: unknown role %q", opts.role)
	}
	dept := model.Department(strings.ToUpper(opts.department))
	if !dept.Valid() {
		return fmt.Errorf("token: unknown department %q", opts.department)
	}

	token, err := auth.IssueLegacyToken(model.Actor{
		ID:         opts.user,
		Name:       opts.name,
		Role:       role,
		Department: dept,
	}, opts.secret, opts.ttl)
	if err != nil {
		return fmt.Errorf("token: sign: %w", err)
	}

	fmt.Fprintln(out, token)
	return nil
}
