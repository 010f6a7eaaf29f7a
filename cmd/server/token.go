package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eaziwage/advance-engine/session"
)

var (
	tokenRole     string
	tokenSubject  string
	tokenEmployer string
	tokenName     string
	tokenEmail    string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a development session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		tokens, err := session.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
		if err != nil {
			return fmt.Errorf("%w (set auth.jwt_secret or EWA_AUTH_JWT_SECRET)", err)
		}

		role := session.Role(tokenRole)
		if role != session.RoleAdmin && tokenEmployer == "" {
			return fmt.Errorf("--employer is required for role %s", role)
		}

		tok, s, err := tokens.Issue(session.User{
			ID:         tokenSubject,
			Email:      tokenEmail,
			Name:       tokenName,
			Role:       role,
			EmployerID: tokenEmployer,
		})
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), tok)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", s.ExpiresAt().Format("2006-01-02 15:04:05 MST"))
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(session.RoleAdmin), "admin, employer or employee")
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "admin", "user id (the employee id for employees)")
	tokenCmd.Flags().StringVar(&tokenEmployer, "employer", "", "employer id for employer and employee roles")
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "display name")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "email")
	rootCmd.AddCommand(tokenCmd)
}
