package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goevery/realtimesync/internal/auth"
	"github.com/spf13/cobra"
)

type tokenIssueOptions struct {
	secret    string
	subject   string
	resources []string
	scope     []string
	ttl       time.Duration
	save      bool
}

var issueFlags tokenIssueOptions

func init() {
	tokenIssueCmd.Flags().StringVar(&issueFlags.secret, "secret", "", "signing secret (default: $JWT_SECRET)")
	tokenIssueCmd.Flags().StringVar(&issueFlags.subject, "subject", "", "token subject")
	tokenIssueCmd.Flags().StringSliceVar(&issueFlags.resources, "resource", nil, "granted topic, e.g. customers or customers:CUST-1")
	tokenIssueCmd.Flags().StringSliceVar(&issueFlags.scope, "scope", []string{auth.ScopeSubscribe}, "granted scope")
	tokenIssueCmd.Flags().DurationVar(&issueFlags.ttl, "ttl", 24*time.Hour, "token lifetime")
	tokenIssueCmd.Flags().BoolVar(&issueFlags.save, "save", false, "store the token for the watch command")
	_ = tokenIssueCmd.MarkFlagRequired("subject")

	tokenCmd.AddCommand(tokenIssueCmd, tokenSetCmd, tokenShowCmd, tokenClearCmd)
	rootCmd.AddCommand(tokenCmd)
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage the stored auth token",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Sign a subscriber token",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := issueFlags
		if opts.secret == "" {
			opts.secret = os.Getenv("JWT_SECRET")
		}

		var store *auth.FileTokenStore
		if opts.save {
			var err error
			store, err = tokenStore()
			if err != nil {
				return err
			}
		}

		return issueToken(cmd.OutOrStdout(), opts, store)
	},
}

var tokenSetCmd = &cobra.Command{
	Use:   "set <token>",
	Short: "Store an existing token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := tokenStore()
		if err != nil {
			return err
		}

		if err := store.Store(args[0]); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "token stored in %s\n", store.Path())

		return nil
	},
}

var tokenShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored token",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := tokenStore()
		if err != nil {
			return err
		}

		token, err := store.Token()
		if err != nil {
			return err
		}

		if token == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "(no token stored)")
			return nil
		}

		fmt.Fprintln(cmd.OutOrStdout(), token)

		return nil
	},
}

var tokenClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the stored token",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := tokenStore()
		if err != nil {
			return err
		}

		return store.Clear()
	},
}

// issueToken signs a token, prints it to out and, when store is non-nil,
// saves it.
func issueToken(out io.Writer, opts tokenIssueOptions, store *auth.FileTokenStore) error {
	if opts.secret == "" {
		return errors.New("a signing secret is required (--secret or $JWT_SECRET)")
	}

	if len(opts.resources) == 0 {
		return errors.New("at least one --resource is required")
	}

	token, err := auth.NewIssuer(opts.secret, opts.ttl).Issue(opts.subject, opts.resources, opts.scope)
	if err != nil {
		return fmt.Errorf("cannot sign token: %w", err)
	}

	fmt.Fprintln(out, token)

	if store != nil {
		if err := store.Store(token); err != nil {
			return fmt.Errorf("cannot store token: %w", err)
		}
	}

	return nil
}
