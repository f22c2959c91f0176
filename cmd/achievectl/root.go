package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/achievehub/achievehub/internal/auth"
	"github.com/achievehub/achievehub/internal/platform/db"
	"github.com/achievehub/achievehub/internal/rbac"
	"github.com/achievehub/achievehub/migrations"
)

type globalOptions struct {
	redisAddr string
	timeout   time.Duration
	json      bool
}

func rootCmd() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:           "achievectl",
		Short:         "Operate an AchieveHub deployment",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.redisAddr, "redis", envOr("REDIS_ADDR", "127.0.0.1:6379"), "Redis address")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Command timeout")
	cmd.PersistentFlags().BoolVar(&opts.json, "json", false, "Print results as JSON")

	cmd.AddCommand(jobsCmd(opts), migrateCmd(opts), sessionCmd(opts), passwordCmd())
	return cmd
}

func commandContext(opts *globalOptions) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	return ctx, func() {
		stop()
		cancel()
	}
}

func migrateCmd(opts *globalOptions) *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(opts)
			defer cancel()
			pool, err := db.New(ctx, db.Options{DSN: dsn})
			if err != nil {
				return err
			}
			defer pool.Close()
			applied, err := migrations.Apply(ctx, pool)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", os.Getenv("PG_DSN"), "PostgreSQL DSN")
	return cmd
}

func sessionCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage bearer sessions",
	}
	var (
		userID int64
		roles  []string
		ttl    time.Duration
	)
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue a bearer token for a user without a password login",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID <= 0 {
				return fmt.Errorf("--user-id must be positive")
			}
			for _, role := range roles {
				if _, ok := rbac.RoleFromAuthority(role); !ok {
					return fmt.Errorf("unknown role %q", role)
				}
			}
			ctx, cancel := commandContext(opts)
			defer cancel()
			client := redis.NewClient(&redis.Options{Addr: opts.redisAddr})
			defer client.Close()
			token, err := auth.NewSessionStore(client, ttl).Issue(ctx, userID, roles)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), opts.json, map[string]any{
				"token":      token,
				"user_id":    userID,
				"roles":      roles,
				"expires_in": ttl.String(),
			}, token)
		},
	}
	issue.Flags().Int64Var(&userID, "user-id", 0, "User id")
	issue.Flags().StringSliceVar(&roles, "role", []string{rbac.RoleGeneralUser.Authority()}, "Role authority, repeatable")
	issue.Flags().DurationVar(&ttl, "ttl", time.Hour, "Session lifetime")
	cmd.AddCommand(issue)
	return cmd
}

func passwordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash for users.password_hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := auth.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func printResult(w io.Writer, asJSON bool, v any, text string) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(w, text)
	return err
}

func parseIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid id %q", part)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no ids given")
	}
	return ids, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
