// Command routectl plans routes from the terminal, either against a running
// server or in-process, and manages accounts.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"finitefield.org/route-planner/internal/accounts"
	"finitefield.org/route-planner/internal/di"
	"finitefield.org/route-planner/internal/optimize"
	"finitefield.org/route-planner/internal/planner"
	"finitefield.org/route-planner/internal/platform/config"
	"finitefield.org/route-planner/internal/platform/observability"
	"finitefield.org/route-planner/internal/store"
)

// exitErr carries a numeric exit code through the cobra error path.
type exitErr struct {
	code int
	msg  string
}

func (e *exitErr) Error() string { return e.msg }

func codeError(code int, format string, args ...any) error {
	return &exitErr{code: code, msg: fmt.Sprintf(format, args...)}
}

type rootFlags struct {
	envFile string
	verbose bool
}

type optimizeFlags struct {
	server    string
	user      string
	password  string
	userAgent string
	json      bool
	mapOut    string
}

type planFlags struct {
	json   bool
	mapOut string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(os.Stdin, os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		var ee *exitErr
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	var rf rootFlags
	root := &cobra.Command{
		Use:           "routectl",
		Short:         "Plan routes through a list of addresses",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)
	root.PersistentFlags().StringVar(&rf.envFile, "env-file", ".env", "dotenv file with ROUTE_ settings")
	root.PersistentFlags().BoolVar(&rf.verbose, "verbose", false, "Log to stderr")

	root.AddCommand(newOptimizeCmd(), newPlanCmd(&rf), newUserCmd(&rf))
	return root
}

func newOptimizeCmd() *cobra.Command {
	var f optimizeFlags
	cmd := &cobra.Command{
		Use:   "optimize ADDRESS...",
		Short: "Optimize a route on a running server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOptimize(cmd, f, args)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.server, "server", envOr("ROUTECTL_SERVER", "http://localhost:8080"), "Server base URL")
	fl.StringVar(&f.user, "user", os.Getenv("ROUTECTL_USER"), "Username")
	fl.StringVar(&f.password, "password", "", "Password (defaults to ROUTECTL_PASSWORD)")
	fl.StringVar(&f.userAgent, "user-agent", "routectl", "User-Agent sent to the server")
	fl.BoolVar(&f.json, "json", false, "Print the raw JSON response")
	fl.StringVar(&f.mapOut, "map-out", "", "Write the map fragment to this file")
	return cmd
}

func runOptimize(cmd *cobra.Command, f optimizeFlags, args []string) error {
	ctx := cmd.Context()
	password := f.password
	if password == "" {
		password = os.Getenv("ROUTECTL_PASSWORD")
	}
	if strings.TrimSpace(f.user) == "" || password == "" {
		return codeError(2, "--user and --password (or ROUTECTL_PASSWORD) are required")
	}

	client, err := optimize.NewClient(f.server, optimize.WithUserAgent(f.userAgent))
	if err != nil {
		return codeError(2, "%s", err)
	}
	if err := client.Login(ctx, f.user, password); err != nil {
		if errors.Is(err, optimize.ErrLoginFailed) {
			return codeError(3, "login rejected for %s", f.user)
		}
		return codeError(1, "%s", err)
	}

	ctrl := planner.NewController(0)
	res, err := ctrl.Submit(ctx, client, addressArgs(args))
	if err != nil {
		return submitError(err)
	}
	return printResult(cmd.OutOrStdout(), res, f.json, f.mapOut)
}

func newPlanCmd(rf *rootFlags) *cobra.Command {
	var f planFlags
	cmd := &cobra.Command{
		Use:   "plan ADDRESS...",
		Short: "Optimize a route in-process without saving it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig(ctx, rf)
			if err != nil {
				return err
			}
			svc, err := di.NewOptimizer(cfg, newLogger(rf, cmd.ErrOrStderr()), nil)
			if err != nil {
				return codeError(2, "%s", err)
			}
			ctrl := planner.NewController(svc.MaxAddresses())
			res, err := ctrl.Submit(ctx, svc.ForUser(0), addressArgs(args))
			if err != nil {
				return submitError(err)
			}
			return printResult(cmd.OutOrStdout(), res, f.json, f.mapOut)
		},
	}
	cmd.Flags().BoolVar(&f.json, "json", false, "Print the result as JSON")
	cmd.Flags().StringVar(&f.mapOut, "map-out", "", "Write the map fragment to this file")
	return cmd
}

func newUserCmd(rf *rootFlags) *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}
	var password string
	add := &cobra.Command{
		Use:   "add USERNAME",
		Short: "Create an account directly in the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if password == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return codeError(1, "read password: %s", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			cfg, err := loadConfig(ctx, rf)
			if err != nil {
				return err
			}
			db, err := store.Open(ctx, cfg.Database.Path)
			if err != nil {
				return codeError(1, "%s", err)
			}
			defer db.Close()

			svc, err := accounts.NewService(db, accounts.WithLogger(newLogger(rf, cmd.ErrOrStderr())))
			if err != nil {
				return codeError(1, "%s", err)
			}
			user, err := svc.Register(ctx, args[0], password)
			switch {
			case errors.Is(err, accounts.ErrUsernameTaken):
				return codeError(3, "username %q already exists", strings.TrimSpace(args[0]))
			case errors.Is(err, accounts.ErrMissingFields), errors.Is(err, accounts.ErrUsernameTooLong),
				errors.Is(err, accounts.ErrPasswordTooLong):
				return codeError(2, "%s", err)
			case err != nil:
				return codeError(1, "%s", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %s (id %d)\n", user.Username, user.ID)
			return nil
		},
	}
	add.Flags().StringVar(&password, "password", "", "Password; read from stdin when omitted")
	userCmd.AddCommand(add)
	return userCmd
}

func loadConfig(ctx context.Context, rf *rootFlags) (config.Config, error) {
	cfg, err := config.Load(ctx, config.WithEnvFile(rf.envFile))
	if err != nil {
		var ve *config.ValidationError
		if errors.As(err, &ve) {
			return config.Config{}, codeError(2, "invalid configuration: %s", strings.Join(ve.Fields(), ", "))
		}
		return config.Config{}, codeError(2, "%s", err)
	}
	return cfg, nil
}

func newLogger(rf *rootFlags, errOut io.Writer) *zap.Logger {
	if !rf.verbose {
		return zap.NewNop()
	}
	logger, err := observability.NewLogger("debug")
	if err != nil {
		fmt.Fprintf(errOut, "logger: %v\n", err)
		return zap.NewNop()
	}
	return logger.Named("routectl")
}

func submitError(err error) error {
	if key := planner.MessageKey(err); key == "planner.error.too_few" {
		return codeError(2, "Please enter at least two addresses.")
	} else if key != "" {
		return codeError(2, "%s", err)
	}
	var se *planner.ServerError
	if errors.As(err, &se) {
		return codeError(3, "%s", se.Message)
	}
	return codeError(1, "%s", err)
}

func printResult(w io.Writer, res planner.Result, asJSON bool, mapOut string) error {
	if mapOut != "" {
		if err := os.WriteFile(mapOut, []byte(res.MapHTML), 0o644); err != nil {
			return codeError(1, "write map: %s", err)
		}
	}
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(optimize.Response{
			PlanID:  res.PlanID,
			Summary: &optimize.Summary{Distance: res.Distance, Order: res.Order},
			MapHTML: string(res.MapHTML),
		})
	}
	fmt.Fprintln(w, "Optimized Route")
	fmt.Fprintf(w, "Distance: %s\n", res.Distance)
	fmt.Fprintln(w, "Route Order:")
	for i, a := range res.Order {
		fmt.Fprintf(w, "  %d. %s\n", i+1, a)
	}
	if res.PlanID != "" {
		fmt.Fprintf(w, "Plan: %s\n", res.PlanID)
	}
	return nil
}

// addressArgs drops blank arguments so quoting mistakes do not count as stops.
func addressArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
