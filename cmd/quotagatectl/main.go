// Command quotagatectl is the operator CLI: it applies migrations, mints
// entitlement tokens and inspects existing ones.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/quotagate/quotagate/internal/auth"
	"github.com/quotagate/quotagate/internal/metrics"
	"github.com/quotagate/quotagate/internal/model"
	"github.com/quotagate/quotagate/internal/quota"
	"github.com/quotagate/quotagate/internal/repository"
	"github.com/quotagate/quotagate/internal/service"
)

const usage = `usage: quotagatectl <command> [flags]

commands:
  migrate   apply database migrations
  mint      create (or return) the entitlement token for a subject and solution
  inspect   show the entitlement behind a token
`

func main() {
	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	var err error
	switch args[0] {
	case "migrate":
		err = runMigrate(args[1:], stderr)
	case "mint":
		err = runMint(args[1:], stdout, stderr)
	case "inspect":
		err = runInspect(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if errors.Is(err, errUsage) {
		return 2
	}
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	return 0
}

var errUsage = errors.New("usage error")

func newFlagSet(name string, stderr io.Writer) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	databaseURL := fs.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	return fs, databaseURL
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return errUsage
	}
	return nil
}

func runMigrate(args []string, stderr io.Writer) error {
	fs, databaseURL := newFlagSet("migrate", stderr)
	if err := parse(fs, args); err != nil {
		return err
	}
	if *databaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if err := repository.Migrate(*databaseURL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	fmt.Fprintln(stderr, "migrations applied")
	return nil
}

type mintOutput struct {
	Subject     string `json:"subject"`
	SolutionID  string `json:"solution_id"`
	Tier        string `json:"tier"`
	Token       string `json:"token"`
	Fingerprint string `json:"token_fingerprint"`
	Created     bool   `json:"created"`
}

func runMint(args []string, stdout, stderr io.Writer) error {
	fs, databaseURL := newFlagSet("mint", stderr)
	var (
		subject    = fs.String("subject", "", "Identity subject that owns the entitlement")
		solutionID = fs.String("solution", "", "Solution id")
		tier       = fs.String("tier", string(model.TierRegistered), "Tier: free, registered or pro")
		strategy   = fs.String("strategy", envOr("TOKEN_STRATEGY", auth.StrategyDeterministic), "Token strategy: deterministic or random")
		prefix     = fs.String("prefix", envOr("TOKEN_PREFIX", "qg_"), "Token prefix")
		length     = fs.Int("length", auth.DefaultTokenBodyLen, "Hex characters after the prefix")
		format     = fs.String("format", "plain", "Output format: plain or json")
	)
	if err := parse(fs, args); err != nil {
		return err
	}
	if *databaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if *subject == "" || *solutionID == "" {
		fmt.Fprintln(stderr, "-subject and -solution are required")
		return errUsage
	}
	if err := checkFormat(*format); err != nil {
		return err
	}

	strat, err := auth.NewStrategy(*strategy, *prefix, os.Getenv("TOKEN_SECRET"), *length)
	if err != nil {
		return fmt.Errorf("token strategy: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := repository.New(ctx, *databaseURL, 2)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer repo.Close()

	calendar, err := quota.NewCalendar(os.Getenv("USAGE_TIMEZONE"))
	if err != nil {
		return err
	}

	minter := service.NewMinter(repo, strat, calendar, metrics.NewNoop(), quietLogger(stderr))
	ent, created, err := minter.Mint(ctx, service.MintInput{
		Subject:    *subject,
		SolutionID: *solutionID,
		Tier:       model.Tier(*tier),
	})
	if err != nil {
		return fmt.Errorf("mint: %w", err)
	}

	out := mintOutput{
		Subject:     ent.Subject,
		SolutionID:  ent.SolutionID,
		Tier:        string(ent.Tier),
		Token:       ent.Token,
		Fingerprint: auth.Fingerprint(ent.Token),
		Created:     created,
	}
	if *format == "json" {
		return writeJSON(stdout, out)
	}
	fmt.Fprintln(stdout, out.Token)
	return nil
}

type inspectOutput struct {
	Fingerprint    string `json:"token_fingerprint"`
	ID             string `json:"id"`
	Subject        string `json:"subject"`
	SolutionID     string `json:"solution_id"`
	Tier           string `json:"tier"`
	Status         string `json:"status"`
	Today          string `json:"today"`
	UsedToday      int    `json:"used_today"`
	DailyLimit     int    `json:"daily_limit"`
	RemainingToday int    `json:"remaining_today"`
	CreatedAt      string `json:"created_at"`
}

func runInspect(args []string, stdout, stderr io.Writer) error {
	fs, databaseURL := newFlagSet("inspect", stderr)
	var (
		token  = fs.String("token", "", "Bearer token to look up")
		prefix = fs.String("prefix", envOr("TOKEN_PREFIX", "qg_"), "Token prefix")
		format = fs.String("format", "plain", "Output format: plain or json")
	)
	if err := parse(fs, args); err != nil {
		return err
	}
	if *databaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if strings.TrimSpace(*token) == "" {
		fmt.Fprintln(stderr, "-token is required")
		return errUsage
	}
	if err := checkFormat(*format); err != nil {
		return err
	}
	presented := strings.TrimSpace(*token)
	if err := auth.ValidateTokenFormat(presented, *prefix); err != nil {
		return fmt.Errorf("token %s: %w", auth.Fingerprint(presented), err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := repository.New(ctx, *databaseURL, 2)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer repo.Close()

	calendar, err := quota.NewCalendar(os.Getenv("USAGE_TIMEZONE"))
	if err != nil {
		return err
	}

	ent, err := repo.GetEntitlementByToken(ctx, presented)
	if errors.Is(err, repository.ErrEntitlementNotFound) {
		return fmt.Errorf("no entitlement for token %s", auth.Fingerprint(presented))
	}
	if err != nil {
		return fmt.Errorf("lookup entitlement: %w", err)
	}

	out := describeEntitlement(ent, calendar.Today())
	if *format == "json" {
		return writeJSON(stdout, out)
	}
	fmt.Fprintf(stdout, "token:     %s\n", out.Fingerprint)
	fmt.Fprintf(stdout, "subject:   %s\n", out.Subject)
	fmt.Fprintf(stdout, "solution:  %s\n", out.SolutionID)
	fmt.Fprintf(stdout, "tier:      %s\n", out.Tier)
	fmt.Fprintf(stdout, "status:    %s\n", out.Status)
	fmt.Fprintf(stdout, "usage:     %s\n", formatUsage(out))
	return nil
}

// describeEntitlement reports usage as of today, applying rollover.
func describeEntitlement(ent *model.Entitlement, today string) inspectOutput {
	used := quota.Normalize(ent.Usage(), today)
	limit := quota.DailyLimit(ent.Tier)
	return inspectOutput{
		Fingerprint:    auth.Fingerprint(ent.Token),
		ID:             ent.ID,
		Subject:        ent.Subject,
		SolutionID:     ent.SolutionID,
		Tier:           string(ent.Tier),
		Status:         string(ent.Status),
		Today:          today,
		UsedToday:      used.Count,
		DailyLimit:     limit,
		RemainingToday: quota.Remaining(limit, used.Count),
		CreatedAt:      ent.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func formatUsage(out inspectOutput) string {
	if out.DailyLimit == model.Unlimited {
		return fmt.Sprintf("%d used on %s (unlimited)", out.UsedToday, out.Today)
	}
	return fmt.Sprintf("%d/%d used on %s, %d remaining", out.UsedToday, out.DailyLimit, out.Today, out.RemainingToday)
}

func checkFormat(format string) error {
	switch format {
	case "plain", "json":
		return nil
	default:
		return errors.New("invalid format; use plain or json")
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func quietLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
