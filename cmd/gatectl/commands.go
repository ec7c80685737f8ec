package main

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/irfndi/gatekeeper/internal/authority"
	"github.com/irfndi/gatekeeper/internal/config"
	"github.com/irfndi/gatekeeper/internal/database"
	"github.com/irfndi/gatekeeper/internal/models"
	"github.com/irfndi/gatekeeper/internal/ratelimit"
	"github.com/irfndi/gatekeeper/internal/uniqueness"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

func loadConfig(cCtx *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadFile(cCtx.String("config"))
	if err != nil {
		return nil, cli.Exit(err.Error(), 1)
	}
	return cfg, nil
}

func health(cCtx *cli.Context) error {
	out := cCtx.App.Writer
	baseURL := cCtx.String("api-url")

	resp, err := NewAPIClient(baseURL, "").Health(cCtx.Context)
	if err != nil {
		fmt.Fprintf(out, "Could not reach API at %s: %v\n", baseURL, err)
		return cli.Exit("Backend API unreachable", 1)
	}

	fmt.Fprintf(out, "Status:  %s\n", resp.Status)
	fmt.Fprintf(out, "Version: %s\n", resp.Version)
	fmt.Fprintf(out, "Uptime:  %s\n", resp.Uptime)

	names := make([]string, 0, len(resp.Services))
	for name := range resp.Services {
		names = append(names, name)
	}
	slices.Sort(names)
	fmt.Fprintln(out, "\nServices:")
	for _, name := range names {
		fmt.Fprintf(out, "  - %s: %s\n", name, resp.Services[name])
	}

	if len(resp.Live) > 0 {
		fmt.Fprintln(out, "\nLive:")
		for _, name := range []string{"forms", "verifications", "cache_hits", "cache_misses", "cache_hit_rate"} {
			if n, ok := resp.Live[name]; ok {
				fmt.Fprintf(out, "  - %s: %d\n", name, n)
			}
		}
	}

	if resp.Status == "unhealthy" {
		return cli.Exit("server is unhealthy", 1)
	}
	return nil
}

// quota reads counters from the store the server writes to, so it works
// while the server is down.
func quota(cCtx *cli.Context) error {
	userID := strings.TrimSpace(cCtx.Args().First())
	if userID == "" {
		return cli.Exit("usage: gatectl quota <user-id>", 1)
	}
	cfg, err := loadConfig(cCtx)
	if err != nil {
		return err
	}

	kinds := []models.ActionKind{models.ActionBlock, models.ActionReport}
	if k := cCtx.String("kind"); k != "" {
		kinds = []models.ActionKind{models.ActionKind(k)}
	}

	store, closeStore, err := openLimitStore(cCtx.Context, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	loc, err := cfg.Limits.Location()
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	limiter := ratelimit.New(store, map[models.ActionKind]int{
		models.ActionBlock:  cfg.Limits.Block,
		models.ActionReport: cfg.Limits.Report,
	}, ratelimit.WithLocation(loc))

	out := cCtx.App.Writer
	fmt.Fprintf(out, "Quota for %s on %s (%s store)\n", userID, limiter.Today(), cfg.Limits.Store)
	for _, kind := range kinds {
		if !limiter.Known(kind) {
			return cli.Exit(fmt.Sprintf("unknown action kind %q", kind), 1)
		}
		q := limiter.Quota(cCtx.Context, userID, kind)
		state := "ok"
		if q.LimitReached {
			state = "limit reached"
		}
		fmt.Fprintf(out, "  %-7s %d/%d remaining (%s)\n", q.Kind, q.Remaining, q.DailyLimit, state)
	}
	return nil
}

func openLimitStore(ctx context.Context, cfg *config.Config) (ratelimit.Store, func(), error) {
	switch cfg.Limits.Store {
	case "memory":
		return nil, nil, cli.Exit("limits.store is memory: counters only exist inside the server process", 1)
	case "redis":
		client, err := database.NewRedisConnection(cfg.Redis, zap.NewNop())
		if err != nil {
			return nil, nil, cli.Exit(err.Error(), 1)
		}
		return ratelimit.NewRedisStore(client.Client, cfg.Limits.RedisTTL), client.Close, nil
	default:
		db, err := database.NewDatabaseConnectionWithContext(ctx, &cfg.Database)
		if err != nil {
			return nil, nil, cli.Exit(err.Error(), 1)
		}
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, nil, cli.Exit(err.Error(), 1)
		}
		closeDB := func() { _ = db.Close() }
		return ratelimit.NewSQLStore(db, database.DetectDBType(cfg.Database.Driver)), closeDB, nil
	}
}

func checkField(field uniqueness.Field) cli.ActionFunc {
	return func(cCtx *cli.Context) error {
		value := cCtx.Args().First()
		if value == "" {
			return cli.Exit(fmt.Sprintf("usage: gatectl check %s <value>", field), 1)
		}
		cfg, err := loadConfig(cCtx)
		if err != nil {
			return err
		}

		client := authority.NewClient(cfg.Authority.BaseURL,
			authority.WithTimeout(cfg.Authority.Timeout),
			authority.WithAPIKey(cfg.Authority.APIKey),
		)
		dir := uniqueness.UsernameLookup(client)
		if field == uniqueness.FieldPhone {
			dir = uniqueness.PhoneLookup(client)
		}
		checker := uniqueness.NewChecker(field, dir,
			uniqueness.WithMinLength(uniqueness.FieldUsername, cfg.Checker.UsernameMinLength),
			uniqueness.WithMinLength(uniqueness.FieldPhone, cfg.Checker.PhoneMinLength),
		)
		defer checker.Close()

		ctx := authority.WithToken(cCtx.Context, cCtx.String("token"))
		res := checker.Check(ctx, value, false)

		out := cCtx.App.Writer
		fmt.Fprintf(out, "%s %q: %s\n", field, res.CheckedValue, res.Status)
		if res.Message != "" {
			fmt.Fprintf(out, "  %s\n", res.Message)
		}
		if res.Status != models.CheckStatusAvailable {
			return cli.Exit("", 2)
		}
		return nil
	}
}

func showConfig(cCtx *cli.Context) error {
	cfg, err := loadConfig(cCtx)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(cCtx.App.Writer)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}
