package main

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"github.com/irfndi/gatekeeper/internal/database"
	"github.com/irfndi/gatekeeper/internal/events"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func tailEvents(cCtx *cli.Context) error {
	cfg, err := loadConfig(cCtx)
	if err != nil {
		return err
	}
	if !cfg.Redis.Enabled {
		return cli.Exit("redis.enabled is false: the server publishes no events", 1)
	}

	client, err := database.NewRedisConnection(cfg.Redis, zap.NewNop())
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(cCtx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var types []events.Type
	for _, name := range cCtx.StringSlice("type") {
		t := events.Type(name)
		if events.ChannelFor(t) == "" {
			return cli.Exit(fmt.Sprintf("unknown event type %q", name), 1)
		}
		types = append(types, t)
	}

	limit := cCtx.Int("count")
	out := cCtx.App.Writer
	var mu sync.Mutex
	seen := 0

	printEvent := func(_ context.Context, env events.Envelope) error {
		mu.Lock()
		defer mu.Unlock()
		if limit > 0 && seen >= limit {
			return nil
		}
		fmt.Fprintf(out, "%s %-16s user=%s %s\n",
			env.Timestamp.Format("15:04:05"), env.Type, env.UserID, string(env.Data))
		seen++
		if limit > 0 && seen == limit {
			stop()
		}
		return nil
	}

	sub := events.NewSubscriber(client.Client, zap.NewNop())
	defer sub.Close()
	if len(types) == 0 {
		sub.HandleDefault(printEvent)
	}
	for _, t := range types {
		sub.HandleType(t, printEvent)
	}

	if err := sub.PSubscribe(ctx, events.ChannelAll); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	mu.Lock()
	fmt.Fprintf(out, "Listening on %s\n", events.ChannelAll)
	mu.Unlock()
	<-ctx.Done()
	return nil
}
