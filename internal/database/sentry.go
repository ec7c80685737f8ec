package database

import (
	"context"
	"errors"
	"net"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
)

type sentrySpanKey struct{}

// PostgresSentryTracer records one Sentry span per query. Spans are only
// sampled when the caller's context already carries a transaction.
type PostgresSentryTracer struct{}

var _ pgx.QueryTracer = (*PostgresSentryTracer)(nil)

func (t *PostgresSentryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	span := sentry.StartSpan(ctx, "db.sql.query")
	span.Description = data.SQL
	span.SetData("db.system", "postgresql")
	return context.WithValue(span.Context(), sentrySpanKey{}, span)
}

func (t *PostgresSentryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	span, ok := ctx.Value(sentrySpanKey{}).(*sentry.Span)
	if !ok {
		return
	}
	defer span.Finish()

	span.SetData("db.rows_affected", data.CommandTag.RowsAffected())
	if data.Err != nil && !errors.Is(data.Err, pgx.ErrNoRows) {
		span.Status = sentry.SpanStatusInternalError
		captureFromContext(ctx, data.Err)
		return
	}
	span.Status = sentry.SpanStatusOK
}

// RedisSentryHook wraps every Redis command in a span and reports command
// failures. redis.Nil is a miss, not a failure.
type RedisSentryHook struct{}

var _ redis.Hook = (*RedisSentryHook)(nil)

func (h *RedisSentryHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if err != nil {
			captureFromContext(ctx, err)
		}
		return conn, err
	}
}

func (h *RedisSentryHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		span := sentry.StartSpan(ctx, "db.redis")
		span.Description = cmd.Name()
		defer span.Finish()

		err := next(span.Context(), cmd)
		finishRedisSpan(ctx, span, err)
		return err
	}
}

func (h *RedisSentryHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		span := sentry.StartSpan(ctx, "db.redis.pipeline")
		span.SetData("db.redis.commands", len(cmds))
		defer span.Finish()

		err := next(span.Context(), cmds)
		finishRedisSpan(ctx, span, err)
		return err
	}
}

func finishRedisSpan(ctx context.Context, span *sentry.Span, err error) {
	if err != nil && !errors.Is(err, redis.Nil) {
		span.Status = sentry.SpanStatusInternalError
		captureFromContext(ctx, err)
		return
	}
	span.Status = sentry.SpanStatusOK
}

func captureFromContext(ctx context.Context, err error) {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.CaptureException(err)
}
