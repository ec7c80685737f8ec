package middleware

import (
	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
)

// Telemetry attaches a Sentry hub to every request.
func Telemetry() gin.HandlerFunc {
	return sentrygin.New(sentrygin.Options{
		Repanic: true,
	})
}

// TagUser copies the authenticated user id onto the request's Sentry scope.
// It must run after Auth.
func TagUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if hub := sentrygin.GetHubFromContext(c); hub != nil {
			if id := UserID(c); id != "" {
				hub.Scope().SetUser(sentry.User{ID: id})
			}
			hub.Scope().SetTag("route", c.FullPath())
		}
		c.Next()
	}
}

// RecordError reports err on the request's hub and marks the transaction
// failed.
func RecordError(c *gin.Context, err error) {
	hub := sentrygin.GetHubFromContext(c)
	if hub == nil {
		return
	}
	hub.CaptureException(err)
	if tx := sentry.TransactionFromContext(c.Request.Context()); tx != nil {
		tx.Status = sentry.SpanStatusInternalError
	}
}
