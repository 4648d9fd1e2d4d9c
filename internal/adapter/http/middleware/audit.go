package middleware

import (
	"net/http"

	"payment-tracker/internal/core/domain"
	"payment-tracker/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// AuditLog records every successful write as a structured "audit" log line.
func AuditLog(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		status := c.Writer.Status()
		if status < 200 || status >= 300 {
			return
		}
		if c.Request.Method != http.MethodPost {
			return
		}

		action, resource := mapRouteToAction(c)
		if action == "" {
			return
		}

		event := log.Info().
			Str("action", action).
			Str("resource", resource).
			Str("actor", c.GetString(CtxAddress)).
			Str("role", c.GetString(CtxRole)).
			Int("status", status).
			Str("client_ip", c.ClientIP()).
			Str("request_id", c.GetString(response.CtxRequestID))
		if id := c.Param("id"); id != "" {
			event = event.Str("transaction_id", id)
		}
		event.Msg("audit")
	}
}

func mapRouteToAction(c *gin.Context) (string, string) {
	switch c.FullPath() {
	case "/api/v1/transactions":
		return string(domain.OpInitiatePayment), "transaction"
	case "/api/v1/transactions/:id/:operation":
		op, err := domain.ParseOperation(c.Param("operation"))
		if err != nil {
			return "", ""
		}
		return string(op), "transaction"
	case "/api/v1/sync":
		return "resync", "view"
	}
	return "", ""
}
