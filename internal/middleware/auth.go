package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/scidatahub/containerdb/internal/config"
	"github.com/scidatahub/containerdb/internal/modules/model"
	"github.com/scidatahub/containerdb/internal/modules/repo"
	"github.com/scidatahub/containerdb/internal/modules/serializer"
	"github.com/scidatahub/containerdb/internal/pkg/apikey"
)

const userContextKey = "user"

// UserAuth authenticates requests with bearer API keys. The key is never
// stored server side; the user row is found by the HMAC of the secret.
// The authenticated user lands in the gin context and on the current
// span for telemetry filtering.
func UserAuth(cfg *config.Config, users repo.UserRepo) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		ctx, authSpan := otel.Tracer("middleware").Start(ctx, "user_auth",
			trace.WithAttributes(attribute.String("middleware", "user_auth")))

		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			authSpan.SetAttributes(attribute.Bool("authenticated", false))
			authSpan.End()
			c.AbortWithStatusJSON(http.StatusUnauthorized, serializer.AuthErr("Unauthorized"))
			return
		}
		raw := strings.TrimPrefix(auth, "Bearer ")

		secret, ok := apikey.ParseToken(raw, cfg.Auth.TokenPrefix)
		if !ok {
			authSpan.SetAttributes(attribute.Bool("authenticated", false))
			authSpan.End()
			c.AbortWithStatusJSON(http.StatusUnauthorized, serializer.AuthErr("Unauthorized"))
			return
		}

		user, err := users.GetByAPIKeyHMAC(ctx, apikey.HMAC256Hex(cfg.Auth.SecretPepper, secret))
		if err != nil {
			authSpan.RecordError(err)
			authSpan.End()
			c.AbortWithStatusJSON(http.StatusInternalServerError, serializer.DBErr("", err))
			return
		}
		if user == nil {
			authSpan.SetAttributes(attribute.Bool("authenticated", false))
			authSpan.End()
			c.AbortWithStatusJSON(http.StatusUnauthorized, serializer.AuthErr("Unauthorized"))
			return
		}

		rootSpan := trace.SpanFromContext(c.Request.Context())
		if rootSpan.SpanContext().IsValid() {
			rootSpan.SetAttributes(attribute.String("user_id", user.ID.String()))
		}
		authSpan.SetAttributes(
			attribute.String("user_id", user.ID.String()),
			attribute.Bool("authenticated", true),
		)
		authSpan.End()

		c.Set(userContextKey, user)
		c.Next()
	}
}

// CurrentUser returns the authenticated user of the request, nil when the
// route is served without authentication.
func CurrentUser(c *gin.Context) *model.User {
	v, ok := c.Get(userContextKey)
	if !ok {
		return nil
	}
	user, _ := v.(*model.User)
	return user
}
