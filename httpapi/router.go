package httpapi

import (
	"errors"
	"net/http"

	"github.com/clinicore/clinicauth"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// NewRouter builds the gin engine serving the auth surface.
func NewRouter(engine *clinicauth.Engine) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestContext())

	h := &handlers{engine: engine}

	auth := r.Group("/auth")
	{
		auth.POST("/login", h.login)
		auth.POST("/otp/generate", h.generateOTP)
		auth.POST("/otp/resend", h.resendOTP)
		auth.POST("/otp/verify", h.verifyOTPAndLogin)
		auth.POST("/refresh", h.refresh)
		auth.POST("/logout", h.logout)
		auth.POST("/password/forgot", h.forgotPassword)
		auth.POST("/password/reset", h.resetPassword)
		auth.POST("/password/change", h.changePassword)
	}

	return r
}

// requestContext threads the caller IP and a correlation id through
// context values; nothing request-scoped is stashed on shared state.
func requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := clinicauth.WithClientIP(c.Request.Context(), c.ClientIP())
		ctx = clinicauth.WithRequestID(ctx, uuid.NewString())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// statusFromError maps the engine's error taxonomy to HTTP statuses.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, clinicauth.ErrInvalidCredentials),
		errors.Is(err, clinicauth.ErrTokenInvalid),
		errors.Is(err, clinicauth.ErrTokenExpired),
		errors.Is(err, clinicauth.ErrTokenRevoked):
		return http.StatusUnauthorized
	case errors.Is(err, clinicauth.ErrAccountLocked),
		errors.Is(err, clinicauth.ErrPasswordResetNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, clinicauth.ErrUserNotFound),
		errors.Is(err, clinicauth.ErrSessionNotFound),
		errors.Is(err, clinicauth.ErrOTPNotFound):
		return http.StatusNotFound
	case errors.Is(err, clinicauth.ErrOTPExpired):
		return http.StatusGone
	case errors.Is(err, clinicauth.ErrOTPInvalid),
		errors.Is(err, clinicauth.ErrPasswordPolicy),
		errors.Is(err, clinicauth.ErrPasswordReuse),
		errors.Is(err, clinicauth.ErrMobileBindingDisabled):
		return http.StatusBadRequest
	case errors.Is(err, clinicauth.ErrOTPRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func abortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFromError(err), gin.H{"error": err.Error()})
}
