package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/facilitydesk/taskdispatch/internal/api/shared"
	"github.com/facilitydesk/taskdispatch/internal/platform/logger"
)

// QueryTokenParam is the query parameter a websocket client may carry its
// token in.
const QueryTokenParam = "access_token"

type queryTokenKey struct{}

// AuthOption configures Authenticate.
type AuthOption func(*authOptions)

type authOptions struct {
	allowQueryToken bool
}

// AllowQueryToken lets a route accept the token captured by StripQueryToken
// when no Authorization header is present. Browsers cannot set headers on
// websocket upgrades.
func AllowQueryToken() AuthOption {
	return func(o *authOptions) { o.allowQueryToken = true }
}

// StripQueryToken removes the access_token query parameter from the request
// URL so request logging never records it. It must run before any logger.
// The value is kept in the context for routes using AllowQueryToken.
func StripQueryToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if !q.Has(QueryTokenParam) {
			next.ServeHTTP(w, r)
			return
		}

		token := q.Get(QueryTokenParam)
		q.Del(QueryTokenParam)

		u := *r.URL
		u.RawQuery = q.Encode()
		r = r.WithContext(context.WithValue(r.Context(), queryTokenKey{}, token))
		r.URL = &u
		r.RequestURI = u.RequestURI()
		next.ServeHTTP(w, r)
	})
}

// Authenticate requires a valid bearer token and records its subject as the
// request operator.
func Authenticate(verifier TokenVerifier, opts ...AuthOption) func(http.Handler) http.Handler {
	var o authOptions
	for _, opt := range opts {
		opt(&o)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r, o.allowQueryToken)
			if !ok {
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Authorization header required")
				return
			}

			claims, err := verifier.Verify(r.Context(), token)
			switch {
			case errors.Is(err, ErrExpiredToken):
				shared.RespondWithErrorAndLog(w, r, http.StatusUnauthorized, "Token expired", err)
				return
			case errors.Is(err, ErrInvalidToken):
				shared.RespondWithErrorAndLog(w, r, http.StatusUnauthorized, "Invalid token", err,
					shared.WithElevatedLogLevel())
				return
			case err != nil:
				shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Authentication error", err)
				return
			}

			ctx := shared.SetOperator(r.Context(), claims.Subject)
			ctx = logger.WithLogger(ctx, logger.FromContext(ctx).With("operator", claims.Subject))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request, allowQuery bool) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
			return "", false
		}
		return token, true
	}
	if !allowQuery {
		return "", false
	}
	token, _ := r.Context().Value(queryTokenKey{}).(string)
	return token, token != ""
}
