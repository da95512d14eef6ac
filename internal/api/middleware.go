package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
	"yieldbot/internal/auth"
	"yieldbot/internal/chat"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

const WalletHeader = "X-Wallet-Address"

type callerKey struct{}

// IdentityMiddleware resolves the caller from a bearer token, then the wallet
// header, and otherwise lets the request through as anonymous. A bearer token
// that is present but invalid is rejected.
func IdentityMiddleware(signingKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var caller chat.Caller

			userID, err := auth.UserIDFromRequest(r, signingKey)
			switch {
			case err == nil:
				caller = chat.UserCaller(userID)
				r = r.WithContext(auth.ContextWithUserID(r.Context(), userID))
			case errors.Is(err, auth.ErrMissingToken):
				if wallet := strings.TrimSpace(r.Header.Get(WalletHeader)); wallet != "" {
					caller = chat.WalletCaller(wallet)
				}
			default:
				respondError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), callerKey{}, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func callerFromContext(ctx context.Context) chat.Caller {
	caller, _ := ctx.Value(callerKey{}).(chat.Caller)
	return caller
}

// RequestLogger writes one structured access log line per request.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		logrus.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Info("HTTP request")
	})
}
