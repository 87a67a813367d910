package web

import (
	"net/http"

	"github.com/JonMunkholm/curvefit/internal/core"
	"github.com/JonMunkholm/curvefit/internal/logging"
)

// requestMetadata makes the caller's address and agent available to the
// edit history, and tags the request logger with the session being used.
func requestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := core.ContextWithClientIP(r.Context(), r.RemoteAddr) // set by TrustedRealIP
		ctx = core.ContextWithUserAgent(ctx, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withSession adds the {id} route parameter to the logging context.
func withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.WithSession(r.Context(), sessionID(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
