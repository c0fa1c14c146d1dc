package app

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/seaway-erp/seaway-erp/internal/shared"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger *slog.Logger
	Config *Config
}

// Identity headers set by the auth gateway in front of this service.
// Authentication happens there; we only consume the resolved principal.
const (
	HeaderPrincipalID   = "X-Principal-Id"
	HeaderPrincipalRole = "X-Principal-Role"
	HeaderMerchantID    = "X-Merchant-Id"
)

// PrincipalMiddleware resolves the gateway identity headers into a Principal
// stored on the request context. Requests without an identity pass through
// with no principal; handlers decide whether that is acceptable.
func PrincipalMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get(HeaderPrincipalID)), 10, 64)
		if err != nil || id <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		principal := &shared.Principal{
			ID:   id,
			Role: shared.NormaliseRole(r.Header.Get(HeaderPrincipalRole)),
		}
		if merchantID, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get(HeaderMerchantID)), 10, 64); err == nil && merchantID > 0 {
			principal.MerchantID = merchantID
		}
		ctx := shared.ContextWithPrincipal(r.Context(), principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// MiddlewareStack installs the middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'self'",
		SSLRedirect:           cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
	})

	timeout := 30 * time.Second
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}

	return []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					cfg.Logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		middleware.Compress(5),
		httprate.Limit(60, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
		PrincipalMiddleware,
	}
}
