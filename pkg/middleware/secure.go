package middleware

import (
	"net/http"

	"github.com/unrolled/secure"
)

// SecureConfig tunes SecureHeaders.
type SecureConfig struct {
	// Development disables HSTS and host checks.
	Development bool
	// AllowedHosts restricts the Host header when non-empty.
	AllowedHosts []string
}

// SecureHeaders sets security response headers suited to a JSON API.
func SecureHeaders(cfg SecureConfig) func(http.Handler) http.Handler {
	s := secure.New(secure.Options{
		AllowedHosts:          cfg.AllowedHosts,
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		STSSeconds:            31536000,
		STSIncludeSubdomains:  true,
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:         cfg.Development,
	})
	return s.Handler
}
