package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy defines the CORS headers to emit for matching origins.
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

type corsRules struct {
	origins     []string
	wildcard    bool
	methods     string
	headers     string
	credentials bool
	maxAge      string
}

func (p CORSPolicy) compile() corsRules {
	rules := corsRules{
		methods:     strings.Join(normalizeList(p.AllowedMethods), ", "),
		headers:     strings.Join(normalizeList(p.AllowedHeaders), ", "),
		credentials: p.AllowCredentials,
	}
	for _, o := range normalizeList(p.AllowedOrigins) {
		if o == "*" {
			rules.wildcard = true
			continue
		}
		rules.origins = append(rules.origins, o)
	}
	if secs := int(p.MaxAge.Seconds()); secs > 0 {
		rules.maxAge = strconv.Itoa(secs)
	}
	return rules
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin.
// A wildcard policy echoes the origin when credentials are allowed, since
// browsers reject "*" with credentials.
func (c corsRules) allowOrigin(origin string) (string, bool) {
	for _, o := range c.origins {
		if strings.EqualFold(o, origin) {
			return origin, true
		}
	}
	if c.wildcard {
		if c.credentials {
			return origin, true
		}
		return "*", true
	}
	return "", false
}

// WithCORS adds CORS handling. With no allowed origins it is a no-op.
func WithCORS(p CORSPolicy) Middleware {
	if len(normalizeList(p.AllowedOrigins)) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	rules := p.compile()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allow, ok := rules.allowOrigin(origin)
			if origin == "" || !ok {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allow)
			h.Add("Vary", "Origin")
			if rules.credentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method != http.MethodOptions || r.Header.Get("Access-Control-Request-Method") == "" {
				next.ServeHTTP(w, r)
				return
			}

			// Preflight.
			if rules.methods != "" {
				h.Set("Access-Control-Allow-Methods", rules.methods)
			}
			if rules.headers != "" {
				h.Set("Access-Control-Allow-Headers", rules.headers)
			}
			if rules.maxAge != "" {
				h.Set("Access-Control-Max-Age", rules.maxAge)
			}
			h.Add("Vary", "Access-Control-Request-Method")
			h.Add("Vary", "Access-Control-Request-Headers")
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

func normalizeList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
