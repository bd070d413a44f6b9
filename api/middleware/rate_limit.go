package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/ticketpay-backend/api/responses"
	pkgerrors "github.com/angelmondragon/ticketpay-backend/pkg/errors"
	"github.com/angelmondragon/ticketpay-backend/pkg/logger"
)

type rateLimiterStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
}

// RateLimitPolicy caps requests per client address and per authenticated
// user inside a fixed window. A zero limit disables that dimension.
type RateLimitPolicy struct {
	Name    string
	Window  time.Duration
	PerIP   int
	PerUser int
}

type rateBucket struct {
	dimension string
	subject   string
	limit     int
}

func (p RateLimitPolicy) buckets(r *http.Request) []rateBucket {
	var out []rateBucket
	if p.PerIP > 0 {
		if ip := clientIP(r); ip != "" {
			out = append(out, rateBucket{dimension: "ip", subject: ip, limit: p.PerIP})
		}
	}
	if p.PerUser > 0 {
		if userID := UserIDFromContext(r.Context()); userID != "" {
			// user ids stay out of redis keys and logs
			sum := sha256.Sum256([]byte(userID))
			out = append(out, rateBucket{dimension: "user", subject: hex.EncodeToString(sum[:8]), limit: p.PerUser})
		}
	}
	return out
}

func (p RateLimitPolicy) key(b rateBucket) string {
	name := strings.ToLower(strings.TrimSpace(p.Name))
	if name == "" {
		name = "api"
	}
	return "rl:" + name + ":" + b.dimension + ":" + b.subject
}

// RateLimit enforces policy with Redis counters. Register it after Auth so
// the per-user bucket sees the caller.
func RateLimit(policy RateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil || policy.Window <= 0 || (policy.PerIP <= 0 && policy.PerUser <= 0) {
			return next
		}
		retryAfter := strconv.Itoa(int(policy.Window.Round(time.Second).Seconds()))

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			for _, b := range policy.buckets(r) {
				count, err := store.IncrWithTTL(ctx, policy.key(b), policy.Window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if count <= int64(b.limit) {
					continue
				}
				if logg != nil {
					logg.Warn(logg.WithFields(ctx, map[string]any{
						"policy":    policy.Name,
						"dimension": b.dimension,
						"subject":   b.subject,
						"attempts":  count,
						"limit":     b.limit,
					}), "rate_limit.blocked")
				}
				w.Header().Set("Retry-After", retryAfter)
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP trusts the first X-Forwarded-For hop; the API runs behind a load
// balancer that overwrites the header.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
