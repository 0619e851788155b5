// Defines rate limit tiers and routing rules.

package ratelimit

import (
	"strings"
	"time"
)

// Scope defines how rate limit keys are determined.
type Scope int

const (
	// ScopeIP uses client IP address as the rate limit key.
	ScopeIP Scope = iota
	// ScopeUser uses authenticated user ID as the rate limit key.
	ScopeUser
)

// Tier defines a rate limit tier with its limiter and scope.
type Tier struct {
	Name    string
	Limiter *Limiter
	Scope   Scope
}

// Config holds rate limiters for different tiers.
type Config struct {
	Auth       Tier // OAuth login and callback, per IP
	Upload     Tier // upload batches, per user
	Write      Tier // other mutations, per user
	ReadAuth   Tier // authenticated reads, per user
	ReadUnauth Tier // unauthenticated reads (public files, blobs), per IP
}

// DefaultConfig creates a Config with the default rate limits:
//   - Auth: 10 req/min, IP scope
//   - Upload: 30 req/min, User scope
//   - Write: 120 req/min, User scope
//   - Read (auth): 6,000 req/min, User scope
//   - Read (unauth): 1,200 req/min, IP scope.
func DefaultConfig() *Config {
	return &Config{
		Auth: Tier{
			Name:    "auth",
			Limiter: NewLimiter(10, time.Minute, 10),
			Scope:   ScopeIP,
		},
		Upload: Tier{
			Name:    "upload",
			Limiter: NewLimiter(30, time.Minute, 10),
			Scope:   ScopeUser,
		},
		Write: Tier{
			Name:    "write",
			Limiter: NewLimiter(120, time.Minute, 30),
			Scope:   ScopeUser,
		},
		ReadAuth: Tier{
			Name:    "read",
			Limiter: NewLimiter(6000, time.Minute, 1000),
			Scope:   ScopeUser,
		},
		ReadUnauth: Tier{
			Name:    "read",
			Limiter: NewLimiter(1200, time.Minute, 200),
			Scope:   ScopeIP,
		},
	}
}

// MatchUnauth returns the tier for unauthenticated requests.
// Returns nil for paths that should not be rate limited.
func (c *Config) MatchUnauth(method, path string) *Tier {
	if path == "/api/health" {
		return nil
	}
	if isAuthEndpoint(method, path) {
		return &c.Auth
	}
	if method == "GET" {
		return &c.ReadUnauth
	}
	return nil
}

// MatchAuth returns the tier for authenticated requests.
// Returns nil for paths that should not be rate limited.
func (c *Config) MatchAuth(method, path string) *Tier {
	if path == "/api/health" {
		return nil
	}
	if method == "POST" && path == "/api/upload" {
		return &c.Upload
	}
	if method == "POST" || method == "PUT" || method == "DELETE" {
		return &c.Write
	}
	if method == "GET" {
		return &c.ReadAuth
	}
	return nil
}

// Close stops all limiter cleanup goroutines.
func (c *Config) Close() {
	c.Auth.Limiter.Close()
	c.Upload.Limiter.Close()
	c.Write.Limiter.Close()
	c.ReadAuth.Limiter.Close()
	c.ReadUnauth.Limiter.Close()
}

// isAuthEndpoint checks if the path is an authentication endpoint.
func isAuthEndpoint(method, path string) bool {
	return method == "GET" && strings.HasPrefix(path, "/api/auth/oauth/")
}
