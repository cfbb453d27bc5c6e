// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analytics

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/CohortIQ/pkg/secrets"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// SubjectKey is the gin context key holding the authenticated subject.
const SubjectKey = "auth_subject"

const requestIDKey = "request_id"

// getOrCreateRequestID returns the caller's X-Request-ID or a new one,
// echoing it on the response.
func getOrCreateRequestID(c *gin.Context) string {
	if id := c.GetString(requestIDKey); id != "" {
		return id
	}
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDKey, requestID)
	c.Header("X-Request-ID", requestID)
	return requestID
}

// RequestID assigns every request an ID before the handlers run.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		getOrCreateRequestID(c)
		c.Next()
	}
}

// =============================================================================
// Auth
// =============================================================================

var errNoToken = errors.New("no bearer token")

// ValidateToken parses an HS256 token signed with secret.
func ValidateToken(tokenString string, secret []byte) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("token is not valid")
	}
	return claims, nil
}

// IssueToken signs an HS256 token for subject. Used by the CLI to mint
// tokens for API clients.
func IssueToken(subject string, ttl time.Duration, secret []byte) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    "cohortiq",
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func bearerToken(c *gin.Context) (string, error) {
	if h := c.GetHeader("Authorization"); h != "" {
		token, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || token == "" {
			return "", errNoToken
		}
		return token, nil
	}
	// Browsers cannot set headers on websocket upgrades.
	if t := c.Query("access_token"); t != "" {
		return t, nil
	}
	return "", errNoToken
}

// AuthRequired rejects requests without a valid bearer token. An empty
// secret disables the check. The key is only unsealed while a token is
// being verified.
func AuthRequired(secret *secrets.Secret) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret.IsZero() {
			c.Next()
			return
		}
		token, err := bearerToken(c)
		if err == nil {
			var claims *jwt.RegisteredClaims
			err = secret.Use(func(key []byte) error {
				var verr error
				claims, verr = ValidateToken(token, key)
				return verr
			})
			if err == nil {
				c.Set(SubjectKey, claims.Subject)
				c.Next()
				return
			}
		}
		abortError(c, http.StatusUnauthorized, CodeUnauthorized, "unauthorized: "+err.Error())
	}
}

// =============================================================================
// Rate limiting
// =============================================================================

// clientIdleTTL is how long a client's limiter survives without traffic.
const clientIdleTTL = 10 * time.Minute

type clientLimiter struct {
	limiter *rate.Limiter
	seen    time.Time
}

// clientLimiters holds one token bucket per client key.
type clientLimiters struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	clients   map[string]*clientLimiter
	lastSweep time.Time
}

func newClientLimiters(rps float64, burst int) *clientLimiters {
	return &clientLimiters{
		limit:     rate.Limit(rps),
		burst:     burst,
		clients:   make(map[string]*clientLimiter),
		lastSweep: time.Now(),
	}
}

func (l *clientLimiters) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= clientIdleTTL {
		for k, cl := range l.clients {
			if now.Sub(cl.seen) >= clientIdleTTL {
				delete(l.clients, k)
			}
		}
		l.lastSweep = now
	}

	cl, ok := l.clients[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = cl
	}
	cl.seen = now
	return cl.limiter.AllowN(now, 1)
}

func (l *clientLimiters) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// rateKey identifies the client: the token subject when auth ran,
// otherwise the client IP.
func rateKey(c *gin.Context) string {
	if sub := c.GetString(SubjectKey); sub != "" {
		return "sub:" + sub
	}
	return "ip:" + c.ClientIP()
}

// RateLimit admits rps requests per second with the given burst per
// client. rps <= 0 disables limiting. Mount it after AuthRequired so
// authenticated clients are keyed by subject.
func RateLimit(rps float64, burst int) gin.HandlerFunc {
	if rps <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	if burst < 1 {
		burst = 1
	}
	limiters := newClientLimiters(rps, burst)
	return func(c *gin.Context) {
		if !limiters.allow(rateKey(c), time.Now()) {
			c.Header("Retry-After", "1")
			abortError(c, http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded")
			return
		}
		c.Next()
	}
}
