// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/bridgemcp/bridge/oauthex"
)

// ErrInvalidToken is returned by a Verifier when the presented token is
// not acceptable (malformed, revoked, unknown).
var ErrInvalidToken = errors.New("invalid token")

// ErrOAuth is returned by a Verifier when token verification itself
// failed for a reason outside the token's validity (e.g. the
// introspection endpoint returned an OAuth error response).
var ErrOAuth = errors.New("oauth error")

// TokenInfo is what a Verifier returns for an accepted token.
type TokenInfo struct {
	Scopes     []string
	Expiration time.Time
	UserID     string
}

// Verifier validates a bearer token extracted from an incoming request.
type Verifier func(ctx context.Context, token string, req *http.Request) (*TokenInfo, error)

// RequireBearerTokenOptions configures RequireBearerToken.
type RequireBearerTokenOptions struct {
	// Scopes are the scopes the caller's token must carry. If empty, any
	// valid token is accepted.
	Scopes []string
	// ResourceMetadataURL, if set, is advertised in the WWW-Authenticate
	// challenge on 401/403 responses so clients can discover how to get
	// a token (RFC 9728 §5.1).
	ResourceMetadataURL string
}

// RequireBearerToken returns HTTP middleware that validates the
// Authorization header with verifier before calling next, per the MCP
// authorization spec's Security Best Practices §2.2 (token passthrough
// is never performed: the incoming client token is never forwarded to a
// downstream request made by next).
func RequireBearerToken(verifier Verifier, opts *RequireBearerTokenOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, msg, code := verify(r, verifier, opts)
			if code != 0 {
				if code == http.StatusUnauthorized || code == http.StatusForbidden {
					w.Header().Set("WWW-Authenticate", challengeHeader(opts))
				}
				http.Error(w, msg, code)
				return
			}
			ctx := context.WithValue(r.Context(), tokenInfoKey{}, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type tokenInfoKey struct{}

// TokenInfoFromContext returns the TokenInfo RequireBearerToken attached
// to the request context, if any.
func TokenInfoFromContext(ctx context.Context) (*TokenInfo, bool) {
	info, ok := ctx.Value(tokenInfoKey{}).(*TokenInfo)
	return info, ok
}

func challengeHeader(opts *RequireBearerTokenOptions) string {
	if opts == nil || opts.ResourceMetadataURL == "" {
		return "Bearer"
	}
	return "Bearer resource_metadata=" + opts.ResourceMetadataURL
}

// verify extracts and checks the bearer token from req, returning the
// resolved TokenInfo on success, or an (message, HTTP status) pair the
// caller should respond with on failure. A zero status means success.
func verify(req *http.Request, verifier Verifier, opts *RequireBearerTokenOptions) (*TokenInfo, string, int) {
	authz := req.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(strings.ToLower(authz), strings.ToLower(prefix)) {
		return nil, "no bearer token", http.StatusUnauthorized
	}
	token := authz[len(prefix):]

	info, err := verifier(req.Context(), token, req)
	switch {
	case errors.Is(err, ErrOAuth):
		return nil, "oauth error", http.StatusBadRequest
	case errors.Is(err, ErrInvalidToken):
		return nil, "invalid token", http.StatusUnauthorized
	case err != nil:
		return nil, "invalid token", http.StatusUnauthorized
	}

	if info.Expiration.IsZero() {
		return nil, "token missing expiration", http.StatusUnauthorized
	}
	if info.Expiration.Before(time.Now()) {
		return nil, "token expired", http.StatusUnauthorized
	}

	if opts != nil {
		for _, want := range opts.Scopes {
			if !slices.Contains(info.Scopes, want) {
				return nil, "insufficient scope", http.StatusForbidden
			}
		}
	}

	return info, "", 0
}

// ProtectedResourceMetadataHandler serves metadata as the OAuth 2.0
// Protected Resource Metadata document (RFC 9728), the static discovery
// document strict MCP clients fetch before attempting to open a
// session (§4.7.2).
func ProtectedResourceMetadataHandler(metadata *oauthex.ProtectedResourceMetadata) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(metadata)
	})
}
