// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package auth

import (
	"encoding/json"
	"net/http"

	"github.com/bridgemcp/bridge/oauthex"
)

// MetadataDocuments builds the static OAuth discovery documents the
// bridge must serve at baseURL even when authentication is disabled, so
// strict MCP clients' validator succeeds before they will open an SSE
// session (§4.7.2).
type MetadataDocuments struct {
	AuthServer        oauthex.AuthServerMeta
	ProtectedResource oauthex.ProtectedResourceMetadata
}

// NewMetadataDocuments builds the documents for baseURL, the absolute
// externally-reachable URL of this bridge instance (see the
// --advertise-url decision in DESIGN.md).
func NewMetadataDocuments(baseURL string) MetadataDocuments {
	return MetadataDocuments{
		AuthServer: oauthex.AuthServerMeta{
			Issuer:                            baseURL,
			AuthorizationEndpoint:             baseURL + "/no-auth-required",
			TokenEndpoint:                     baseURL + "/no-auth-required",
			RegistrationEndpoint:              baseURL + "/register",
			ResponseTypesSupported:            []string{"code"},
			GrantTypesSupported:               []string{"authorization_code"},
			CodeChallengeMethodsSupported:     []string{"S256"},
			TokenEndpointAuthMethodsSupported: []string{"none"},
		},
		ProtectedResource: oauthex.ProtectedResourceMetadata{
			Resource:             baseURL,
			AuthorizationServers: []string{baseURL},
			BearerMethodsSupported: []string{"header"},
		},
	}
}

// AuthorizationServerHandler serves GET /.well-known/oauth-authorization-server.
func (m MetadataDocuments) AuthorizationServerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, m.AuthServer)
	}
}

// ProtectedResourceHandler serves GET /.well-known/oauth-protected-resource.
func (m MetadataDocuments) ProtectedResourceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, m.ProtectedResource)
	}
}

// RegisterHandler serves POST /register (and its alias
// /no-registration-required): a dummy OAuth dynamic client registration
// response carrying at minimum client_id and redirect_uris (§4.7.2).
func RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, oauthex.DynamicClientRegistration{
			ClientID:     "bridge-no-registration-required",
			RedirectURIs: []string{"urn:ietf:wg:oauth:2.0:oob"},
		})
	}
}

// NoAuthRequiredHandler serves GET/POST /no-auth-required: a placeholder
// authorize/token endpoint that always reports no authentication is
// required (§4.7.2).
func NoAuthRequiredHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"error": "no_authentication_required"})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
