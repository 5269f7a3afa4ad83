package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// discoveryPath is the well-known suffix defined by OpenID Connect Discovery.
const discoveryPath = "/.well-known/openid-configuration"

// DiscoveryDocument is the subset of an OpenID Connect discovery response
// the engine consumes. Keycloak, Auth0, Okta and Azure AD all publish one
// under the issuer's well-known path.
type DiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
	JWKSURI               string `json:"jwks_uri"`
}

var discoveryClient = &http.Client{Timeout: 10 * time.Second}

// DiscoverIssuer fetches the issuer's discovery document. The document is
// rejected unless it names the issuer it was fetched from (trailing slashes
// ignored) and carries a jwks_uri.
func DiscoverIssuer(ctx context.Context, issuerURL string) (*DiscoveryDocument, error) {
	issuer := strings.TrimRight(issuerURL, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, issuer+discoveryPath, nil)
	if err != nil {
		return nil, fmt.Errorf("building discovery request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := discoveryClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching discovery document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery endpoint returned status %d", resp.StatusCode)
	}

	var doc DiscoveryDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding discovery document: %w", err)
	}

	if strings.TrimRight(doc.Issuer, "/") != issuer {
		return nil, fmt.Errorf("discovery document names issuer %q, fetched from %q", doc.Issuer, issuerURL)
	}
	if doc.JWKSURI == "" {
		return nil, fmt.Errorf("discovery document missing jwks_uri")
	}
	return &doc, nil
}
