package sheets

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2/jwt"
)

// Scope grants read and write access to spreadsheets.
const Scope = "https://www.googleapis.com/auth/spreadsheets"

// DefaultTokenURL is the Google OAuth2 token endpoint.
const DefaultTokenURL = "https://oauth2.googleapis.com/token"

// Credentials is a Google service account key file.
type Credentials struct {
	Type                    string `json:"type"`
	ProjectID               string `json:"project_id"`
	PrivateKeyID            string `json:"private_key_id"`
	PrivateKey              string `json:"private_key"`
	ClientEmail             string `json:"client_email"`
	ClientID                string `json:"client_id"`
	AuthURI                 string `json:"auth_uri"`
	TokenURI                string `json:"token_uri"`
	AuthProviderX509CertURL string `json:"auth_provider_x509_cert_url"`
	ClientX509CertURL       string `json:"client_x509_cert_url"`
	UniverseDomain          string `json:"universe_domain"`
}

// ParseCredentials decodes a service account key. Only JSON is accepted and
// the fields needed to sign tokens must be present.
func ParseCredentials(data []byte) (*Credentials, error) {
	var c Credentials
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredentials, err)
	}
	if c.Type != "service_account" {
		return nil, fmt.Errorf("%w: type %q is not service_account", ErrCredentials, c.Type)
	}
	var missing []string
	if c.ClientEmail == "" {
		missing = append(missing, "client_email")
	}
	if c.PrivateKey == "" {
		missing = append(missing, "private_key")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrCredentials, strings.Join(missing, ", "))
	}
	return &c, nil
}

// ReadCredentialsFile reads and parses a service account key file.
func ReadCredentialsFile(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	return ParseCredentials(data)
}

// JWTConfig returns the two-legged OAuth2 configuration for c.
func (c *Credentials) JWTConfig() *jwt.Config {
	tokenURL := c.TokenURI
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	return &jwt.Config{
		Email:        c.ClientEmail,
		PrivateKey:   []byte(c.PrivateKey),
		PrivateKeyID: c.PrivateKeyID,
		Scopes:       []string{Scope},
		TokenURL:     tokenURL,
	}
}
