package gcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2/google"
)

// OAuth scopes used by the verification flow.
const (
	ScopeSpreadsheets = "https://www.googleapis.com/auth/spreadsheets"
	ScopeDrive        = "https://www.googleapis.com/auth/drive"
)

type serviceAccount struct {
	Type        string `json:"type"`
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
}

// ValidateServiceAccount checks that raw is a usable service-account key.
func ValidateServiceAccount(raw string) error {
	if raw == "" {
		return errors.New("service account json is empty")
	}
	var sa serviceAccount
	if err := json.Unmarshal([]byte(raw), &sa); err != nil {
		return fmt.Errorf("parse service account json: %w", err)
	}
	if sa.ClientEmail == "" || sa.PrivateKey == "" {
		return errors.New("service account json missing client_email or private_key")
	}
	return nil
}

// HTTPClient returns a client that signs requests with the service account's JWT grant.
func HTTPClient(ctx context.Context, raw string, scopes ...string) (*http.Client, error) {
	if err := ValidateServiceAccount(raw); err != nil {
		return nil, err
	}
	jwtCfg, err := google.JWTConfigFromJSON([]byte(raw), scopes...)
	if err != nil {
		return nil, fmt.Errorf("build jwt config: %w", err)
	}
	return jwtCfg.Client(ctx), nil
}
