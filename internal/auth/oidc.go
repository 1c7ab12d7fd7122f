package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// ErrMissingClaim is returned when a verified ID token lacks a claim a user
// record needs.
var ErrMissingClaim = errors.New("id token missing required claim")

// ProviderOptions names the issuer and the client registered with it.
type ProviderOptions struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Claims are the ID token fields a galeria user is built from.
type Claims struct {
	Issuer  string `json:"iss"`
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
}

// Provider runs the authorization code flow against one issuer.
type Provider struct {
	verifier *gooidc.IDTokenVerifier
	oauth2   oauth2.Config
}

// NewProvider performs OIDC discovery against opts.Issuer.
func NewProvider(ctx context.Context, opts ProviderOptions) (*Provider, error) {
	discovered, err := gooidc.NewProvider(ctx, opts.Issuer)
	if err != nil {
		return nil, fmt.Errorf("discover oidc issuer %s: %w", opts.Issuer, err)
	}
	return &Provider{
		verifier: discovered.Verifier(&gooidc.Config{ClientID: opts.ClientID}),
		oauth2: oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			RedirectURL:  opts.RedirectURL,
			Endpoint:     discovered.Endpoint(),
			Scopes:       []string{gooidc.ScopeOpenID, "profile", "email"},
		},
	}, nil
}

// AuthCodeURL is where the browser goes to log in. The challenge is the
// S256 digest of the verifier later passed to Exchange.
func (p *Provider) AuthCodeURL(state, challenge string) string {
	return p.oauth2.AuthCodeURL(state,
		oauth2.AccessTypeOnline,
		oauth2.SetAuthURLParam("code_challenge", challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// Exchange redeems the code, verifies the ID token and returns its claims.
// Subject and email are required since the email doubles as the username.
func (p *Provider) Exchange(ctx context.Context, code, verifier string) (Claims, error) {
	token, err := p.oauth2.Exchange(ctx, code, oauth2.SetAuthURLParam("code_verifier", verifier))
	if err != nil {
		return Claims{}, fmt.Errorf("token exchange: %w", err)
	}
	raw, ok := token.Extra("id_token").(string)
	if !ok {
		return Claims{}, errors.New("token response has no id_token")
	}
	idToken, err := p.verifier.Verify(ctx, raw)
	if err != nil {
		return Claims{}, fmt.Errorf("verify id_token: %w", err)
	}

	var c Claims
	if err := idToken.Claims(&c); err != nil {
		return Claims{}, fmt.Errorf("decode claims: %w", err)
	}
	c.Issuer = idToken.Issuer
	c.Subject = idToken.Subject
	if c.Email == "" {
		return Claims{}, fmt.Errorf("%w: email", ErrMissingClaim)
	}
	return c, nil
}

// GenerateState returns a random value for the state parameter.
func GenerateState() (string, error) {
	return randomString(32)
}

// GeneratePKCE returns a PKCE verifier and its S256 challenge.
func GeneratePKCE() (verifier, challenge string, err error) {
	verifier, err = randomString(64)
	if err != nil {
		return "", "", err
	}
	return verifier, pkceChallenge(verifier), nil
}

func pkceChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func randomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
