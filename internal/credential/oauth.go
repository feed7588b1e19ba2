package credential

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"

	"didlink/internal/autherr"
	"didlink/internal/method/domain"
	"didlink/internal/oauthstate"
	"didlink/internal/security"
)

const (
	defaultOAuthTimeout = 5 * time.Second
	maxProfileBytes     = 1 << 20
)

// Profile is the normalized provider profile.
type Profile struct {
	ID            string `json:"id"`
	Email         string `json:"email,omitempty"`
	Name          string `json:"name,omitempty"`
	EmailVerified bool   `json:"email_verified"`
}

// TokenBundle is the sealed material of an OAuth method. It is the only place the raw subject id lives.
type TokenBundle struct {
	Provider     string    `json:"provider"`
	Profile      Profile   `json:"profile"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// StateIssuer issues and consumes redirect states.
type StateIssuer interface {
	Issue(ctx context.Context, s oauthstate.State) (string, error)
	Consume(ctx context.Context, token, did, provider string, purpose oauthstate.Purpose) (*oauthstate.State, error)
}

// OAuthStrategy verifies an authorization code for one provider.
type OAuthStrategy struct {
	cfg        *ProviderConfig
	oauth      *oauth2.Config
	states     StateIssuer
	httpClient *http.Client
	timeout    time.Duration
}

// NewOAuthStrategy returns the strategy for cfg. timeout bounds the token exchange and the
// profile fetch together; zero uses 5s.
func NewOAuthStrategy(cfg *ProviderConfig, states StateIssuer, timeout time.Duration) *OAuthStrategy {
	if timeout <= 0 {
		timeout = defaultOAuthTimeout
	}
	return &OAuthStrategy{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     oauth2.Endpoint{AuthURL: cfg.AuthURL, TokenURL: cfg.TokenURL},
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
		},
		states:     states,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		timeout:    timeout,
	}
}

// Provider returns the provider name.
func (s *OAuthStrategy) Provider() string { return s.cfg.Name }

// Enroll issues a link state for the pending method and returns the provider redirect.
func (s *OAuthStrategy) Enroll(ctx context.Context, in EnrollInput) (*Enrollment, error) {
	url, state, err := s.Begin(ctx, oauthstate.State{DID: in.DID, Purpose: oauthstate.PurposeLink, MethodID: in.MethodID})
	if err != nil {
		return nil, err
	}
	return &Enrollment{AuthorizationURL: url, State: state}, nil
}

// Begin issues a state for st and returns the authorization URL carrying it.
func (s *OAuthStrategy) Begin(ctx context.Context, st oauthstate.State) (string, string, error) {
	st.Provider = s.cfg.Name
	state, err := s.states.Issue(ctx, st)
	if err != nil {
		return "", "", err
	}
	return s.oauth.AuthCodeURL(state), state, nil
}

// Verify consumes the state, exchanges the code and fetches the profile. At login the profile
// must hash to the method's stored public_key_hash.
func (s *OAuthStrategy) Verify(ctx context.Context, in VerifyInput) (*Result, error) {
	m := in.Method
	if in.Credential.AuthCode == "" {
		return nil, autherr.Validation("authorization code is required")
	}
	purpose := oauthstate.PurposeSession
	if in.Purpose == PurposeSetup {
		purpose = oauthstate.PurposeLink
	}
	st, err := s.states.Consume(ctx, in.Credential.State, m.DID, s.cfg.Name, purpose)
	if err != nil {
		return nil, err
	}
	if purpose == oauthstate.PurposeLink && st.MethodID != m.ID {
		return nil, autherr.Unauthorized("invalid or expired state")
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	callCtx = context.WithValue(callCtx, oauth2.HTTPClient, s.httpClient)

	tok, err := s.oauth.Exchange(callCtx, in.Credential.AuthCode)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode >= 400 && re.Response.StatusCode < 500 {
			return nil, autherr.Unauthorized("authorization code rejected")
		}
		return nil, autherr.Upstream("identity provider unavailable", err)
	}
	profile, err := s.fetchProfile(callCtx, tok)
	if err != nil {
		return nil, err
	}

	keyHash := security.HashParts(s.cfg.Name, profile.ID, m.DID)
	if in.Purpose == PurposeSession &&
		subtle.ConstantTimeCompare([]byte(keyHash), []byte(m.PublicKeyHash)) != 1 {
		return nil, autherr.Unauthorized("account does not match the linked identity")
	}

	material, err := json.Marshal(TokenBundle{
		Provider:     s.cfg.Name,
		Profile:      *profile,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	})
	if err != nil {
		return nil, autherr.Internal("verification failed", err)
	}
	return &Result{
		Attestation: Attestation{
			DID:          m.DID,
			MethodID:     m.ID,
			MethodType:   domain.OAuthMethodType(s.cfg.Name),
			VerifiedAt:   in.Now,
			EvidenceHash: security.HashParts("oauth", m.ID, keyHash, st.Nonce),
		},
		PublicKeyHash: keyHash,
		Material:      material,
	}, nil
}

func (s *OAuthStrategy) fetchProfile(ctx context.Context, tok *oauth2.Token) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.ProfileURL, nil)
	if err != nil {
		return nil, autherr.Internal("verification failed", err)
	}
	req.Header.Set("Accept", "application/json")
	tok.SetAuthHeader(req)
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, autherr.Upstream("identity provider unavailable", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, autherr.Unauthorized("authorization code rejected")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, autherr.Upstream("identity provider unavailable", fmt.Errorf("profile status %d", resp.StatusCode))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if err != nil {
		return nil, autherr.Upstream("identity provider unavailable", err)
	}
	profile, err := NormalizeProfile(body, s.cfg.ProfileFields)
	if err != nil {
		return nil, autherr.Upstream("identity provider unavailable", err)
	}
	return profile, nil
}

// NormalizeProfile maps a provider profile document to Profile using fields.
// Numeric ids and string booleans are accepted.
func NormalizeProfile(body []byte, fields ProfileFields) (*Profile, error) {
	dec := json.NewDecoder(strings.NewReader(string(body)))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	fields.applyDefaults()
	p := &Profile{
		ID:            stringField(doc[fields.ID]),
		Email:         stringField(doc[fields.Email]),
		Name:          stringField(doc[fields.Name]),
		EmailVerified: boolField(doc[fields.EmailVerified]),
	}
	if p.ID == "" {
		return nil, errors.New("profile has no id")
	}
	return p, nil
}

func stringField(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	}
	return ""
}

func boolField(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(t)
		return b
	}
	return false
}
