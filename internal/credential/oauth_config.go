package credential

import (
	"fmt"
	"os"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

var providerName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,31}$`)

// ProfileFields maps normalized profile fields to provider JSON keys.
type ProfileFields struct {
	ID            string `yaml:"id"`
	Email         string `yaml:"email"`
	Name          string `yaml:"name"`
	EmailVerified string `yaml:"email_verified"`
}

// ProviderConfig is one entry of the provider catalog.
type ProviderConfig struct {
	Name          string        `yaml:"-"`
	ClientID      string        `yaml:"client_id"`
	ClientSecret  string        `yaml:"client_secret"`
	AuthURL       string        `yaml:"auth_url"`
	TokenURL      string        `yaml:"token_url"`
	ProfileURL    string        `yaml:"profile_url"`
	RedirectURL   string        `yaml:"redirect_url"`
	Scopes        []string      `yaml:"scopes"`
	ProfileFields ProfileFields `yaml:"profile_fields"`
}

type catalog struct {
	Providers map[string]*ProviderConfig `yaml:"providers"`
}

// LoadProviders reads the YAML provider catalog at path. ${VAR} references are expanded from
// the environment before parsing so client secrets stay out of the file.
func LoadProviders(path string) ([]*ProviderConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("credential: read providers: %w", err)
	}
	return ParseProviders(raw)
}

// ParseProviders parses a provider catalog. Providers are returned in name order.
func ParseProviders(raw []byte) ([]*ProviderConfig, error) {
	var c catalog
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &c); err != nil {
		return nil, fmt.Errorf("credential: parse providers: %w", err)
	}
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*ProviderConfig, 0, len(names))
	for _, name := range names {
		p := c.Providers[name]
		if p == nil {
			return nil, fmt.Errorf("credential: provider %q is empty", name)
		}
		p.Name = name
		p.ProfileFields.applyDefaults()
		if err := p.validate(); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *ProfileFields) applyDefaults() {
	if f.ID == "" {
		f.ID = "id"
	}
	if f.Email == "" {
		f.Email = "email"
	}
	if f.Name == "" {
		f.Name = "name"
	}
	if f.EmailVerified == "" {
		f.EmailVerified = "email_verified"
	}
}

func (p *ProviderConfig) validate() error {
	if !providerName.MatchString(p.Name) {
		return fmt.Errorf("credential: invalid provider name %q", p.Name)
	}
	missing := ""
	switch {
	case p.ClientID == "":
		missing = "client_id"
	case p.ClientSecret == "":
		missing = "client_secret"
	case p.AuthURL == "":
		missing = "auth_url"
	case p.TokenURL == "":
		missing = "token_url"
	case p.ProfileURL == "":
		missing = "profile_url"
	case p.RedirectURL == "":
		missing = "redirect_url"
	}
	if missing != "" {
		return fmt.Errorf("credential: provider %q: %s is required", p.Name, missing)
	}
	return nil
}
