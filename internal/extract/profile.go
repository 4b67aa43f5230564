// Package extract turns raw product pages into price records using
// per-retailer site profiles.
package extract

import (
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// SiteProfile describes how to extract price, title, and image from one
// retailer's markup. Adding retailer support is a profile-table change,
// not a code change.
type SiteProfile struct {
	Name          string `yaml:"name"`
	DomainPattern string `yaml:"domain_pattern"`
	PriceSelector string `yaml:"price_selector"`
	TitleSelector string `yaml:"title_selector,omitempty"`
	ImageSelector string `yaml:"image_selector,omitempty"`
	Currency      string `yaml:"currency,omitempty"`
	// DecimalComma selects the "1.234,56" number convention.
	DecimalComma bool `yaml:"decimal_comma,omitempty"`
}

// MatchesHost reports whether the profile's domain pattern matches a
// hostname. Patterns are globs over the hostname ("*.example.com") and a
// bare domain also matches its www. prefix.
func (p *SiteProfile) MatchesHost(host string) bool {
	host = strings.ToLower(host)
	pattern := strings.ToLower(p.DomainPattern)
	if ok, _ := path.Match(pattern, host); ok {
		return true
	}
	return strings.TrimPrefix(host, "www.") == pattern
}

// Registry holds the ordered site profile table. The first matching
// profile wins; the loader rejects duplicate patterns so that a URL maps
// to exactly one profile.
type Registry struct {
	profiles []SiteProfile
}

// NewRegistry validates the profiles and builds a registry.
func NewRegistry(profiles []SiteProfile) (*Registry, error) {
	seen := make(map[string]string, len(profiles))
	for _, p := range profiles {
		if p.DomainPattern == "" {
			return nil, eris.Errorf("profiles: %q has no domain_pattern", p.Name)
		}
		if p.PriceSelector == "" {
			return nil, eris.Errorf("profiles: %q has no price_selector", p.Name)
		}
		pattern := strings.ToLower(p.DomainPattern)
		if prev, dup := seen[pattern]; dup {
			return nil, eris.Errorf("profiles: %q and %q share domain_pattern %q", prev, p.Name, p.DomainPattern)
		}
		seen[pattern] = p.Name
	}
	return &Registry{profiles: profiles}, nil
}

// Match resolves the profile for a URL, or fails with UnsupportedSite.
func (r *Registry) Match(rawURL string) (*SiteProfile, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, &ExtractError{Kind: ErrKindUnsupportedSite, URL: rawURL, Err: err}
	}
	host := u.Hostname()
	for i := range r.profiles {
		if r.profiles[i].MatchesHost(host) {
			return &r.profiles[i], nil
		}
	}
	return nil, &ExtractError{Kind: ErrKindUnsupportedSite, URL: rawURL}
}

// Profiles returns the registered profiles.
func (r *Registry) Profiles() []SiteProfile {
	return r.profiles
}

type profileFile struct {
	Profiles []SiteProfile `yaml:"profiles"`
}

// LoadProfiles reads a YAML profile table from disk. A missing file falls
// back to the built-in defaults.
func LoadProfiles(filePath string) (*Registry, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return NewRegistry(DefaultProfiles())
		}
		return nil, eris.Wrapf(err, "profiles: read %s", filePath)
	}

	var f profileFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "profiles: parse %s", filePath)
	}
	if len(f.Profiles) == 0 {
		return nil, eris.Errorf("profiles: %s contains no profiles", filePath)
	}

	return NewRegistry(f.Profiles)
}

// DefaultProfiles returns the built-in profile table.
func DefaultProfiles() []SiteProfile {
	return []SiteProfile{
		{
			Name:          "example",
			DomainPattern: "example.com",
			PriceSelector: ".price",
			TitleSelector: "h1",
			Currency:      "USD",
		},
		{
			Name:          "mercadolivre",
			DomainPattern: "*.mercadolivre.com.br",
			PriceSelector: ".ui-pdp-price__second-line .andes-money-amount__fraction",
			TitleSelector: "h1.ui-pdp-title",
			ImageSelector: ".ui-pdp-gallery__figure img",
			Currency:      "BRL",
			DecimalComma:  true,
		},
	}
}
