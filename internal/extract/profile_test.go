package extract

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSiteProfile_MatchesHost(t *testing.T) {
	tests := []struct {
		pattern string
		host    string
		want    bool
	}{
		{"example.com", "example.com", true},
		{"example.com", "www.example.com", true},
		{"example.com", "shop.example.com", false},
		{"*.mercadolivre.com.br", "produto.mercadolivre.com.br", true},
		{"*.mercadolivre.com.br", "mercadolivre.com.br", false},
		{"example.com", "EXAMPLE.COM", true},
		{"example.com", "example.org", false},
	}

	for _, tt := range tests {
		p := &SiteProfile{DomainPattern: tt.pattern}
		assert.Equal(t, tt.want, p.MatchesHost(tt.host), "%s vs %s", tt.pattern, tt.host)
	}
}

func TestRegistry_Match(t *testing.T) {
	reg, err := NewRegistry(DefaultProfiles())
	require.NoError(t, err)

	profile, err := reg.Match("https://example.com/product/123")
	require.NoError(t, err)
	assert.Equal(t, "example", profile.Name)

	profile, err = reg.Match("https://produto.mercadolivre.com.br/MLB-123")
	require.NoError(t, err)
	assert.Equal(t, "mercadolivre", profile.Name)
}

func TestRegistry_MatchUnsupported(t *testing.T) {
	reg, err := NewRegistry(DefaultProfiles())
	require.NoError(t, err)

	_, err = reg.Match("https://unknown-shop.net/item")
	require.Error(t, err)

	kind, ok := ErrKind(err)
	require.True(t, ok)
	assert.Equal(t, ErrKindUnsupportedSite, kind)
}

func TestRegistry_MatchBadURL(t *testing.T) {
	reg, err := NewRegistry(DefaultProfiles())
	require.NoError(t, err)

	_, err = reg.Match("not a url")
	require.Error(t, err)

	kind, ok := ErrKind(err)
	require.True(t, ok)
	assert.Equal(t, ErrKindUnsupportedSite, kind)
}

func TestRegistry_FirstMatchWins(t *testing.T) {
	reg, err := NewRegistry([]SiteProfile{
		{Name: "specific", DomainPattern: "shop.example.com", PriceSelector: ".a"},
		{Name: "broad", DomainPattern: "*.example.com", PriceSelector: ".b"},
	})
	require.NoError(t, err)

	profile, err := reg.Match("https://shop.example.com/item")
	require.NoError(t, err)
	assert.Equal(t, "specific", profile.Name)
}

func TestNewRegistry_Validation(t *testing.T) {
	_, err := NewRegistry([]SiteProfile{{Name: "x", PriceSelector: ".p"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "domain_pattern")

	_, err = NewRegistry([]SiteProfile{{Name: "x", DomainPattern: "example.com"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "price_selector")

	_, err = NewRegistry([]SiteProfile{
		{Name: "a", DomainPattern: "example.com", PriceSelector: ".p"},
		{Name: "b", DomainPattern: "Example.com", PriceSelector: ".q"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "share domain_pattern")
}

func TestLoadProfiles_FromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	data := `profiles:
  - name: bookshop
    domain_pattern: books.example.com
    price_selector: ".offer .amount"
    title_selector: "h1.book-title"
    currency: EUR
  - name: br-shop
    domain_pattern: "*.loja.com.br"
    price_selector: ".preco"
    currency: BRL
    decimal_comma: true
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	reg, err := LoadProfiles(path)
	require.NoError(t, err)
	require.Len(t, reg.Profiles(), 2)

	profile, err := reg.Match("https://books.example.com/some-book")
	require.NoError(t, err)
	assert.Equal(t, "bookshop", profile.Name)
	assert.Equal(t, "EUR", profile.Currency)

	profile, err = reg.Match("https://sub.loja.com.br/item")
	require.NoError(t, err)
	assert.True(t, profile.DecimalComma)
}

func TestLoadProfiles_MissingFileUsesDefaults(t *testing.T) {
	reg, err := LoadProfiles(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	_, err = reg.Match("https://example.com/item")
	assert.NoError(t, err)
}

func TestLoadProfiles_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte("profiles: []\n"), 0o644))

	_, err := LoadProfiles(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no profiles")
}
