package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealwatch/dealwatch/internal/fetcher"
)

func page(body string) *fetcher.RawPage {
	return &fetcher.RawPage{
		URL:        "https://example.com/widget",
		Body:       []byte(body),
		StatusCode: 200,
		FetchedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func usdProfile() *SiteProfile {
	return &SiteProfile{
		Name:          "example",
		DomainPattern: "example.com",
		PriceSelector: ".price",
		TitleSelector: "h1",
		ImageSelector: ".gallery img",
		Currency:      "USD",
	}
}

func TestExtract_Basic(t *testing.T) {
	rec, err := Extract(page(`<html><body><span class="price">$49.99</span></body></html>`), usdProfile())
	require.NoError(t, err)

	assert.Equal(t, int64(4999), rec.Price.MinorUnits)
	assert.Equal(t, "USD", rec.Price.Currency)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), rec.CapturedAt)
}

func TestExtract_TitleAndImage(t *testing.T) {
	body := `<html><body>
		<h1>  Widget Deluxe  </h1>
		<div class="gallery"><img src="https://cdn.example.com/widget.jpg"></div>
		<span class="price">$12.00</span>
	</body></html>`

	rec, err := Extract(page(body), usdProfile())
	require.NoError(t, err)

	assert.Equal(t, "Widget Deluxe", rec.Title)
	assert.Equal(t, "https://cdn.example.com/widget.jpg", rec.ImageURL)
}

func TestExtract_FirstNonEmptyMatchWins(t *testing.T) {
	body := `<html><body>
		<span class="price"></span>
		<span class="price">$19.95</span>
		<span class="price">$99.00</span>
	</body></html>`

	rec, err := Extract(page(body), usdProfile())
	require.NoError(t, err)
	assert.Equal(t, int64(1995), rec.Price.MinorUnits)
}

func TestExtract_PriceNotFound(t *testing.T) {
	_, err := Extract(page(`<html><body><h1>Widget</h1></body></html>`), usdProfile())
	require.Error(t, err)

	kind, ok := ErrKind(err)
	require.True(t, ok)
	assert.Equal(t, ErrKindPriceNotFound, kind)
}

func TestExtract_PriceUnparsable(t *testing.T) {
	_, err := Extract(page(`<html><body><span class="price">call for price</span></body></html>`), usdProfile())
	require.Error(t, err)

	kind, ok := ErrKind(err)
	require.True(t, ok)
	assert.Equal(t, ErrKindPriceUnparsable, kind)
}

func TestExtract_DecimalCommaProfile(t *testing.T) {
	profile := &SiteProfile{
		Name:          "br",
		DomainPattern: "*.mercadolivre.com.br",
		PriceSelector: ".price",
		Currency:      "BRL",
		DecimalComma:  true,
	}

	rec, err := Extract(page(`<html><body><span class="price">R$ 1.234,56</span></body></html>`), profile)
	require.NoError(t, err)
	assert.Equal(t, int64(123456), rec.Price.MinorUnits)
	assert.Equal(t, "BRL", rec.Price.Currency)
}

func TestExtract_OptionalSelectorsOmitted(t *testing.T) {
	profile := &SiteProfile{
		Name:          "minimal",
		DomainPattern: "example.com",
		PriceSelector: ".price",
		Currency:      "USD",
	}

	rec, err := Extract(page(`<html><body><h1>Widget</h1><span class="price">$5.00</span></body></html>`), profile)
	require.NoError(t, err)
	assert.Empty(t, rec.Title)
	assert.Empty(t, rec.ImageURL)
}
