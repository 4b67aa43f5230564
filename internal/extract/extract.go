package extract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/dealwatch/dealwatch/internal/fetcher"
	"github.com/dealwatch/dealwatch/internal/model"
)

// ErrorKind classifies extraction failures.
type ErrorKind int

const (
	// ErrKindUnsupportedSite means no site profile matches the URL.
	ErrKindUnsupportedSite ErrorKind = iota
	// ErrKindPriceNotFound means the price selector matched nothing.
	ErrKindPriceNotFound
	// ErrKindPriceUnparsable means the matched text is not a positive amount.
	ErrKindPriceUnparsable
)

func (k ErrorKind) String() string {
	switch k {
	case ErrKindUnsupportedSite:
		return "unsupported_site"
	case ErrKindPriceNotFound:
		return "price_not_found"
	case ErrKindPriceUnparsable:
		return "price_unparsable"
	default:
		return "unknown"
	}
}

// ExtractError is the typed failure returned by Extract and Match.
type ExtractError struct {
	Kind ErrorKind
	URL  string
	Err  error
}

func (e *ExtractError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract %s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("extract %s: %s", e.URL, e.Kind)
}

func (e *ExtractError) Unwrap() error { return e.Err }

// ErrKind extracts the ExtractError kind from an error chain.
func ErrKind(err error) (ErrorKind, bool) {
	var ee *ExtractError
	if errors.As(err, &ee) {
		return ee.Kind, true
	}
	return 0, false
}

// Extract applies a site profile to a raw page and produces a price record.
// It is a pure function of (page, profile); the caller assigns the record
// to a product.
func Extract(page *fetcher.RawPage, profile *SiteProfile) (*model.PriceRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, &ExtractError{Kind: ErrKindPriceNotFound, URL: page.URL, Err: err}
	}

	priceText := firstText(doc, profile.PriceSelector)
	if priceText == "" {
		return nil, &ExtractError{Kind: ErrKindPriceNotFound, URL: page.URL}
	}

	price, err := model.ParsePrice(priceText, profile.Currency, profile.DecimalComma)
	if err != nil {
		return nil, &ExtractError{Kind: ErrKindPriceUnparsable, URL: page.URL, Err: err}
	}

	rec := &model.PriceRecord{
		Price:      price,
		CapturedAt: page.FetchedAt,
	}
	if rec.CapturedAt.IsZero() {
		rec.CapturedAt = time.Now().UTC()
	}

	// Title and image are best effort; a profile may omit the selectors.
	if profile.TitleSelector != "" {
		rec.Title = firstText(doc, profile.TitleSelector)
	}
	if profile.ImageSelector != "" {
		rec.ImageURL = firstAttr(doc, profile.ImageSelector, "src")
	}

	return rec, nil
}

// firstText returns the trimmed text of the first selector match with
// non-empty content.
func firstText(doc *goquery.Document, selector string) string {
	var text string
	doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text = strings.TrimSpace(s.Text())
		return text == ""
	})
	return text
}

func firstAttr(doc *goquery.Document, selector, attr string) string {
	var val string
	doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		val = strings.TrimSpace(s.AttrOr(attr, ""))
		return val == ""
	})
	return val
}
