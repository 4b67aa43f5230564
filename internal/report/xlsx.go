package report

import (
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/dealwatch/dealwatch/internal/model"
)

// ProductHistory pairs a tracked product with its captured price rows
// for export.
type ProductHistory struct {
	Product model.TrackedProduct
	Records []model.PriceRecord
}

// WriteXLSX writes one sheet per product containing its price history,
// newest rows first, plus a Summary sheet with the latest state of every
// product.
func WriteXLSX(path string, histories []ProductHistory) error {
	f := xlsx.NewFile()

	summary, err := f.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "report: add summary sheet")
	}
	addRow(summary, "URL", "Title", "Last Price", "Last Checked", "Failures")
	for _, h := range histories {
		price, checked := "", ""
		if h.Product.LastKnownPrice != nil {
			price = h.Product.LastKnownPrice.String()
		}
		if h.Product.LastCheckedAt != nil {
			checked = h.Product.LastCheckedAt.Format(time.RFC3339)
		}
		addRow(summary, h.Product.URL, h.Product.Title, price, checked,
			strconv.Itoa(h.Product.ConsecutiveFailures))
	}

	for i, h := range histories {
		sheet, err := f.AddSheet(sheetName(h.Product, i))
		if err != nil {
			return eris.Wrapf(err, "report: add sheet for %s", h.Product.URL)
		}
		addRow(sheet, "Captured At", "Price", "Currency", "Title")
		for _, rec := range h.Records {
			addRow(sheet,
				rec.CapturedAt.Format(time.RFC3339),
				rec.Price.String(),
				rec.Price.Currency,
				rec.Title)
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save %s", path)
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, cells ...string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}

// sheetName derives an xlsx-safe sheet name from the product. Excel caps
// sheet names at 31 characters and forbids a handful of punctuation.
func sheetName(p model.TrackedProduct, idx int) string {
	name := p.Title
	if name == "" {
		name = p.URL
	}
	clean := make([]rune, 0, len(name))
	for _, r := range name {
		switch r {
		case '\\', '/', '?', '*', '[', ']', ':':
			clean = append(clean, '_')
		default:
			clean = append(clean, r)
		}
	}
	name = string(clean)
	// Leave room for a numeric suffix to keep names unique.
	if len(name) > 27 {
		name = name[:27]
	}
	return name + " " + strconv.Itoa(idx+1)
}
