// Package render maps a bill onto the fixed invoice layout and paints that
// layout onto a raster surface.
package render

import (
	"fmt"
	"time"

	"billdesk/backend/internal/calculator"
	"billdesk/backend/internal/domain"
)

// Surface geometry in CSS pixels (96 dpi). Every block has a fixed height so
// the document height depends on the row count alone. An A4 page at this
// width is 1123px tall; up to twelve rows fit on it.
const (
	Width           = 794
	Margin          = 24
	HeaderHeight    = 216
	TableHeadHeight = 56
	RowHeight       = 48
	TotalHeight     = 48
	FooterHeight    = 170
)

// OnePageRows is the largest row count whose document fits one A4 page.
const OnePageRows = 12

const (
	fewItemsThreshold = 5
	fewItemsFiller    = 8
	manyItemsFiller   = 3
)

type Header struct {
	NameEnglish     string `json:"nameEnglish"`
	NameArabic      string `json:"nameArabic"`
	TaglineEnglish  string `json:"taglineEnglish"`
	TaglineArabic   string `json:"taglineArabic"`
	LocationEnglish string `json:"locationEnglish"`
	LocationArabic  string `json:"locationArabic"`
	Mobile          string `json:"mobile"`
	MobileArabic    string `json:"mobileArabic"`
	InvoiceNumber   string `json:"invoiceNumber"`
	Date            string `json:"date"`
	LongDate        string `json:"longDate"`
	CustomerName    string `json:"customerName"`
}

// Row is one table line. Filler rows are blank and keep the table at a
// minimum visual height.
type Row struct {
	Index       int    `json:"index"`
	Description string `json:"description"`
	Unit        string `json:"unit"`
	Kg          string `json:"kg"`
	UnitPrice   string `json:"unitPrice"`
	Price       string `json:"price"`
	Filler      bool   `json:"filler"`
}

type Footer struct {
	AddressEnglish string `json:"addressEnglish"`
	AddressArabic  string `json:"addressArabic"`
	Email          string `json:"email"`
}

type Document struct {
	Header   Header `json:"header"`
	Rows     []Row  `json:"rows"`
	Total    string `json:"total"`
	Currency string `json:"currency"`
	Footer   Footer `json:"footer"`
}

func (d Document) Width() int {
	return Width
}

func (d Document) Height() int {
	return 2*Margin + HeaderHeight + TableHeadHeight + len(d.Rows)*RowHeight + TotalHeight + FooterHeight
}

// ItemRows returns the non-filler rows.
func (d Document) ItemRows() []Row {
	out := make([]Row, 0, len(d.Rows))
	for _, r := range d.Rows {
		if !r.Filler {
			out = append(out, r)
		}
	}
	return out
}

func FillerRows(itemCount int) int {
	if itemCount < fewItemsThreshold {
		return fewItemsFiller
	}
	return manyItemsFiller
}

// Render builds the document for bill. The total is recomputed from the items;
// an unsaved bill (zero Date) is dated now.
func Render(bill domain.Bill, profile Profile) Document {
	date := bill.Date
	if date.IsZero() {
		date = time.Now()
	}

	number := bill.InvoiceNumber
	if number == "" {
		number = "100"
	}

	doc := Document{
		Header: Header{
			NameEnglish:     profile.NameEnglish,
			NameArabic:      profile.NameArabic,
			TaglineEnglish:  profile.TaglineEnglish,
			TaglineArabic:   profile.TaglineArabic,
			LocationEnglish: profile.LocationEnglish,
			LocationArabic:  profile.LocationArabic,
			Mobile:          profile.Mobile,
			MobileArabic:    profile.MobileArabic,
			InvoiceNumber:   number,
			Date:            ShortDate(date),
			LongDate:        LongDate(date),
			CustomerName:    bill.CustomerName,
		},
		Total:    calculator.Total(bill.Items).Format(),
		Currency: profile.Currency,
		Footer: Footer{
			AddressEnglish: profile.AddressEnglish,
			AddressArabic:  profile.AddressArabic,
			Email:          profile.Email,
		},
	}

	filler := FillerRows(len(bill.Items))
	doc.Rows = make([]Row, 0, len(bill.Items)+filler)
	for i, item := range bill.Items {
		price := item.Price.Format()
		doc.Rows = append(doc.Rows, Row{
			Index:       i + 1,
			Description: item.Description,
			Unit:        labelOrDash(item.Unit),
			Kg:          labelOrDash(item.Kg),
			UnitPrice:   price,
			Price:       price,
		})
	}
	for range filler {
		doc.Rows = append(doc.Rows, Row{Filler: true})
	}
	return doc
}

// ShortDate formats t as d/m/yyyy without zero padding.
func ShortDate(t time.Time) string {
	return fmt.Sprintf("%d/%d/%d", t.Day(), int(t.Month()), t.Year())
}

// LongDate formats t as "January 2, 2006".
func LongDate(t time.Time) string {
	return t.Format("January 2, 2006")
}

func labelOrDash(label *string) string {
	if label == nil || *label == "" {
		return "-"
	}
	return *label
}
