// Package export renders an extracted product as a downloadable file.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dukerupert/shopgrab/internal/model"
)

const bom = "\uFEFF"

var csvHeader = []string{
	"Title",
	"Price",
	"Compare at price",
	"Currency",
	"Vendor",
	"Product type",
	"Available",
	"Handle",
	"Description",
	"Short description",
	"Meta description",
	"Main image",
	"OG image",
	"Images",
	"Image count",
	"Tags",
	"Variant count",
	"Variants",
	"Options",
	"Source URL",
}

type record struct {
	Title            string          `json:"title"`
	Price            *float64        `json:"price"`
	Currency         *string         `json:"currency"`
	Vendor           string          `json:"vendor"`
	Description      string          `json:"description"`
	MainImage        string          `json:"mainImage"`
	Images           []string        `json:"images"`
	Tags             []string        `json:"tags"`
	MetaDescription  string          `json:"metaDescription"`
	OGImage          string          `json:"ogImage"`
	ShortDescription string          `json:"shortDescription"`
	Variants         []model.Variant `json:"variants"`
}

// JSON writes the export subset of p as indented JSON.
func JSON(w io.Writer, p *model.ProductData) error {
	rec := record{
		Title:            p.Title,
		Price:            p.Price,
		Currency:         p.Currency,
		Vendor:           p.Vendor,
		Description:      p.Description,
		MainImage:        p.MainImage,
		Images:           nonNil(p.Images),
		Tags:             nonNil(p.Tags),
		MetaDescription:  p.MetaDescription,
		OGImage:          p.OGImage,
		ShortDescription: p.ShortDescription,
		Variants:         nonNil(p.Variants),
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		return fmt.Errorf("encode export json: %w", err)
	}
	return nil
}

// CSV writes a header row and one data row, prefixed with a UTF-8 BOM so
// spreadsheet tools detect the encoding.
func CSV(w io.Writer, p *model.ProductData) error {
	if _, err := io.WriteString(w, bom); err != nil {
		return fmt.Errorf("write bom: %w", err)
	}
	cw := csv.NewWriter(w)
	cw.Write(csvHeader)
	cw.Write(csvRow(p))
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write export csv: %w", err)
	}
	return nil
}

func csvRow(p *model.ProductData) []string {
	return []string{
		p.Title,
		formatPrice(p.Price),
		formatPrice(p.CompareAtPrice),
		deref(p.Currency),
		p.Vendor,
		p.ProductType,
		yesNo(p.Available),
		p.Handle,
		p.Description,
		p.ShortDescription,
		p.MetaDescription,
		p.MainImage,
		p.OGImage,
		strings.Join(p.Images, " | "),
		strconv.Itoa(len(p.Images)),
		strings.Join(p.Tags, "; "),
		strconv.Itoa(len(p.Variants)),
		variantDetails(p.Variants),
		optionSummary(p.Options),
		p.URL,
	}
}

// variantDetails formats variants as "[S] Price: 19.99, SKU: TEE-S, Stock: Yes | ...".
func variantDetails(variants []model.Variant) string {
	parts := make([]string, 0, len(variants))
	for _, v := range variants {
		stock := "No"
		if v.Available != nil && *v.Available {
			stock = "Yes"
		}
		parts = append(parts, fmt.Sprintf("[%s] Price: %s, SKU: %s, Stock: %s",
			orNA(v.Title), orNA(v.Price), orNA(v.SKU), stock))
	}
	return strings.Join(parts, " | ")
}

// optionSummary formats options as "Size: S, M / Color: Red".
func optionSummary(options []model.Option) string {
	parts := make([]string, 0, len(options))
	for _, o := range options {
		parts = append(parts, o.Name+": "+strings.Join(o.Values, ", "))
	}
	return strings.Join(parts, " / ")
}

// Filename returns a download name built from title with every character
// outside [A-Za-z0-9] replaced by an underscore.
func Filename(title, ext string) string {
	if title == "" {
		return "product." + ext
	}
	var b strings.Builder
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String() + "." + ext
}

func formatPrice(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
