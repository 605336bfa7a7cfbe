package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/dukerupert/shopgrab/internal/model"
)

// productEnvelope is the body of a storefront's <product-url>.json resource.
type productEnvelope struct {
	Product json.RawMessage `json:"product"`
}

type shopifyProduct struct {
	ID          int64            `json:"id"`
	Title       string           `json:"title"`
	Handle      string           `json:"handle"`
	BodyHTML    string           `json:"body_html"`
	Description string           `json:"description"`
	Vendor      string           `json:"vendor"`
	ProductType string           `json:"product_type"`
	Available   bool             `json:"available"`
	Tags        tagList          `json:"tags"`
	Variants    []shopifyVariant `json:"variants"`
	Options     []model.Option   `json:"options"`
	Images      []shopifyImage   `json:"images"`
	Image       *shopifyImage    `json:"image"`
}

type shopifyVariant struct {
	ID             int64       `json:"id"`
	Title          string      `json:"title"`
	Price          looseString `json:"price"`
	CompareAtPrice looseString `json:"compare_at_price"`
	SKU            string      `json:"sku"`
	Available      *bool       `json:"available"`
	Option1        *string     `json:"option1"`
	Option2        *string     `json:"option2"`
	Option3        *string     `json:"option3"`
}

type shopifyImage struct {
	Src string `json:"src"`
}

// tagList accepts both the array form and the comma separated string form
// storefronts use for tags.
type tagList []string

func (t *tagList) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*t = nil
		return nil
	}
	if len(b) > 0 && b[0] == '[' {
		var list []string
		if err := json.Unmarshal(b, &list); err != nil {
			return err
		}
		*t = list
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("tags: %w", err)
	}
	var list []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			list = append(list, part)
		}
	}
	*t = list
	return nil
}

// looseString decodes a JSON string or number. Null decodes as empty.
type looseString string

func (s *looseString) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("price: %w", err)
	}
	*s = looseString(n.String())
	return nil
}

func parsePrice(s looseString) *float64 {
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(string(s), 64)
	if err != nil {
		return nil
	}
	return &f
}

// normalize merges the page metadata with the product resource.
func normalize(u *url.URL, page pageMeta, raw json.RawMessage) (*model.ProductData, error) {
	var p shopifyProduct
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode product: %w", err)
	}

	d := &model.ProductData{
		URL:              u.String(),
		ShopDomain:       u.Hostname(),
		Handle:           p.Handle,
		Title:            p.Title,
		Description:      firstNonEmpty(page.ShortDescription, p.BodyHTML, p.Description),
		ShortDescription: page.ShortDescription,
		Vendor:           p.Vendor,
		ProductType:      p.ProductType,
		Available:        p.Available,
		OGImage:          page.OGImage,
		Images:           make([]string, 0, len(p.Images)),
		Variants:         make([]model.Variant, 0, len(p.Variants)),
		VariantCount:     len(p.Variants),
		Options:          p.Options,
		Tags:             p.Tags,
		MetaTitle:        p.Title,
		MetaDescription:  page.MetaDescription,
	}

	if len(p.Variants) > 0 {
		first := p.Variants[0]
		d.Price = parsePrice(first.Price)
		d.CompareAtPrice = parsePrice(first.CompareAtPrice)
		if d.Price != nil {
			usd := "USD"
			d.Currency = &usd
		}
	}

	for _, img := range p.Images {
		d.Images = append(d.Images, img.Src)
	}
	var imageSrc string
	if p.Image != nil {
		imageSrc = p.Image.Src
	}
	var firstImage string
	if len(d.Images) > 0 {
		firstImage = d.Images[0]
	}
	d.MainImage = firstNonEmpty(page.OGImage, firstImage, imageSrc)

	for _, v := range p.Variants {
		mv := model.Variant{
			ID:        v.ID,
			Title:     v.Title,
			Price:     string(v.Price),
			SKU:       v.SKU,
			Available: v.Available,
			Option1:   v.Option1,
			Option2:   v.Option2,
			Option3:   v.Option3,
		}
		if v.CompareAtPrice != "" {
			compare := string(v.CompareAtPrice)
			mv.CompareAtPrice = &compare
		}
		d.Variants = append(d.Variants, mv)
	}

	rawData, err := mergeRaw(raw, page)
	if err != nil {
		return nil, err
	}
	d.RawData = rawData
	return d, nil
}

// mergeRaw returns the product object with the page metadata added.
func mergeRaw(raw json.RawMessage, page pageMeta) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode raw product: %w", err)
	}
	for k, v := range map[string]string{
		"ogImage":          page.OGImage,
		"metaDescription":  page.MetaDescription,
		"shortDescription": page.ShortDescription,
	} {
		b, _ := json.Marshal(v)
		fields[k] = b
	}
	out, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode raw product: %w", err)
	}
	return out, nil
}
