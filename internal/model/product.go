package model

import (
	"encoding/json"
	"time"
)

// ProductData is the normalized record produced by one extraction.
type ProductData struct {
	URL              string          `json:"url"`
	ShopDomain       string          `json:"shop_domain"`
	Handle           string          `json:"handle"`
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	ShortDescription string          `json:"short_description"`
	Vendor           string          `json:"vendor"`
	ProductType      string          `json:"product_type"`
	Price            *float64        `json:"price"`
	CompareAtPrice   *float64        `json:"compare_at_price"`
	Currency         *string         `json:"currency"`
	Available        bool            `json:"available"`
	MainImage        string          `json:"main_image"`
	OGImage          string          `json:"og_image"`
	Images           []string        `json:"images"`
	Variants         []Variant       `json:"variants"`
	VariantCount     int             `json:"variant_count"`
	Options          []Option        `json:"options"`
	Tags             []string        `json:"tags"`
	MetaTitle        string          `json:"meta_title"`
	MetaDescription  string          `json:"meta_description"`
	RawData          json.RawMessage `json:"raw_data"`
}

type Variant struct {
	ID             int64   `json:"id"`
	Title          string  `json:"title"`
	Price          string  `json:"price"`
	CompareAtPrice *string `json:"compare_at_price"`
	SKU            string  `json:"sku"`
	Available      *bool   `json:"available,omitempty"`
	Option1        *string `json:"option1"`
	Option2        *string `json:"option2"`
	Option3        *string `json:"option3"`
}

type Option struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// ExtractedProduct is the persisted ProductData of a completed job.
type ExtractedProduct struct {
	ID        int64     `json:"id"`
	JobID     string    `json:"job_id"`
	CreatedAt time.Time `json:"created_at"`
	ProductData
}
