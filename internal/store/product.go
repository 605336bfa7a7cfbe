package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukerupert/shopgrab/internal/model"
)

type ProductStore struct {
	db *sql.DB
}

func NewProductStore(db *sql.DB) *ProductStore {
	return &ProductStore{db: db}
}

const productCols = `id, job_id, url, shop_domain, handle, title, description, short_description,
	vendor, product_type, price, compare_at_price, currency, available, main_image, og_image,
	images, variants, variant_count, options, tags, meta_title, meta_description, raw_data, created_at`

// scanProduct decodes the JSON columns once so callers get typed sub-records.
func scanProduct(scanner interface{ Scan(...any) error }) (*model.ExtractedProduct, error) {
	var p model.ExtractedProduct
	var price, compareAt sql.NullFloat64
	var currency sql.NullString
	var available int
	var images, variants, options, tags, raw string
	err := scanner.Scan(
		&p.ID, &p.JobID, &p.URL, &p.ShopDomain, &p.Handle, &p.Title, &p.Description, &p.ShortDescription,
		&p.Vendor, &p.ProductType, &price, &compareAt, &currency, &available, &p.MainImage, &p.OGImage,
		&images, &variants, &p.VariantCount, &options, &tags, &p.MetaTitle, &p.MetaDescription, &raw, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if price.Valid {
		p.Price = &price.Float64
	}
	if compareAt.Valid {
		p.CompareAtPrice = &compareAt.Float64
	}
	if currency.Valid {
		p.Currency = &currency.String
	}
	p.Available = available != 0

	for _, col := range []struct {
		name string
		src  string
		dst  any
	}{
		{"images", images, &p.Images},
		{"variants", variants, &p.Variants},
		{"options", options, &p.Options},
		{"tags", tags, &p.Tags},
	} {
		if err := json.Unmarshal([]byte(col.src), col.dst); err != nil {
			return nil, fmt.Errorf("decode %s: %w", col.name, err)
		}
	}
	p.RawData = json.RawMessage(raw)
	return &p, nil
}

func insertProduct(tx *sql.Tx, jobID string, d *model.ProductData, at time.Time) (*model.ExtractedProduct, error) {
	images, err := encodeList(d.Images)
	if err != nil {
		return nil, fmt.Errorf("encode images: %w", err)
	}
	variants, err := encodeList(d.Variants)
	if err != nil {
		return nil, fmt.Errorf("encode variants: %w", err)
	}
	options, err := encodeList(d.Options)
	if err != nil {
		return nil, fmt.Errorf("encode options: %w", err)
	}
	tags, err := encodeList(d.Tags)
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}
	raw := string(d.RawData)
	if raw == "" {
		raw = "{}"
	}
	available := 0
	if d.Available {
		available = 1
	}

	result, err := tx.Exec(
		`INSERT INTO extracted_products (job_id, url, shop_domain, handle, title, description, short_description,
			vendor, product_type, price, compare_at_price, currency, available, main_image, og_image,
			images, variants, variant_count, options, tags, meta_title, meta_description, raw_data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		jobID, d.URL, d.ShopDomain, d.Handle, d.Title, d.Description, d.ShortDescription,
		d.Vendor, d.ProductType, d.Price, d.CompareAtPrice, d.Currency, available, d.MainImage, d.OGImage,
		images, variants, d.VariantCount, options, tags, d.MetaTitle, d.MetaDescription, raw, at,
	)
	if err != nil {
		return nil, fmt.Errorf("insert product: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	p := &model.ExtractedProduct{ID: id, JobID: jobID, CreatedAt: at, ProductData: *d}
	if p.RawData == nil {
		p.RawData = json.RawMessage(raw)
	}
	return p, nil
}

// encodeList writes nil slices as [] so reads always decode to a slice.
func encodeList[T any](v []T) (string, error) {
	if v == nil {
		return "[]", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s *ProductStore) GetByJobID(jobID string) (*model.ExtractedProduct, error) {
	row := s.db.QueryRow(`SELECT `+productCols+` FROM extracted_products WHERE job_id = ?`, jobID)
	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get product by job: %w", err)
	}
	return p, nil
}
