package store

import (
	"errors"
	"testing"
	"time"

	"github.com/dukerupert/shopgrab/internal/database"
	"github.com/dukerupert/shopgrab/internal/model"
)

func setupJobTestDB(t *testing.T) (*JobStore, *ProductStore, *AccountStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewJobStore(db), NewProductStore(db), NewAccountStore(db)
}

func sampleProduct() *model.ProductData {
	price := 19.99
	usd := "USD"
	compare := "29.99"
	return &model.ProductData{
		URL:          "https://shop.example.com/products/tee",
		ShopDomain:   "shop.example.com",
		Handle:       "tee",
		Title:        "Classic Tee",
		Price:        &price,
		Currency:     &usd,
		Available:    true,
		Images:       []string{"https://cdn.example.com/a.jpg", "https://cdn.example.com/b.jpg"},
		Variants:     []model.Variant{{ID: 1, Title: "S", Price: "19.99", CompareAtPrice: &compare, SKU: "TEE-S"}},
		VariantCount: 1,
		Options:      []model.Option{{Name: "Size", Values: []string{"S", "M"}}},
		Tags:         []string{"cotton", "summer"},
		RawData:      []byte(`{"handle":"tee"}`),
	}
}

func TestJobCreate(t *testing.T) {
	js, _, as := setupJobTestDB(t)
	a, _ := as.Create("alice@example.com")

	j, err := js.Create(a.ID, "https://shop.example.com/products/tee")
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if j.ID == "" {
		t.Error("expected generated id")
	}
	if j.Status != model.JobProcessing {
		t.Errorf("status = %q, want processing", j.Status)
	}
	if j.CompletedAt != nil || j.Error != nil || j.DurationMS != nil {
		t.Error("expected no terminal fields on a new job")
	}
}

func TestJobComplete(t *testing.T) {
	js, ps, as := setupJobTestDB(t)
	a, _ := as.Create("alice@example.com")
	j, _ := js.Create(a.ID, "https://shop.example.com/products/tee")

	p, err := js.Complete(j.ID, sampleProduct(), 120)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if p.JobID != j.ID {
		t.Errorf("product job id = %q, want %q", p.JobID, j.ID)
	}

	got, _ := js.GetByID(j.ID)
	if got.Status != model.JobCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
	if got.DurationMS == nil || *got.DurationMS != 120 {
		t.Errorf("duration = %v, want 120", got.DurationMS)
	}
	if got.CompletedAt == nil {
		t.Error("expected completed_at")
	}

	stored, err := ps.GetByJobID(j.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if stored == nil {
		t.Fatal("expected stored product")
	}
	if len(stored.Images) != 2 || stored.Images[1] != "https://cdn.example.com/b.jpg" {
		t.Errorf("images = %v", stored.Images)
	}
	if len(stored.Variants) != 1 || stored.Variants[0].SKU != "TEE-S" || *stored.Variants[0].CompareAtPrice != "29.99" {
		t.Errorf("variants = %+v", stored.Variants)
	}
	if len(stored.Options) != 1 || stored.Options[0].Name != "Size" {
		t.Errorf("options = %+v", stored.Options)
	}
	if len(stored.Tags) != 2 {
		t.Errorf("tags = %v", stored.Tags)
	}
	if stored.Price == nil || *stored.Price != 19.99 {
		t.Errorf("price = %v", stored.Price)
	}
	if stored.CompareAtPrice != nil {
		t.Errorf("compare at price = %v, want nil", stored.CompareAtPrice)
	}
	if !stored.Available {
		t.Error("expected available")
	}
	if string(stored.RawData) != `{"handle":"tee"}` {
		t.Errorf("raw = %s", stored.RawData)
	}
}

func TestJobFail(t *testing.T) {
	js, ps, as := setupJobTestDB(t)
	a, _ := as.Create("alice@example.com")
	j, _ := js.Create(a.ID, "https://shop.example.com/products/tee")

	if err := js.Fail(j.ID, "no product found", 40); err != nil {
		t.Fatalf("fail: %v", err)
	}

	got, _ := js.GetByID(j.ID)
	if got.Status != model.JobFailed {
		t.Errorf("status = %q, want failed", got.Status)
	}
	if got.Error == nil || *got.Error != "no product found" {
		t.Errorf("error = %v", got.Error)
	}

	p, _ := ps.GetByJobID(j.ID)
	if p != nil {
		t.Error("failed job must not have a product")
	}
}

func TestJobFinalizeOnce(t *testing.T) {
	js, ps, as := setupJobTestDB(t)
	a, _ := as.Create("alice@example.com")
	j, _ := js.Create(a.ID, "https://shop.example.com/products/tee")

	if err := js.Fail(j.ID, "boom", 1); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if _, err := js.Complete(j.ID, sampleProduct(), 2); !errors.Is(err, ErrJobFinalized) {
		t.Fatalf("complete after fail err = %v, want ErrJobFinalized", err)
	}
	if err := js.Fail(j.ID, "again", 3); !errors.Is(err, ErrJobFinalized) {
		t.Fatalf("second fail err = %v, want ErrJobFinalized", err)
	}

	// The rejected Complete must not leave a product behind.
	if p, _ := ps.GetByJobID(j.ID); p != nil {
		t.Error("expected no product after rejected completion")
	}
	got, _ := js.GetByID(j.ID)
	if *got.Error != "boom" {
		t.Errorf("error = %q, want first failure preserved", *got.Error)
	}
}

func TestJobCountSince(t *testing.T) {
	js, _, as := setupJobTestDB(t)
	a, _ := as.Create("alice@example.com")
	b, _ := as.Create("bob@example.com")

	base := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)
	js.now = func() time.Time { return base.Add(-2 * time.Hour) }
	js.Create(a.ID, "https://x.test/products/old")
	js.now = func() time.Time { return base }
	js.Create(a.ID, "https://x.test/products/a")
	js.Create(a.ID, "https://x.test/products/b")
	js.Create(b.ID, "https://x.test/products/c")

	n, err := js.CountSince(a.ID, base.Add(-time.Hour))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}

func TestJobListRecent(t *testing.T) {
	js, _, as := setupJobTestDB(t)
	a, _ := as.Create("alice@example.com")

	base := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		js.now = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
		j, _ := js.Create(a.ID, "https://x.test/products/p")
		ids = append(ids, j.ID)
	}
	js.Complete(ids[1], sampleProduct(), 10)
	js.Fail(ids[2], "boom", 10)

	jobs, err := js.ListRecent(a.ID, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("len = %d, want 2", len(jobs))
	}
	if jobs[0].ID != ids[2] || jobs[1].ID != ids[1] {
		t.Errorf("order = [%s %s], want newest first", jobs[0].ID, jobs[1].ID)
	}
	if jobs[0].Product != nil {
		t.Error("failed job should have no product")
	}
	if jobs[1].Product == nil || jobs[1].Product.Title != "Classic Tee" {
		t.Errorf("completed job product = %+v", jobs[1].Product)
	}
}

func TestJobListRecentEmpty(t *testing.T) {
	js, _, as := setupJobTestDB(t)
	a, _ := as.Create("alice@example.com")

	jobs, err := js.ListRecent(a.ID, 50)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("len = %d, want 0", len(jobs))
	}
}
