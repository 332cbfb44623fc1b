package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/Simplici0/cotizaciones/internal/db"
	"github.com/Simplici0/cotizaciones/internal/migrations"
	"github.com/Simplici0/cotizaciones/internal/pricing"
	"github.com/Simplici0/cotizaciones/internal/quotation"
)

func nearlyEqual(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(1, math.Abs(b))
}

func newTestStore(t *testing.T) (*Store, *sql.DB) {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "store-test.db"))
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	if err := migrations.Up(context.Background(), database); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	return New(database), database
}

func product(vendor string, cost, qty float64) quotation.Product {
	return quotation.Product{
		Vendor:   vendor,
		UOM:      "PZA",
		Currency: quotation.CurrencyMXN,
		LineItem: pricing.Derive(pricing.LineItem{
			CostPerUnit:    cost,
			AnnualQuantity: qty,
			Freight:        50,
			MarginPercent:  20,
			ExtraMargin:    pricing.ExtraMarginNo,
		}),
	}
}

func seedQuotation(t *testing.T, s *Store, docID, title, number string, status quotation.Status, products ...quotation.Product) quotation.Quotation {
	t.Helper()

	q, err := s.Create(context.Background(), quotation.Quotation{
		DocumentID:  docID,
		Title:       title,
		QuoteNumber: number,
		Status:      status,
		Products:    products,
	})
	if err != nil {
		t.Fatalf("seed quotation %s: %v", docID, err)
	}
	return q
}

func TestCreateAndGetRoundTripsProducts(t *testing.T) {
	s, _ := newTestStore(t)

	created := seedQuotation(t, s, "doc-1", "Tornillería", "COT-1", quotation.StatusActive,
		product("Aceros MX", 100, 10),
		product("Plásticos GDL", 4, 250),
	)

	if created.ID == 0 || created.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamps, got %+v", created)
	}
	if len(created.Products) != 2 {
		t.Fatalf("expected 2 products, got %d", len(created.Products))
	}
	first := created.Products[0]
	if first.Vendor != "Aceros MX" || !nearlyEqual(first.UnitPrice, 130) || !nearlyEqual(first.ExtendedFinalPrice, 1300) {
		t.Fatalf("unexpected first product: %+v", first)
	}
	if first.ExtraMargin != pricing.ExtraMarginNo || first.Currency != quotation.CurrencyMXN {
		t.Fatalf("enums not round-tripped: %+v", first)
	}
	if created.Products[1].Vendor != "Plásticos GDL" {
		t.Fatalf("products out of order: %+v", created.Products)
	}

	if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, quotation.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateUpsertsAndRemovesProducts(t *testing.T) {
	s, database := newTestStore(t)
	ctx := context.Background()

	created := seedQuotation(t, s, "doc-1", "Tornillería", "COT-1", quotation.StatusActive,
		product("Aceros MX", 100, 10),
		product("Plásticos GDL", 4, 250),
	)
	removedID := created.Products[1].ID

	if _, err := s.AddComment(ctx, quotation.Comment{ProductID: removedID, Field: "margin", Body: "revisar"}); err != nil {
		t.Fatalf("AddComment: %v", err)
	}

	kept := created.Products[0]
	kept.Vendor = "Aceros del Norte"
	kept.LineItem = pricing.Derive(pricing.LineItem{CostPerUnit: 100, AnnualQuantity: 20, Freight: 50, MarginPercent: 20})

	updated, err := s.Update(ctx, quotation.Quotation{
		DocumentID:  "doc-1",
		Title:       "Tornillería v2",
		QuoteNumber: "COT-1",
		Status:      quotation.StatusActive,
		UpdatedBy:   "luis@example.com",
		Products:    []quotation.Product{kept, product("Vidrios", 9, 3)},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if updated.Title != "Tornillería v2" || updated.UpdatedBy != "luis@example.com" {
		t.Fatalf("unexpected quotation: %+v", updated)
	}
	if len(updated.Products) != 2 {
		t.Fatalf("expected 2 products, got %+v", updated.Products)
	}
	if updated.Products[0].ID != kept.ID || updated.Products[0].Vendor != "Aceros del Norte" || updated.Products[0].AnnualQuantity != 20 {
		t.Fatalf("kept product not updated: %+v", updated.Products[0])
	}
	if updated.Products[1].ID == removedID || updated.Products[1].Vendor != "Vidrios" {
		t.Fatalf("new product not inserted: %+v", updated.Products[1])
	}

	var n int
	if err := database.QueryRow(`SELECT COUNT(*) FROM products WHERE id = ?`, removedID).Scan(&n); err != nil {
		t.Fatalf("count removed product: %v", err)
	}
	if n != 0 {
		t.Fatalf("removed product still stored")
	}
	if err := database.QueryRow(`SELECT COUNT(*) FROM field_comments WHERE product_id = ?`, removedID).Scan(&n); err != nil {
		t.Fatalf("count comments: %v", err)
	}
	if n != 0 {
		t.Fatalf("comments of removed product still stored")
	}
}

func TestUpdateMissingQuotation(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Update(context.Background(), quotation.Quotation{DocumentID: "nope", Title: "x", QuoteNumber: "y", Status: quotation.StatusActive})
	if !errors.Is(err, quotation.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListFiltersAndPaginatesNewestFirst(t *testing.T) {
	s, database := newTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		status := quotation.StatusActive
		if i%2 == 0 {
			status = quotation.StatusCancelled
		}
		seedQuotation(t, s, fmt.Sprintf("doc-%d", i), fmt.Sprintf("Cotización %d", i), fmt.Sprintf("COT-%03d", i), status, product("V", 1, 1))
		if _, err := database.Exec(`UPDATE quotations SET created_at = ? WHERE document_id = ?`,
			fmt.Sprintf("2024-01-0%d 10:00:00", i), fmt.Sprintf("doc-%d", i)); err != nil {
			t.Fatalf("set created_at: %v", err)
		}
	}

	page, err := s.List(ctx, quotation.ListFilter{Page: 1, PageSize: 2})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if page.Pagination.Total != 5 || page.Pagination.PageCount != 3 {
		t.Fatalf("unexpected pagination: %+v", page.Pagination)
	}
	if len(page.Quotations) != 2 || page.Quotations[0].DocumentID != "doc-5" || page.Quotations[1].DocumentID != "doc-4" {
		t.Fatalf("unexpected first page: %+v", page.Quotations)
	}
	if len(page.Quotations[0].Products) != 1 {
		t.Fatalf("products not loaded for listing")
	}

	last, err := s.List(ctx, quotation.ListFilter{Page: 3, PageSize: 2})
	if err != nil {
		t.Fatalf("List page 3: %v", err)
	}
	if len(last.Quotations) != 1 || last.Quotations[0].DocumentID != "doc-1" {
		t.Fatalf("unexpected last page: %+v", last.Quotations)
	}

	cancelled, err := s.List(ctx, quotation.ListFilter{Status: quotation.StatusCancelled, Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("List by status: %v", err)
	}
	if cancelled.Pagination.Total != 2 {
		t.Fatalf("expected 2 cancelled, got %+v", cancelled.Pagination)
	}

	byNumber, err := s.List(ctx, quotation.ListFilter{Query: "COT-003", Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("List by number: %v", err)
	}
	if len(byNumber.Quotations) != 1 || byNumber.Quotations[0].DocumentID != "doc-3" {
		t.Fatalf("unexpected search result: %+v", byNumber.Quotations)
	}
}

func TestUpdateStatus(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	seedQuotation(t, s, "doc-1", "Tornillería", "COT-1", quotation.StatusActive, product("V", 1, 1))

	q, err := s.UpdateStatus(ctx, "doc-1", quotation.StatusPurchased, "ana")
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if q.Status != quotation.StatusPurchased || q.UpdatedBy != "ana" {
		t.Fatalf("unexpected quotation: %+v", q)
	}

	if _, err := s.UpdateStatus(ctx, "missing", quotation.StatusPurchased, "ana"); !errors.Is(err, quotation.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteRemovesEverything(t *testing.T) {
	s, database := newTestStore(t)
	ctx := context.Background()
	created := seedQuotation(t, s, "doc-1", "Tornillería", "COT-1", quotation.StatusActive, product("V", 1, 1))

	if _, err := s.AddComment(ctx, quotation.Comment{ProductID: created.Products[0].ID, Field: "vendor", Body: "ok"}); err != nil {
		t.Fatalf("AddComment: %v", err)
	}

	if err := s.Delete(ctx, "doc-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "doc-1"); !errors.Is(err, quotation.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}

	for _, table := range []string{"quotations", "products", "field_comments"} {
		var n int
		if err := database.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if n != 0 {
			t.Fatalf("%s still has %d rows", table, n)
		}
	}
}

func TestCommentsRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	created := seedQuotation(t, s, "doc-1", "Tornillería", "COT-1", quotation.StatusActive,
		product("A", 1, 1), product("B", 2, 2))

	for i, p := range created.Products {
		c, err := s.AddComment(ctx, quotation.Comment{ProductID: p.ID, Field: "margin", Body: fmt.Sprintf("nota %d", i), Author: "ana"})
		if err != nil {
			t.Fatalf("AddComment: %v", err)
		}
		if c.ID == 0 || c.CreatedAt.IsZero() {
			t.Fatalf("expected id and timestamp, got %+v", c)
		}
	}

	comments, err := s.ListComments(ctx, []int64{created.Products[1].ID})
	if err != nil {
		t.Fatalf("ListComments: %v", err)
	}
	if len(comments) != 1 || comments[0].Body != "nota 1" || comments[0].Author != "ana" {
		t.Fatalf("unexpected comments: %+v", comments)
	}

	none, err := s.ListComments(ctx, nil)
	if err != nil || len(none) != 0 {
		t.Fatalf("expected empty list, got %+v, %v", none, err)
	}
}

func TestServiceOnSQLiteStore(t *testing.T) {
	s, _ := newTestStore(t)
	svc := quotation.NewService(s)
	ctx := context.Background()

	q, err := svc.Create(ctx, quotation.Draft{
		Title:       "Integración",
		QuoteNumber: "COT-9",
		Products: []quotation.Product{{
			Vendor:   "Aceros MX",
			LineItem: pricing.LineItem{CostPerUnit: 100, AnnualQuantity: 10, Freight: 50, MarginPercent: 20, ExtraMargin: pricing.ExtraMarginYes},
		}},
	}, "ana")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	detail, err := svc.Detail(ctx, q.DocumentID)
	if err != nil {
		t.Fatalf("Detail: %v", err)
	}
	if got := detail.Quotation.Products[0].ExtendedFinalPrice; !nearlyEqual(got, 1430) {
		t.Fatalf("extendedFinalPrice=%v, want 1430", got)
	}
}

func TestListQueryMatchesWildcardsLiterally(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	seedQuotation(t, s, "doc-a", "Tornillos", "COT_001", quotation.StatusActive, product("V", 1, 1))
	seedQuotation(t, s, "doc-b", "Tapones", "COTX001", quotation.StatusActive, product("V", 1, 1))
	seedQuotation(t, s, "doc-c", "Descuento 50% acero", "COT-003", quotation.StatusActive, product("V", 1, 1))
	seedQuotation(t, s, "doc-d", `Ruta C:\compras`, "COT-004", quotation.StatusActive, product("V", 1, 1))

	cases := []struct {
		query string
		want  []string
	}{
		{"_", []string{"doc-a"}},
		{"COT_001", []string{"doc-a"}},
		{"%", []string{"doc-c"}},
		{"50%", []string{"doc-c"}},
		{`\`, []string{"doc-d"}},
		{"tapones", []string{"doc-b"}},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			page, err := s.List(ctx, quotation.ListFilter{Query: tc.query, Page: 1, PageSize: 10})
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			var got []string
			for _, q := range page.Quotations {
				got = append(got, q.DocumentID)
			}
			if page.Pagination.Total != len(tc.want) {
				t.Fatalf("query %q: total %d, want %d (%v)", tc.query, page.Pagination.Total, len(tc.want), got)
			}
			if len(tc.want) > 0 && (len(got) != 1 || got[0] != tc.want[0]) {
				t.Fatalf("query %q: got %v, want %v", tc.query, got, tc.want)
			}
		})
	}
}
