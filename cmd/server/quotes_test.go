package main

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/Simplici0/cotizaciones/internal/pricing"
	"github.com/Simplici0/cotizaciones/internal/quotation"
)

type quotationEnvelope struct {
	Data quotation.Quotation `json:"data"`
}

func testDraft(number string, products ...quotation.Product) quotation.Draft {
	if len(products) == 0 {
		products = []quotation.Product{testProduct("Aceros del Norte", 100, 10, 0, 50, pricing.ExtraMarginNo)}
	}
	return quotation.Draft{
		Title:       "Cotización " + number,
		QuoteNumber: number,
		Products:    products,
	}
}

func testProduct(vendor string, cost, qty, freight, margin float64, extra pricing.ExtraMargin) quotation.Product {
	return quotation.Product{
		Vendor: vendor,
		Name:   "Lámina " + vendor,
		UOM:    "PZA",
		LineItem: pricing.LineItem{
			CostPerUnit:    cost,
			AnnualQuantity: qty,
			Freight:        freight,
			MarginPercent:  margin,
			ExtraMargin:    extra,
		},
	}
}

func (ts *testServer) createQuotation(t *testing.T, d quotation.Draft) quotation.Quotation {
	t.Helper()
	rr := ts.do(t, http.MethodPost, "/api/quotations", testUserEmail, d)
	expectStatus(t, rr, http.StatusCreated)

	var env quotationEnvelope
	decodeBody(t, rr, &env)
	return env.Data
}

func TestCreateQuotationDerivesProducts(t *testing.T) {
	ts := newTestServer(t)

	q := ts.createQuotation(t, testDraft("COT-100"))
	if q.DocumentID == "" {
		t.Fatalf("expected a document id")
	}
	if q.Status != quotation.StatusActive {
		t.Fatalf("expected default status VIGENTE, got %q", q.Status)
	}
	if q.UpdatedBy != testUserEmail {
		t.Fatalf("expected updatedBy %q, got %q", testUserEmail, q.UpdatedBy)
	}
	if len(q.Products) != 1 {
		t.Fatalf("expected one product, got %d", len(q.Products))
	}

	p := q.Products[0]
	if p.ID == 0 || p.Currency != quotation.CurrencyMXN {
		t.Fatalf("unexpected stored product: %+v", p)
	}
	if !nearlyEqual(p.UnitPrice, 200) || !nearlyEqual(p.ExtendedFinalPrice, 2000) || !nearlyEqual(p.ExtendedCost, 1000) {
		t.Fatalf("unexpected derived prices: %+v", p.LineItem)
	}

	rr := ts.do(t, http.MethodGet, "/api/quotations/"+q.DocumentID, testUserEmail, nil)
	expectStatus(t, rr, http.StatusOK)
	var got quotationEnvelope
	decodeBody(t, rr, &got)
	if got.Data.QuoteNumber != "COT-100" || len(got.Data.Products) != 1 {
		t.Fatalf("unexpected quotation: %+v", got.Data)
	}
}

func TestCreateQuotationValidation(t *testing.T) {
	ts := newTestServer(t)

	cases := []struct {
		name  string
		draft quotation.Draft
	}{
		{"missing title", quotation.Draft{QuoteNumber: "COT-1", Products: []quotation.Product{testProduct("A", 1, 1, 0, 10, pricing.ExtraMarginNo)}}},
		{"no products", quotation.Draft{Title: "Sin productos", QuoteNumber: "COT-2"}},
		{"margin 100", testDraft("COT-3", testProduct("A", 1, 1, 0, 100, pricing.ExtraMarginNo))},
		{"negative cost", testDraft("COT-4", testProduct("A", -1, 1, 0, 10, pricing.ExtraMarginNo))},
		{"bad status", quotation.Draft{Title: "X", QuoteNumber: "COT-5", Status: "ABIERTA", Products: []quotation.Product{testProduct("A", 1, 1, 0, 10, pricing.ExtraMarginNo)}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := ts.do(t, http.MethodPost, "/api/quotations", testUserEmail, tc.draft)
			expectStatus(t, rr, http.StatusBadRequest)
		})
	}

	rr := ts.do(t, http.MethodPost, "/api/quotations", testUserEmail, nil)
	expectStatus(t, rr, http.StatusBadRequest)
}

func TestListQuotationsFiltersAndPaginates(t *testing.T) {
	ts := newTestServer(t)

	for i := 1; i <= 3; i++ {
		ts.createQuotation(t, testDraft(fmt.Sprintf("COT-00%d", i)))
	}
	other := ts.createQuotation(t, testDraft("REQ-777"))

	rr := ts.do(t, http.MethodGet, "/api/quotations?pageSize=2", testUserEmail, nil)
	expectStatus(t, rr, http.StatusOK)
	var page quotation.Page
	decodeBody(t, rr, &page)
	if len(page.Quotations) != 2 {
		t.Fatalf("expected 2 quotations on the first page, got %d", len(page.Quotations))
	}
	want := quotation.Pagination{Page: 1, PageSize: 2, PageCount: 2, Total: 4}
	if page.Pagination != want {
		t.Fatalf("unexpected pagination: %+v", page.Pagination)
	}
	if page.Quotations[0].DocumentID != other.DocumentID {
		t.Fatalf("expected newest quotation first, got %q", page.Quotations[0].QuoteNumber)
	}

	rr = ts.do(t, http.MethodGet, "/api/quotations?q=cot-00", testUserEmail, nil)
	expectStatus(t, rr, http.StatusOK)
	page = quotation.Page{}
	decodeBody(t, rr, &page)
	if page.Pagination.Total != 3 {
		t.Fatalf("expected 3 matches for cot-00, got %d", page.Pagination.Total)
	}

	rr = ts.do(t, http.MethodGet, "/api/quotations?estado=ABIERTA", testUserEmail, nil)
	expectStatus(t, rr, http.StatusBadRequest)
}

func TestUpdateQuotationReplacesProducts(t *testing.T) {
	ts := newTestServer(t)
	q := ts.createQuotation(t, testDraft("COT-200",
		testProduct("Primero", 100, 10, 0, 50, pricing.ExtraMarginNo),
		testProduct("Segundo", 10, 5, 0, 20, pricing.ExtraMarginNo),
	))

	kept := q.Products[0]
	kept.MarginPercent = 20
	d := testDraft("COT-200", kept, testProduct("Nuevo", 50, 2, 10, 0, pricing.ExtraMarginYes))
	d.Title = "Cotización revisada"

	rr := ts.do(t, http.MethodPut, "/api/quotations/"+q.DocumentID, testAdminEmail, d)
	expectStatus(t, rr, http.StatusOK)
	var env quotationEnvelope
	decodeBody(t, rr, &env)

	updated := env.Data
	if updated.Title != "Cotización revisada" || updated.UpdatedBy != testAdminEmail {
		t.Fatalf("unexpected update: %+v", updated)
	}
	if len(updated.Products) != 2 {
		t.Fatalf("expected 2 products after update, got %d", len(updated.Products))
	}
	if updated.Products[0].ID != kept.ID || !nearlyEqual(updated.Products[0].UnitPrice, 125) {
		t.Fatalf("expected kept product re-derived, got %+v", updated.Products[0])
	}
	// (50 + 10/2) * 1.1
	if !nearlyEqual(updated.Products[1].FinalUnitPrice, 60.5) {
		t.Fatalf("unexpected new product price: %+v", updated.Products[1].LineItem)
	}

	foreign := testProduct("Ajeno", 1, 1, 0, 0, pricing.ExtraMarginNo)
	foreign.ID = 9999
	rr = ts.do(t, http.MethodPut, "/api/quotations/"+q.DocumentID, testAdminEmail, testDraft("COT-200", foreign))
	expectStatus(t, rr, http.StatusBadRequest)

	rr = ts.do(t, http.MethodPut, "/api/quotations/no-existe", testAdminEmail, testDraft("COT-200"))
	expectStatus(t, rr, http.StatusNotFound)
}

func TestUpdateStatusAndDelete(t *testing.T) {
	ts := newTestServer(t)
	q := ts.createQuotation(t, testDraft("COT-300"))

	rr := ts.do(t, http.MethodPut, "/api/quotations/"+q.DocumentID+"/status", testUserEmail, map[string]string{"estado": "COMPRADA"})
	expectStatus(t, rr, http.StatusOK)
	var env quotationEnvelope
	decodeBody(t, rr, &env)
	if env.Data.Status != quotation.StatusPurchased || len(env.Data.Products) != 1 {
		t.Fatalf("unexpected quotation after status change: %+v", env.Data)
	}

	rr = ts.do(t, http.MethodPut, "/api/quotations/"+q.DocumentID+"/status", testUserEmail, map[string]string{"estado": "PERDIDA"})
	expectStatus(t, rr, http.StatusBadRequest)

	rr = ts.do(t, http.MethodGet, "/api/quotations?estado=COMPRADA", testUserEmail, nil)
	expectStatus(t, rr, http.StatusOK)
	var page quotation.Page
	decodeBody(t, rr, &page)
	if page.Pagination.Total != 1 {
		t.Fatalf("expected one purchased quotation, got %d", page.Pagination.Total)
	}

	rr = ts.do(t, http.MethodDelete, "/api/quotations/"+q.DocumentID, testUserEmail, nil)
	expectStatus(t, rr, http.StatusNoContent)

	rr = ts.do(t, http.MethodGet, "/api/quotations/"+q.DocumentID, testUserEmail, nil)
	expectStatus(t, rr, http.StatusNotFound)

	rr = ts.do(t, http.MethodDelete, "/api/quotations/"+q.DocumentID, testUserEmail, nil)
	expectStatus(t, rr, http.StatusNotFound)
}

func TestQuotationComments(t *testing.T) {
	ts := newTestServer(t)
	q := ts.createQuotation(t, testDraft("COT-400"))
	productID := q.Products[0].ID
	path := "/api/quotations/" + q.DocumentID + "/comments"

	rr := ts.do(t, http.MethodPost, path, testUserEmail, map[string]any{
		"productId": productID,
		"field":     "margin",
		"body":      "  Confirmar margen con el cliente  ",
	})
	expectStatus(t, rr, http.StatusCreated)

	rr = ts.do(t, http.MethodPost, path, testUserEmail, map[string]any{
		"productId": productID,
		"field":     "password",
		"body":      "no aplica",
	})
	expectStatus(t, rr, http.StatusBadRequest)

	rr = ts.do(t, http.MethodPost, path, testUserEmail, map[string]any{
		"productId": productID + 1000,
		"field":     "margin",
		"body":      "otro producto",
	})
	expectStatus(t, rr, http.StatusBadRequest)

	rr = ts.do(t, http.MethodGet, path, testUserEmail, nil)
	expectStatus(t, rr, http.StatusOK)
	var list struct {
		Data []quotation.Comment `json:"data"`
	}
	decodeBody(t, rr, &list)
	if len(list.Data) != 1 {
		t.Fatalf("expected one comment, got %+v", list.Data)
	}
	c := list.Data[0]
	if c.Body != "Confirmar margen con el cliente" || c.Author != testUserEmail || c.ProductID != productID {
		t.Fatalf("unexpected comment: %+v", c)
	}
}
