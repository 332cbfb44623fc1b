// Package quotation holds the quotation domain: products priced through the
// pricing engine, lifecycle status, field comments, and the service that
// recomputes and persists them.
package quotation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Simplici0/cotizaciones/internal/pricing"
)

var (
	ErrNotFound      = errors.New("quotation: not found")
	ErrInvalidStatus = errors.New("quotation: invalid status")
)

// Status is the lifecycle state of a quotation.
type Status string

const (
	StatusActive    Status = "VIGENTE"
	StatusPurchased Status = "COMPRADA"
	StatusCancelled Status = "CANCELADA"
)

// Statuses lists every valid status in display order.
var Statuses = []Status{StatusActive, StatusPurchased, StatusCancelled}

// ParseStatus validates raw against the known statuses.
func ParseStatus(raw string) (Status, error) {
	for _, s := range Statuses {
		if string(s) == raw {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}

type Currency string

const (
	CurrencyMXN Currency = "MXN"
	CurrencyUSD Currency = "USD"
)

// Product is a quotable line item plus its descriptive fields.
type Product struct {
	ID               int64    `json:"id,omitempty"`
	DocumentID       string   `json:"documentId,omitempty"`
	Vendor           string   `json:"vendor"`
	Name             string   `json:"name"`
	QuotationContact string   `json:"quotationContact"`
	UOM              string   `json:"uom"`
	CustomUOM        string   `json:"customUom,omitempty"`
	Currency         Currency `json:"currency"`
	CommentsLink     string   `json:"commentsLink"`

	pricing.LineItem

	CreatedAt time.Time `json:"createdAt,omitzero"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// Quotation is a numbered collection of products with a status.
type Quotation struct {
	ID          int64     `json:"id,omitempty"`
	DocumentID  string    `json:"documentId"`
	Title       string    `json:"title"`
	QuoteNumber string    `json:"quote_number"`
	Status      Status    `json:"estado"`
	Products    []Product `json:"products"`
	UpdatedBy   string    `json:"updatedBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// LineItems returns the pricing view of every product, in order.
func (q Quotation) LineItems() []pricing.LineItem {
	items := make([]pricing.LineItem, len(q.Products))
	for i, p := range q.Products {
		items[i] = p.LineItem
	}
	return items
}

// Product returns the product with the given id.
func (q Quotation) Product(id int64) (Product, bool) {
	for _, p := range q.Products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}

// Comment is free text attached to one field of one product.
type Comment struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"productId"`
	Field     string    `json:"field"`
	Body      string    `json:"body"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

// CommentableFields are the product fields a comment may target, keyed by
// their JSON names.
var CommentableFields = map[string]bool{
	"vendor":           true,
	"name":             true,
	"quotationContact": true,
	"uom":              true,
	"currency":         true,
	"freight":          true,
	"annualQty":        true,
	"costEA":           true,
	"margin":           true,
	"extraMargin":      true,
	"priceEA":          true,
	"extPrecost":       true,
	"extPriceSIMA":     true,
	"finalPriceEA":     true,
	"extPriceMXN":      true,
}

const (
	DefaultPageSize = 25
	MaxPageSize     = 100
)

// ListFilter selects a page of quotations.
type ListFilter struct {
	Query    string
	Status   Status
	Page     int
	PageSize int
}

// Normalize clamps paging to sane bounds, using fallback when no size is set.
func (f ListFilter) Normalize(fallback int) ListFilter {
	if fallback <= 0 {
		fallback = DefaultPageSize
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = fallback
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	return f
}

// Offset is the number of rows skipped before the current page.
func (f ListFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

// Pagination mirrors the meta block of the content API.
type Pagination struct {
	Page      int `json:"page"`
	PageSize  int `json:"pageSize"`
	PageCount int `json:"pageCount"`
	Total     int `json:"total"`
}

// NewPagination computes the page count for total rows under f.
func NewPagination(f ListFilter, total int) Pagination {
	pageCount := 0
	if f.PageSize > 0 {
		pageCount = (total + f.PageSize - 1) / f.PageSize
	}
	return Pagination{Page: f.Page, PageSize: f.PageSize, PageCount: pageCount, Total: total}
}

// Page is one page of a listing.
type Page struct {
	Quotations []Quotation `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

// Store persists quotations. Implementations receive fully derived products
// and never recompute prices themselves.
type Store interface {
	Create(ctx context.Context, q Quotation) (Quotation, error)
	Update(ctx context.Context, q Quotation) (Quotation, error)
	Get(ctx context.Context, documentID string) (Quotation, error)
	List(ctx context.Context, f ListFilter) (Page, error)
	UpdateStatus(ctx context.Context, documentID string, status Status, editor string) (Quotation, error)
	Delete(ctx context.Context, documentID string) error
	AddComment(ctx context.Context, c Comment) (Comment, error)
	ListComments(ctx context.Context, productIDs []int64) ([]Comment, error)
}
