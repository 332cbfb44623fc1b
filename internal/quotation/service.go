package quotation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/Simplici0/cotizaciones/internal/pricing"
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Event is emitted after a quotation changes.
type Event struct {
	Action     string
	DocumentID string
}

// Notifier receives change events. Notify must not block.
type Notifier interface {
	Notify(Event)
}

// Draft is the user-editable part of a quotation. Derived product fields in
// a draft are ignored and recomputed.
type Draft struct {
	Title       string    `json:"title"`
	QuoteNumber string    `json:"quote_number"`
	Status      Status    `json:"estado"`
	Products    []Product `json:"products"`
}

// Detail is a quotation with its on-demand rollups.
type Detail struct {
	Quotation Quotation         `json:"quotation"`
	Aggregate pricing.Aggregate `json:"aggregate"`
	Summary   pricing.Summary   `json:"summary"`
}

// Service validates, prices and persists quotations.
type Service struct {
	store    Store
	notifier Notifier
	pageSize int
	newID    func() string
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sends change events to n.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithPageSize sets the page size used when a listing does not ask for one.
func WithPageSize(n int) Option {
	return func(s *Service) { s.pageSize = n }
}

// WithIDGenerator replaces the document id generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// NewService builds a Service on top of store.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		pageSize: DefaultPageSize,
		newID:    func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates d, derives every product and stores a new quotation.
func (s *Service) Create(ctx context.Context, d Draft, author string) (Quotation, error) {
	if d.Status == "" {
		d.Status = StatusActive
	}
	q, err := s.build(d)
	if err != nil {
		return Quotation{}, err
	}
	q.DocumentID = s.newID()
	q.UpdatedBy = author
	for i := range q.Products {
		q.Products[i].ID = 0
	}

	created, err := s.store.Create(ctx, q)
	if err != nil {
		return Quotation{}, fmt.Errorf("create quotation: %w", err)
	}
	s.notify("created", created.DocumentID)
	return created, nil
}

// Update replaces the quotation's fields and products with d. Products that
// carry an id are updated, products without one are added, and existing
// products missing from d are removed. editor is recorded as the last editor.
func (s *Service) Update(ctx context.Context, documentID string, d Draft, editor string) (Quotation, error) {
	current, err := s.store.Get(ctx, documentID)
	if err != nil {
		return Quotation{}, fmt.Errorf("load quotation %s: %w", documentID, err)
	}
	if d.Status == "" {
		d.Status = current.Status
	}

	q, err := s.build(d)
	if err != nil {
		return Quotation{}, err
	}
	for i, p := range q.Products {
		if p.ID == 0 {
			continue
		}
		if _, ok := current.Product(p.ID); !ok {
			return Quotation{}, invalid(fmt.Sprintf("products[%d].id", i), "does not belong to this quotation")
		}
	}

	q.ID = current.ID
	q.DocumentID = current.DocumentID
	q.CreatedAt = current.CreatedAt
	q.UpdatedBy = editor

	updated, err := s.store.Update(ctx, q)
	if err != nil {
		return Quotation{}, fmt.Errorf("update quotation %s: %w", documentID, err)
	}
	s.notify("updated", updated.DocumentID)
	return updated, nil
}

// Get returns one quotation.
func (s *Service) Get(ctx context.Context, documentID string) (Quotation, error) {
	q, err := s.store.Get(ctx, documentID)
	if err != nil {
		return Quotation{}, fmt.Errorf("get quotation %s: %w", documentID, err)
	}
	return q, nil
}

// Detail returns the quotation with its aggregate and summary computed from
// the stored products.
func (s *Service) Detail(ctx context.Context, documentID string) (Detail, error) {
	q, err := s.Get(ctx, documentID)
	if err != nil {
		return Detail{}, err
	}
	items := q.LineItems()
	return Detail{
		Quotation: q,
		Aggregate: pricing.Rollup(items),
		Summary:   pricing.Summarize(items),
	}, nil
}

// List returns one page of quotations, newest first.
func (s *Service) List(ctx context.Context, f ListFilter) (Page, error) {
	f.Query = strings.TrimSpace(f.Query)
	if f.Status != "" {
		if _, err := ParseStatus(string(f.Status)); err != nil {
			return Page{}, invalid("estado", "must be one of VIGENTE, COMPRADA, CANCELADA")
		}
	}
	f = f.Normalize(s.pageSize)

	page, err := s.store.List(ctx, f)
	if err != nil {
		return Page{}, fmt.Errorf("list quotations: %w", err)
	}
	return page, nil
}

// ChangeStatus moves a quotation to status.
func (s *Service) ChangeStatus(ctx context.Context, documentID, status, editor string) (Quotation, error) {
	st, err := ParseStatus(status)
	if err != nil {
		return Quotation{}, invalid("estado", "must be one of VIGENTE, COMPRADA, CANCELADA")
	}

	q, err := s.store.UpdateStatus(ctx, documentID, st, editor)
	if err != nil {
		return Quotation{}, fmt.Errorf("update status of %s: %w", documentID, err)
	}
	s.notify("status", q.DocumentID)
	return q, nil
}

// Delete removes a quotation and its products.
func (s *Service) Delete(ctx context.Context, documentID string) error {
	if err := s.store.Delete(ctx, documentID); err != nil {
		return fmt.Errorf("delete quotation %s: %w", documentID, err)
	}
	s.notify("deleted", documentID)
	return nil
}

// Comment attaches body to field of one of the quotation's products.
func (s *Service) Comment(ctx context.Context, documentID string, productID int64, field, body, author string) (Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return Comment{}, invalid("body", "is required")
	}
	if !CommentableFields[field] {
		return Comment{}, invalid("field", "%q cannot be commented", field)
	}

	q, err := s.Get(ctx, documentID)
	if err != nil {
		return Comment{}, err
	}
	if _, ok := q.Product(productID); !ok {
		return Comment{}, invalid("productId", "does not belong to this quotation")
	}

	c, err := s.store.AddComment(ctx, Comment{
		ProductID: productID,
		Field:     field,
		Body:      body,
		Author:    author,
	})
	if err != nil {
		return Comment{}, fmt.Errorf("add comment: %w", err)
	}
	s.notify("commented", documentID)
	return c, nil
}

// Comments lists every comment on the quotation's products, oldest first.
func (s *Service) Comments(ctx context.Context, documentID string) ([]Comment, error) {
	q, err := s.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if len(q.Products) == 0 {
		return []Comment{}, nil
	}

	ids := make([]int64, len(q.Products))
	for i, p := range q.Products {
		ids[i] = p.ID
	}

	comments, err := s.store.ListComments(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	sort.SliceStable(comments, func(i, j int) bool {
		return comments[i].CreatedAt.Before(comments[j].CreatedAt)
	})
	return comments, nil
}

// build validates a draft and returns a quotation whose products carry
// freshly derived prices.
func (s *Service) build(d Draft) (Quotation, error) {
	title := strings.TrimSpace(d.Title)
	number := strings.TrimSpace(d.QuoteNumber)
	if title == "" {
		return Quotation{}, invalid("title", "is required")
	}
	if number == "" {
		return Quotation{}, invalid("quote_number", "is required")
	}
	if _, err := ParseStatus(string(d.Status)); err != nil {
		return Quotation{}, invalid("estado", "must be one of VIGENTE, COMPRADA, CANCELADA")
	}
	if len(d.Products) == 0 {
		return Quotation{}, invalid("products", "must contain at least one product")
	}

	products := make([]Product, len(d.Products))
	for i, p := range d.Products {
		if err := validateProduct(i, p); err != nil {
			return Quotation{}, err
		}
		if p.Currency == "" {
			p.Currency = CurrencyMXN
		}
		if p.ExtraMargin == "" {
			p.ExtraMargin = pricing.ExtraMarginNo
		}
		p.Vendor = strings.TrimSpace(p.Vendor)
		p.Name = strings.TrimSpace(p.Name)
		p.LineItem = pricing.Derive(p.LineItem)
		products[i] = p
	}

	return Quotation{
		Title:       title,
		QuoteNumber: number,
		Status:      d.Status,
		Products:    products,
	}, nil
}

func validateProduct(i int, p Product) error {
	field := func(name string) string { return fmt.Sprintf("products[%d].%s", i, name) }

	checks := []struct {
		name  string
		value float64
	}{
		{"costEA", p.CostPerUnit},
		{"annualQty", p.AnnualQuantity},
		{"freight", p.Freight},
		{"margin", p.MarginPercent},
	}
	for _, c := range checks {
		if math.IsNaN(c.value) || math.IsInf(c.value, 0) {
			return invalid(field(c.name), "must be a finite number")
		}
		if c.value < 0 {
			return invalid(field(c.name), "must be greater than or equal to 0")
		}
	}
	if p.MarginPercent >= 100 {
		return invalid(field("margin"), "must be lower than 100")
	}
	if p.ExtraMargin != "" && !p.ExtraMargin.Valid() {
		return invalid(field("extraMargin"), "must be SI or NO")
	}
	if p.Currency != "" && p.Currency != CurrencyMXN && p.Currency != CurrencyUSD {
		return invalid(field("currency"), "must be MXN or USD")
	}
	return nil
}

func (s *Service) notify(action, documentID string) {
	log.Printf("quotation %s %s", documentID, action)
	if s.notifier != nil {
		s.notifier.Notify(Event{Action: action, DocumentID: documentID})
	}
}
