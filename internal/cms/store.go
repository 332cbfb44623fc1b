package cms

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Simplici0/cotizaciones/internal/pricing"
	"github.com/Simplici0/cotizaciones/internal/quotation"
)

var _ quotation.Store = (*Client)(nil)

const commentsPageSize = 100

type ref struct {
	DocumentID string `json:"documentId"`
}

type relation struct {
	Connect []ref `json:"connect,omitempty"`
	Set     []ref `json:"set,omitempty"`
}

type quotationInput struct {
	Title       string           `json:"title"`
	QuoteNumber string           `json:"quote_number"`
	Status      quotation.Status `json:"estado"`
	UpdatedBy   string           `json:"updatedBy"`
	Products    *relation        `json:"products,omitempty"`
}

type statusInput struct {
	Status    quotation.Status `json:"estado"`
	UpdatedBy string           `json:"updatedBy"`
}

type productInput struct {
	Vendor           string             `json:"vendor"`
	Name             string             `json:"name"`
	QuotationContact string             `json:"quotationContact"`
	UOM              string             `json:"uom"`
	CustomUOM        string             `json:"customUom"`
	Currency         quotation.Currency `json:"currency"`
	CommentsLink     string             `json:"commentsLink"`

	pricing.LineItem
}

func newProductInput(p quotation.Product) productInput {
	return productInput{
		Vendor:           p.Vendor,
		Name:             p.Name,
		QuotationContact: p.QuotationContact,
		UOM:              p.UOM,
		CustomUOM:        p.CustomUOM,
		Currency:         p.Currency,
		CommentsLink:     p.CommentsLink,
		LineItem:         p.LineItem,
	}
}

type commentInput struct {
	ProductID int64  `json:"productId"`
	Field     string `json:"field"`
	Body      string `json:"body"`
	Author    string `json:"author"`
}

type commentEntry struct {
	quotation.Comment
	DocumentID string `json:"documentId"`
}

type meta struct {
	Pagination quotation.Pagination `json:"pagination"`
}

type quotationResponse struct {
	Data quotation.Quotation `json:"data"`
}

type quotationListResponse struct {
	Data []quotation.Quotation `json:"data"`
	Meta meta                  `json:"meta"`
}

type productResponse struct {
	Data quotation.Product `json:"data"`
}

type commentResponse struct {
	Data commentEntry `json:"data"`
}

type commentListResponse struct {
	Data []commentEntry `json:"data"`
	Meta meta           `json:"meta"`
}

// Create stores every product first and then the quotation connected to
// them. The CMS assigns the document id of the returned quotation.
func (c *Client) Create(ctx context.Context, q quotation.Quotation) (quotation.Quotation, error) {
	refs := make([]ref, 0, len(q.Products))
	for _, p := range q.Products {
		created, err := c.createProduct(ctx, p)
		if err != nil {
			c.discardProducts(ctx, refs)
			return quotation.Quotation{}, err
		}
		refs = append(refs, ref{DocumentID: created.DocumentID})
	}

	var resp quotationResponse
	err := c.do(ctx, http.MethodPost, "/cotizacions", nil, quotationInput{
		Title:       q.Title,
		QuoteNumber: q.QuoteNumber,
		Status:      q.Status,
		UpdatedBy:   q.UpdatedBy,
		Products:    &relation{Connect: refs},
	}, &resp)
	if err != nil {
		c.discardProducts(ctx, refs)
		return quotation.Quotation{}, fmt.Errorf("create quotation: %w", err)
	}

	return c.Get(ctx, resp.Data.DocumentID)
}

// Update upserts the products, replaces the quotation's product relation and
// deletes products that are no longer part of it.
func (c *Client) Update(ctx context.Context, q quotation.Quotation) (quotation.Quotation, error) {
	current, err := c.Get(ctx, q.DocumentID)
	if err != nil {
		return quotation.Quotation{}, err
	}
	existing := make(map[int64]string, len(current.Products))
	for _, p := range current.Products {
		existing[p.ID] = p.DocumentID
	}

	refs := make([]ref, 0, len(q.Products))
	added := make([]ref, 0)
	kept := make(map[int64]bool, len(q.Products))
	// fail removes the products added by this call before returning err.
	fail := func(err error) (quotation.Quotation, error) {
		c.discardProducts(ctx, added)
		return quotation.Quotation{}, err
	}

	for _, p := range q.Products {
		if p.ID == 0 {
			created, err := c.createProduct(ctx, p)
			if err != nil {
				return fail(err)
			}
			r := ref{DocumentID: created.DocumentID}
			refs = append(refs, r)
			added = append(added, r)
			continue
		}

		documentID, ok := existing[p.ID]
		if !ok {
			return fail(fmt.Errorf("update product %d: %w", p.ID, quotation.ErrNotFound))
		}
		if err := c.do(ctx, http.MethodPut, "/products/"+url.PathEscape(documentID), nil, newProductInput(p), nil); err != nil {
			return fail(fmt.Errorf("update product %d: %w", p.ID, err))
		}
		refs = append(refs, ref{DocumentID: documentID})
		kept[p.ID] = true
	}

	err = c.do(ctx, http.MethodPut, "/cotizacions/"+url.PathEscape(q.DocumentID), nil, quotationInput{
		Title:       q.Title,
		QuoteNumber: q.QuoteNumber,
		Status:      q.Status,
		UpdatedBy:   q.UpdatedBy,
		Products:    &relation{Set: refs},
	}, nil)
	if err != nil {
		return fail(fmt.Errorf("update quotation: %w", err))
	}

	removed := make([]quotation.Product, 0)
	for _, p := range current.Products {
		if !kept[p.ID] {
			removed = append(removed, p)
		}
	}
	if err := c.deleteProducts(ctx, removed); err != nil {
		return quotation.Quotation{}, err
	}

	return c.Get(ctx, q.DocumentID)
}

func (c *Client) Get(ctx context.Context, documentID string) (quotation.Quotation, error) {
	query := url.Values{}
	query.Set("populate", "*")

	var resp quotationResponse
	if err := c.do(ctx, http.MethodGet, "/cotizacions/"+url.PathEscape(documentID), query, nil, &resp); err != nil {
		return quotation.Quotation{}, fmt.Errorf("get quotation: %w", err)
	}
	q := resp.Data
	if q.Products == nil {
		q.Products = []quotation.Product{}
	}
	return q, nil
}

func (c *Client) List(ctx context.Context, f quotation.ListFilter) (quotation.Page, error) {
	query := url.Values{}
	query.Set("populate", "*")
	query.Set("sort", "createdAt:desc")
	query.Set("pagination[page]", strconv.Itoa(f.Page))
	query.Set("pagination[pageSize]", strconv.Itoa(f.PageSize))
	if f.Status != "" {
		query.Set("filters[estado][$eq]", string(f.Status))
	}
	if f.Query != "" {
		query.Set("filters[$or][0][title][$containsi]", f.Query)
		query.Set("filters[$or][1][quote_number][$containsi]", f.Query)
	}

	var resp quotationListResponse
	if err := c.do(ctx, http.MethodGet, "/cotizacions", query, nil, &resp); err != nil {
		return quotation.Page{}, fmt.Errorf("list quotations: %w", err)
	}

	quotations := resp.Data
	if quotations == nil {
		quotations = []quotation.Quotation{}
	}
	for i := range quotations {
		if quotations[i].Products == nil {
			quotations[i].Products = []quotation.Product{}
		}
	}

	pagination := resp.Meta.Pagination
	if pagination.PageSize == 0 {
		pagination = quotation.NewPagination(f, len(quotations))
	}
	return quotation.Page{Quotations: quotations, Pagination: pagination}, nil
}

func (c *Client) UpdateStatus(ctx context.Context, documentID string, status quotation.Status, editor string) (quotation.Quotation, error) {
	err := c.do(ctx, http.MethodPut, "/cotizacions/"+url.PathEscape(documentID), nil, statusInput{
		Status:    status,
		UpdatedBy: editor,
	}, nil)
	if err != nil {
		return quotation.Quotation{}, fmt.Errorf("update quotation status: %w", err)
	}
	return c.Get(ctx, documentID)
}

// Delete removes the quotation, then its products and their comments.
func (c *Client) Delete(ctx context.Context, documentID string) error {
	current, err := c.Get(ctx, documentID)
	if err != nil {
		return err
	}
	if err := c.do(ctx, http.MethodDelete, "/cotizacions/"+url.PathEscape(documentID), nil, nil, nil); err != nil {
		return fmt.Errorf("delete quotation: %w", err)
	}
	return c.deleteProducts(ctx, current.Products)
}

func (c *Client) AddComment(ctx context.Context, comment quotation.Comment) (quotation.Comment, error) {
	var resp commentResponse
	err := c.do(ctx, http.MethodPost, "/field-comments", nil, commentInput{
		ProductID: comment.ProductID,
		Field:     comment.Field,
		Body:      comment.Body,
		Author:    comment.Author,
	}, &resp)
	if err != nil {
		return quotation.Comment{}, fmt.Errorf("add field comment: %w", err)
	}
	return resp.Data.Comment, nil
}

func (c *Client) ListComments(ctx context.Context, productIDs []int64) ([]quotation.Comment, error) {
	entries, err := c.listCommentEntries(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	comments := make([]quotation.Comment, len(entries))
	for i, e := range entries {
		comments[i] = e.Comment
	}
	return comments, nil
}

func (c *Client) listCommentEntries(ctx context.Context, productIDs []int64) ([]commentEntry, error) {
	entries := make([]commentEntry, 0)
	if len(productIDs) == 0 {
		return entries, nil
	}

	query := url.Values{}
	query.Set("sort", "createdAt:asc")
	query.Set("pagination[pageSize]", strconv.Itoa(commentsPageSize))
	for i, id := range productIDs {
		query.Set(fmt.Sprintf("filters[productId][$in][%d]", i), strconv.FormatInt(id, 10))
	}

	for page := 1; ; page++ {
		query.Set("pagination[page]", strconv.Itoa(page))
		var resp commentListResponse
		if err := c.do(ctx, http.MethodGet, "/field-comments", query, nil, &resp); err != nil {
			return nil, fmt.Errorf("list field comments: %w", err)
		}
		entries = append(entries, resp.Data...)
		if page >= resp.Meta.Pagination.PageCount {
			return entries, nil
		}
	}
}

func (c *Client) createProduct(ctx context.Context, p quotation.Product) (quotation.Product, error) {
	var resp productResponse
	if err := c.do(ctx, http.MethodPost, "/products", nil, newProductInput(p), &resp); err != nil {
		return quotation.Product{}, fmt.Errorf("create product: %w", err)
	}
	return resp.Data, nil
}

func (c *Client) deleteProducts(ctx context.Context, products []quotation.Product) error {
	if len(products) == 0 {
		return nil
	}

	ids := make([]int64, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}
	comments, err := c.listCommentEntries(ctx, ids)
	if err != nil {
		return err
	}
	for _, comment := range comments {
		if err := c.do(ctx, http.MethodDelete, "/field-comments/"+url.PathEscape(comment.DocumentID), nil, nil, nil); err != nil {
			return fmt.Errorf("delete field comment %d: %w", comment.ID, err)
		}
	}

	for _, p := range products {
		if err := c.do(ctx, http.MethodDelete, "/products/"+url.PathEscape(p.DocumentID), nil, nil, nil); err != nil {
			return fmt.Errorf("delete product %d: %w", p.ID, err)
		}
	}
	return nil
}

// discardProducts removes products created for a quotation that could not
// be stored. Failures are only logged.
func (c *Client) discardProducts(ctx context.Context, refs []ref) {
	for _, r := range refs {
		if err := c.do(ctx, http.MethodDelete, "/products/"+url.PathEscape(r.DocumentID), nil, nil, nil); err != nil {
			log.Printf("cms: discard product %s: %v", r.DocumentID, err)
		}
	}
}
