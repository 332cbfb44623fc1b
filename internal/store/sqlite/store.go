// Package sqlite implements quotation.Store on a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Simplici0/cotizaciones/internal/pricing"
	"github.com/Simplici0/cotizaciones/internal/quotation"
)

// Store persists quotations, products and field comments.
type Store struct {
	db *sql.DB
}

var _ quotation.Store = (*Store)(nil)

// New returns a Store backed by db. The schema must already be migrated.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const quotationColumns = `id, document_id, title, quote_number, estado, updated_by, created_at, updated_at`

const productColumns = `
	id, quotation_id, vendor, name, quotation_contact, uom, custom_uom, currency, comments_link,
	cost_ea, annual_qty, freight, margin, extra_margin,
	ext_precost, price_ea, ext_price_sima, final_price_ea, ext_price_mxn,
	created_at, updated_at`

func (s *Store) Create(ctx context.Context, q quotation.Quotation) (quotation.Quotation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return quotation.Quotation{}, fmt.Errorf("begin create transaction: %w", err)
	}

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO quotations (document_id, title, quote_number, estado, updated_by)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id
	`, q.DocumentID, q.Title, q.QuoteNumber, string(q.Status), q.UpdatedBy).Scan(&id)
	if err != nil {
		_ = tx.Rollback()
		return quotation.Quotation{}, fmt.Errorf("insert quotation: %w", err)
	}

	for i, p := range q.Products {
		if _, err := insertProduct(ctx, tx, id, i, p); err != nil {
			_ = tx.Rollback()
			return quotation.Quotation{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return quotation.Quotation{}, fmt.Errorf("commit create transaction: %w", err)
	}

	return s.Get(ctx, q.DocumentID)
}

func (s *Store) Update(ctx context.Context, q quotation.Quotation) (quotation.Quotation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return quotation.Quotation{}, fmt.Errorf("begin update transaction: %w", err)
	}

	var id int64
	err = tx.QueryRowContext(ctx, `
		UPDATE quotations
		SET
			title = ?,
			quote_number = ?,
			estado = ?,
			updated_by = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE document_id = ?
		RETURNING id
	`, q.Title, q.QuoteNumber, string(q.Status), q.UpdatedBy, q.DocumentID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		_ = tx.Rollback()
		return quotation.Quotation{}, quotation.ErrNotFound
	}
	if err != nil {
		_ = tx.Rollback()
		return quotation.Quotation{}, fmt.Errorf("update quotation: %w", err)
	}

	kept := make([]any, 0, len(q.Products))
	for i, p := range q.Products {
		if p.ID == 0 {
			newID, err := insertProduct(ctx, tx, id, i, p)
			if err != nil {
				_ = tx.Rollback()
				return quotation.Quotation{}, err
			}
			kept = append(kept, newID)
			continue
		}
		if err := updateProduct(ctx, tx, id, i, p); err != nil {
			_ = tx.Rollback()
			return quotation.Quotation{}, err
		}
		kept = append(kept, p.ID)
	}

	keep := ""
	if len(kept) > 0 {
		keep = ` AND id NOT IN (` + placeholders(len(kept)) + `)`
	}
	args := append([]any{id}, kept...)
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM field_comments
		WHERE product_id IN (SELECT id FROM products WHERE quotation_id = ?`+keep+`)
	`, args...); err != nil {
		_ = tx.Rollback()
		return quotation.Quotation{}, fmt.Errorf("delete comments of removed products: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM products WHERE quotation_id = ?`+keep, args...); err != nil {
		_ = tx.Rollback()
		return quotation.Quotation{}, fmt.Errorf("delete removed products: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return quotation.Quotation{}, fmt.Errorf("commit update transaction: %w", err)
	}

	return s.Get(ctx, q.DocumentID)
}

func (s *Store) Get(ctx context.Context, documentID string) (quotation.Quotation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+quotationColumns+` FROM quotations WHERE document_id = ?`, documentID)
	q, err := scanQuotation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return quotation.Quotation{}, quotation.ErrNotFound
	}
	if err != nil {
		return quotation.Quotation{}, fmt.Errorf("query quotation: %w", err)
	}

	byQuotation, err := loadProducts(ctx, s.db, []int64{q.ID})
	if err != nil {
		return quotation.Quotation{}, err
	}
	q.Products = byQuotation[q.ID]
	if q.Products == nil {
		q.Products = []quotation.Product{}
	}
	return q, nil
}

func (s *Store) List(ctx context.Context, f quotation.ListFilter) (quotation.Page, error) {
	where := `WHERE (? = '' OR title LIKE ? ESCAPE '\' OR quote_number LIKE ? ESCAPE '\') AND (? = '' OR estado = ?)`
	search := "%" + likeEscaper.Replace(f.Query) + "%"
	args := []any{f.Query, search, search, string(f.Status), string(f.Status)}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM quotations `+where, args...).Scan(&total); err != nil {
		return quotation.Page{}, fmt.Errorf("count quotations: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+quotationColumns+`
		FROM quotations
		`+where+`
		ORDER BY datetime(created_at) DESC, id DESC
		LIMIT ? OFFSET ?
	`, append(args, f.PageSize, f.Offset())...)
	if err != nil {
		return quotation.Page{}, fmt.Errorf("query quotations: %w", err)
	}
	defer rows.Close()

	quotations := make([]quotation.Quotation, 0)
	ids := make([]int64, 0)
	for rows.Next() {
		q, err := scanQuotation(rows)
		if err != nil {
			return quotation.Page{}, fmt.Errorf("scan quotation: %w", err)
		}
		quotations = append(quotations, q)
		ids = append(ids, q.ID)
	}
	if err := rows.Err(); err != nil {
		return quotation.Page{}, fmt.Errorf("iterate quotations: %w", err)
	}
	rows.Close()

	byQuotation, err := loadProducts(ctx, s.db, ids)
	if err != nil {
		return quotation.Page{}, err
	}
	for i := range quotations {
		quotations[i].Products = byQuotation[quotations[i].ID]
		if quotations[i].Products == nil {
			quotations[i].Products = []quotation.Product{}
		}
	}

	return quotation.Page{
		Quotations: quotations,
		Pagination: quotation.NewPagination(f, total),
	}, nil
}

func (s *Store) UpdateStatus(ctx context.Context, documentID string, status quotation.Status, editor string) (quotation.Quotation, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE quotations
		SET
			estado = ?,
			updated_by = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE document_id = ?
	`, string(status), editor, documentID)
	if err != nil {
		return quotation.Quotation{}, fmt.Errorf("update quotation status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return quotation.Quotation{}, fmt.Errorf("update quotation status: %w", err)
	}
	if affected == 0 {
		return quotation.Quotation{}, quotation.ErrNotFound
	}

	return s.Get(ctx, documentID)
}

func (s *Store) Delete(ctx context.Context, documentID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete transaction: %w", err)
	}

	var id int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM quotations WHERE document_id = ?`, documentID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		_ = tx.Rollback()
		return quotation.ErrNotFound
	}
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("query quotation: %w", err)
	}

	for _, stmt := range []string{
		`DELETE FROM field_comments WHERE product_id IN (SELECT id FROM products WHERE quotation_id = ?)`,
		`DELETE FROM products WHERE quotation_id = ?`,
		`DELETE FROM quotations WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("delete quotation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete transaction: %w", err)
	}
	return nil
}

func (s *Store) AddComment(ctx context.Context, c quotation.Comment) (quotation.Comment, error) {
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO field_comments (product_id, field, body, author)
		VALUES (?, ?, ?, ?)
		RETURNING id, created_at
	`, c.ProductID, c.Field, c.Body, c.Author).Scan(&c.ID, &createdAt)
	if err != nil {
		return quotation.Comment{}, fmt.Errorf("insert field comment: %w", err)
	}
	c.CreatedAt = parseTimestamp(createdAt)
	return c, nil
}

func (s *Store) ListComments(ctx context.Context, productIDs []int64) ([]quotation.Comment, error) {
	comments := make([]quotation.Comment, 0)
	if len(productIDs) == 0 {
		return comments, nil
	}

	args := make([]any, len(productIDs))
	for i, id := range productIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, field, body, author, created_at
		FROM field_comments
		WHERE product_id IN (`+placeholders(len(args))+`)
		ORDER BY datetime(created_at), id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query field comments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			c         quotation.Comment
			createdAt string
		)
		if err := rows.Scan(&c.ID, &c.ProductID, &c.Field, &c.Body, &c.Author, &createdAt); err != nil {
			return nil, fmt.Errorf("scan field comment: %w", err)
		}
		c.CreatedAt = parseTimestamp(createdAt)
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate field comments: %w", err)
	}

	return comments, nil
}

func insertProduct(ctx context.Context, q querier, quotationID int64, position int, p quotation.Product) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO products (
			quotation_id, position, vendor, name, quotation_contact, uom, custom_uom, currency, comments_link,
			cost_ea, annual_qty, freight, margin, extra_margin,
			ext_precost, price_ea, ext_price_sima, final_price_ea, ext_price_mxn
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`,
		quotationID, position, p.Vendor, p.Name, p.QuotationContact, p.UOM, p.CustomUOM, string(p.Currency), p.CommentsLink,
		p.CostPerUnit, p.AnnualQuantity, p.Freight, p.MarginPercent, string(p.ExtraMargin),
		p.ExtendedCost, p.UnitPrice, p.ExtendedPriceBeforeExtra, p.FinalUnitPrice, p.ExtendedFinalPrice,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert product: %w", err)
	}
	return id, nil
}

func updateProduct(ctx context.Context, q querier, quotationID int64, position int, p quotation.Product) error {
	result, err := q.ExecContext(ctx, `
		UPDATE products
		SET
			position = ?,
			vendor = ?,
			name = ?,
			quotation_contact = ?,
			uom = ?,
			custom_uom = ?,
			currency = ?,
			comments_link = ?,
			cost_ea = ?,
			annual_qty = ?,
			freight = ?,
			margin = ?,
			extra_margin = ?,
			ext_precost = ?,
			price_ea = ?,
			ext_price_sima = ?,
			final_price_ea = ?,
			ext_price_mxn = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND quotation_id = ?
	`,
		position, p.Vendor, p.Name, p.QuotationContact, p.UOM, p.CustomUOM, string(p.Currency), p.CommentsLink,
		p.CostPerUnit, p.AnnualQuantity, p.Freight, p.MarginPercent, string(p.ExtraMargin),
		p.ExtendedCost, p.UnitPrice, p.ExtendedPriceBeforeExtra, p.FinalUnitPrice, p.ExtendedFinalPrice,
		p.ID, quotationID,
	)
	if err != nil {
		return fmt.Errorf("update product %d: %w", p.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update product %d: %w", p.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("update product %d: %w", p.ID, quotation.ErrNotFound)
	}
	return nil
}

func loadProducts(ctx context.Context, q querier, quotationIDs []int64) (map[int64][]quotation.Product, error) {
	out := make(map[int64][]quotation.Product, len(quotationIDs))
	if len(quotationIDs) == 0 {
		return out, nil
	}

	args := make([]any, len(quotationIDs))
	for i, id := range quotationIDs {
		args[i] = id
	}

	rows, err := q.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE quotation_id IN (`+placeholders(len(args))+`)
		ORDER BY quotation_id, position, id
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p                    quotation.Product
			quotationID          int64
			currency, extra      string
			createdAt, updatedAt string
		)
		if err := rows.Scan(
			&p.ID, &quotationID, &p.Vendor, &p.Name, &p.QuotationContact, &p.UOM, &p.CustomUOM, &currency, &p.CommentsLink,
			&p.CostPerUnit, &p.AnnualQuantity, &p.Freight, &p.MarginPercent, &extra,
			&p.ExtendedCost, &p.UnitPrice, &p.ExtendedPriceBeforeExtra, &p.FinalUnitPrice, &p.ExtendedFinalPrice,
			&createdAt, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		p.Currency = quotation.Currency(currency)
		p.ExtraMargin = pricing.ExtraMargin(extra)
		p.CreatedAt = parseTimestamp(createdAt)
		p.UpdatedAt = parseTimestamp(updatedAt)
		out[quotationID] = append(out[quotationID], p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}

	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanQuotation(row scanner) (quotation.Quotation, error) {
	var (
		q                    quotation.Quotation
		status               string
		createdAt, updatedAt string
	)
	if err := row.Scan(&q.ID, &q.DocumentID, &q.Title, &q.QuoteNumber, &status, &q.UpdatedBy, &createdAt, &updatedAt); err != nil {
		return quotation.Quotation{}, err
	}
	q.Status = quotation.Status(status)
	q.CreatedAt = parseTimestamp(createdAt)
	q.UpdatedAt = parseTimestamp(updatedAt)
	return q, nil
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05",
}

// parseTimestamp reads CURRENT_TIMESTAMP text, or the RFC 3339 form the
// driver produces for DATETIME columns. Unparseable values become the zero time.
func parseTimestamp(raw string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// likeEscaper makes LIKE wildcards in user input match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
