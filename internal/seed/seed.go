package seed

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/Simplici0/cotizaciones/internal/pricing"
	"github.com/Simplici0/cotizaciones/internal/users"
)

const (
	demoDocumentID  = "demo-cotizacion"
	demoTitle       = "Cotización de ejemplo"
	demoQuoteNumber = "COT-0001"
)

// Config contains the values required by startup seed.
type Config struct {
	AdminEmail    string
	AdminPassword string
	// Demo adds a sample quotation so a fresh development database has
	// something to show.
	Demo bool
}

// Stats contains seed operation counters.
type Stats struct {
	Inserts int
	Updates int
}

type demoProduct struct {
	vendor, name, contact, uom string
	item                       pricing.LineItem
}

var demoProducts = []demoProduct{
	{"Aceros del Norte", "Tornillo hexagonal 3/8", "ventas@acerosnorte.mx", "PZA",
		pricing.LineItem{CostPerUnit: 4.5, AnnualQuantity: 12000, Freight: 1800, MarginPercent: 25, ExtraMargin: pricing.ExtraMarginNo}},
	{"Plásticos GDL", "Tapón PVC 2in", "cotiza@plasticosgdl.mx", "PZA",
		pricing.LineItem{CostPerUnit: 12, AnnualQuantity: 3000, Freight: 950, MarginPercent: 30, ExtraMargin: pricing.ExtraMarginYes}},
	{"Empaques MTY", "Caja corrugada 40x30", "", "KIT",
		pricing.LineItem{CostPerUnit: 18.75, AnnualQuantity: 800, Freight: 0, MarginPercent: 18, ExtraMargin: pricing.ExtraMarginNo}},
}

// Run executes the startup seed in an idempotent way.
func Run(db *sql.DB, cfg Config) (Stats, error) {
	tx, err := db.Begin()
	if err != nil {
		return Stats{}, fmt.Errorf("begin seed transaction: %w", err)
	}

	stats := Stats{}

	if err := seedAdmin(tx, cfg.AdminEmail, cfg.AdminPassword, &stats); err != nil {
		_ = tx.Rollback()
		return Stats{}, err
	}
	if cfg.Demo {
		if err := ensureDemoQuotation(tx, cfg.AdminEmail, &stats); err != nil {
			_ = tx.Rollback()
			return Stats{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return Stats{}, fmt.Errorf("commit seed transaction: %w", err)
	}

	return stats, nil
}

// seedAdmin creates the admin account, or promotes an existing account with
// the same email to admin.
func seedAdmin(tx *sql.Tx, email, password string, stats *Stats) error {
	if email == "" || password == "" {
		return nil
	}

	var role string
	err := tx.QueryRow(`SELECT role FROM users WHERE lower(email) = lower(?)`, email).Scan(&role)
	switch {
	case err == nil:
		if role == string(users.RoleAdmin) {
			return nil
		}
		if _, err := tx.Exec(`
			UPDATE users SET role = ?, updated_at = CURRENT_TIMESTAMP WHERE lower(email) = lower(?)
		`, string(users.RoleAdmin), email); err != nil {
			return fmt.Errorf("promote admin user: %w", err)
		}
		stats.Updates++
		return nil
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("check admin user existence: %w", err)
	}

	hash, err := users.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT INTO users (email, username, password_hash, role) VALUES (?, ?, ?, ?)
	`, email, users.UsernameFromEmail(email), hash, string(users.RoleAdmin)); err != nil {
		return fmt.Errorf("insert admin user: %w", err)
	}
	stats.Inserts++
	return nil
}

func ensureDemoQuotation(tx *sql.Tx, author string, stats *Stats) error {
	var exists bool
	if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM quotations WHERE document_id = ? LIMIT 1)`, demoDocumentID).Scan(&exists); err != nil {
		return fmt.Errorf("check demo quotation existence: %w", err)
	}
	if exists {
		return nil
	}

	var quotationID int64
	if err := tx.QueryRow(`
		INSERT INTO quotations (document_id, title, quote_number, estado, updated_by)
		VALUES (?, ?, ?, 'VIGENTE', ?)
		RETURNING id
	`, demoDocumentID, demoTitle, demoQuoteNumber, author).Scan(&quotationID); err != nil {
		return fmt.Errorf("insert demo quotation: %w", err)
	}
	stats.Inserts++

	for i, p := range demoProducts {
		item := pricing.Derive(p.item)
		if _, err := tx.Exec(`
			INSERT INTO products (
				quotation_id, position, vendor, name, quotation_contact, uom, currency,
				cost_ea, annual_qty, freight, margin, extra_margin,
				ext_precost, price_ea, ext_price_sima, final_price_ea, ext_price_mxn
			) VALUES (?, ?, ?, ?, ?, ?, 'MXN', ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			quotationID, i, p.vendor, p.name, p.contact, p.uom,
			item.CostPerUnit, item.AnnualQuantity, item.Freight, item.MarginPercent, string(item.ExtraMargin),
			item.ExtendedCost, item.UnitPrice, item.ExtendedPriceBeforeExtra, item.FinalUnitPrice, item.ExtendedFinalPrice,
		); err != nil {
			return fmt.Errorf("insert demo product %d: %w", i, err)
		}
		stats.Inserts++
	}
	return nil
}
