// Package billing charges tenants for contacts beyond their plan quota.
package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/invoiceitem"

	"github.com/ignite/audience-core/internal/domain"
	"github.com/ignite/audience-core/internal/pkg/logger"
)

var log = logger.Named("billing")

// ErrInvalidPrice is returned when the configured price is negative.
var ErrInvalidPrice = errors.New("billing: price per contact must not be negative")

// Charger bills contacts beyond the tenant's plan quota.
type Charger interface {
	ChargeContactOverage(ctx context.Context, tenantID, customerID string, imported, existing int) error
}

// InvoiceItems creates pending invoice items on a customer.
type InvoiceItems interface {
	New(params *stripe.InvoiceItemParams) (*stripe.InvoiceItem, error)
}

// CompanyReader loads the tenant's plan limit.
type CompanyReader interface {
	Get(ctx context.Context, id string) (*domain.Company, error)
}

// Config holds overage pricing.
type Config struct {
	PricePerContact decimal.Decimal
	Currency        string
}

// Overage returns how many of the imported contacts push the tenant past
// limit, given existing contacts before the import. A limit of zero or less
// means no quota.
func Overage(imported, existing, limit int) int {
	if limit <= 0 || imported <= 0 {
		return 0
	}
	over := func(n int) int {
		if n > limit {
			return n - limit
		}
		return 0
	}
	return over(imported+existing) - over(existing)
}

// Amount prices contacts at price each, rounded to cents.
func Amount(price decimal.Decimal, contacts int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(contacts))).Round(2)
}

// StripeCharger bills overage as a Stripe invoice item on the tenant's
// customer.
type StripeCharger struct {
	companies CompanyReader
	items     InvoiceItems
	cfg       Config
}

// NewStripeInvoiceItems returns the Stripe invoice item client for key.
func NewStripeInvoiceItems(key string) InvoiceItems {
	return &invoiceitem.Client{B: stripe.GetBackend(stripe.APIBackend), Key: key}
}

func NewStripeCharger(companies CompanyReader, items InvoiceItems, cfg Config) (*StripeCharger, error) {
	if cfg.PricePerContact.IsNegative() {
		return nil, ErrInvalidPrice
	}
	if cfg.Currency == "" {
		cfg.Currency = string(stripe.CurrencyUSD)
	}
	return &StripeCharger{companies: companies, items: items, cfg: cfg}, nil
}

func (c *StripeCharger) ChargeContactOverage(ctx context.Context, tenantID, customerID string, imported, existing int) error {
	if customerID == "" {
		return nil
	}
	company, err := c.companies.Get(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("load company: %w", err)
	}

	count := Overage(imported, existing, company.ContactLimit)
	if count == 0 {
		return nil
	}
	amount := Amount(c.cfg.PricePerContact, count)
	cents := amount.Shift(2).IntPart()
	if cents == 0 {
		return nil
	}

	params := &stripe.InvoiceItemParams{
		Customer:    stripe.String(customerID),
		Amount:      stripe.Int64(cents),
		Currency:    stripe.String(c.cfg.Currency),
		Description: stripe.String(fmt.Sprintf("Contact overage: %d contacts", count)),
	}
	params.Context = ctx
	params.AddMetadata("company_id", tenantID)
	params.AddMetadata("contacts", fmt.Sprint(count))

	item, err := c.items.New(params)
	if err != nil {
		return fmt.Errorf("create invoice item: %w", err)
	}
	log.Info("overage charged", "company_id", tenantID, "contacts", count, "amount", amount.StringFixed(2), "invoice_item", item.ID)
	return nil
}

// LogCharger records overage without billing anyone. Used when no Stripe key
// is configured.
type LogCharger struct {
	companies CompanyReader
}

func NewLogCharger(companies CompanyReader) *LogCharger {
	return &LogCharger{companies: companies}
}

func (c *LogCharger) ChargeContactOverage(ctx context.Context, tenantID, customerID string, imported, existing int) error {
	company, err := c.companies.Get(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("load company: %w", err)
	}
	if n := Overage(imported, existing, company.ContactLimit); n > 0 {
		log.Warn("overage not billed", "company_id", tenantID, "customer_id", customerID, "contacts", n)
	}
	return nil
}
