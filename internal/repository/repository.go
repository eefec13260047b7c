// Package repository is the storage boundary. Services receive a Store
// explicitly; there is no process-wide connection.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hybrid-bistoon/anbar/internal/models"
	"gorm.io/datatypes"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate key")
	ErrInvalidID = errors.New("invalid id")
	// ErrConflict means a conditional write matched nothing: the status or
	// counter guard no longer held when the store evaluated it.
	ErrConflict = errors.New("conditional update not applied")
)

// ProductFields is a partial product update; nil fields are left untouched
type ProductFields struct {
	Name      *string
	Model     *string
	BoxNum    *string
	BoxCode   *string
	SingleNum *int
	InStock   datatypes.JSON
}

// Empty reports whether no field is set
func (f ProductFields) Empty() bool {
	return f.Name == nil && f.Model == nil && f.BoxNum == nil &&
		f.BoxCode == nil && f.SingleNum == nil && len(f.InStock) == 0
}

// Columns lists the storage names of the set fields
func (f ProductFields) Columns() []string {
	var cols []string
	if f.Name != nil {
		cols = append(cols, "name")
	}
	if f.Model != nil {
		cols = append(cols, "model")
	}
	if f.BoxNum != nil {
		cols = append(cols, "box_num")
	}
	if f.BoxCode != nil {
		cols = append(cols, "box_code")
	}
	if f.SingleNum != nil {
		cols = append(cols, "single_num")
	}
	if len(f.InStock) > 0 {
		cols = append(cols, "in_stock")
	}
	return cols
}

// ProductChange is one update-only write keyed by exact code
type ProductChange struct {
	Code   string
	Fields ProductFields
}

// RowError reports a single failed write inside a batch
type RowError struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// SearchQuery filters the catalog. Name is a case-insensitive substring,
// Code an exact match; at most one is expected to be set.
type SearchQuery struct {
	Name   string
	Code   string
	Offset int
	Limit  int
}

// InvoiceFilter narrows invoice listings. Zero values mean "any".
type InvoiceFilter struct {
	Status models.InvoiceStatus
	From   *time.Time
	To     *time.Time // exclusive
	Serial string
}

// Products is the catalog collection
type Products interface {
	// CreateProduct inserts a new product, ErrDuplicate when the code exists
	CreateProduct(ctx context.Context, p *models.Product) error
	FindProduct(ctx context.Context, code string) (*models.Product, error)
	FindProducts(ctx context.Context, codes []string) ([]models.Product, error)
	// UpdateProduct applies f to an existing product, ErrNotFound otherwise
	UpdateProduct(ctx context.Context, code string, f ProductFields) error
	// ApplyProductChanges writes every change independently. Failed rows are
	// reported and never stop the others. Absent codes are not created.
	ApplyProductChanges(ctx context.Context, changes []ProductChange) ([]RowError, error)
	// SearchProducts returns one page sorted named-first, then name, then code
	SearchProducts(ctx context.Context, q SearchQuery) ([]models.Product, int64, error)
	// FindProductsByName returns products whose name contains any of the substrings
	FindProductsByName(ctx context.Context, substrings []string, limit int) ([]models.Product, error)
}

// Invoices is the picking invoice collection
type Invoices interface {
	CreateInvoice(ctx context.Context, inv *models.Invoice) error
	FindInvoice(ctx context.Context, id string) (*models.Invoice, error)
	// ListInvoices returns matching invoices newest first, lines included
	ListInvoices(ctx context.Context, f InvoiceFilter) ([]models.Invoice, error)
	// TransitionInvoice sets the status to `to` only while the current status
	// is one of `from`; ErrConflict when it is not, ErrNotFound when absent
	TransitionInvoice(ctx context.Context, id string, from []models.InvoiceStatus, to models.InvoiceStatus) error
	// IncrementCollected atomically adds delta to a line's collected count of
	// a non-terminal invoice. The result must stay >= 0 and, when bounded,
	// <= quantity; otherwise nothing is written and ErrConflict is returned.
	IncrementCollected(ctx context.Context, id, barcode string, delta int, bounded bool) error
}

// Users stores warehouse accounts
type Users interface {
	CreateUser(ctx context.Context, u *models.UserAuth) error
	FindUserByUsername(ctx context.Context, username string) (*models.UserAuth, error)
	TouchLogin(ctx context.Context, id string, at time.Time) error
}

// Store bundles every collection behind one backend
type Store interface {
	Products
	Invoices
	Users
	Migrate(ctx context.Context) error
	Close() error
}

// NonTerminal lists the states in which an invoice may still change
var NonTerminal = []models.InvoiceStatus{models.InvoiceStatusPending, models.InvoiceStatusInProgress}
