package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InvoiceStatus is the picking lifecycle state
type InvoiceStatus string

const (
	InvoiceStatusPending    InvoiceStatus = "pending"     // Created, nobody picking yet
	InvoiceStatusInProgress InvoiceStatus = "in-progress" // Being scanned
	InvoiceStatusDone       InvoiceStatus = "done"        // Every line complete
	InvoiceStatusSkipped    InvoiceStatus = "skipped"     // Closed with problems, manual follow-up
)

// Valid reports whether s is one of the four lifecycle states
func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceStatusPending, InvoiceStatusInProgress, InvoiceStatusDone, InvoiceStatusSkipped:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed
func (s InvoiceStatus) Terminal() bool {
	return s == InvoiceStatusDone || s == InvoiceStatusSkipped
}

// Invoice is one picking job
type Invoice struct {
	ID          string        `gorm:"primaryKey;size:36" json:"id"`
	Name        string        `gorm:"default:''" json:"name"`
	CreatedAt   *time.Time    `gorm:"index" json:"createdAt,omitempty"`
	CreatedAtFa string        `json:"createdAtFa"` // display only; the sole date on legacy records
	Status      InvoiceStatus `gorm:"size:16;index;default:pending" json:"status"`
	UpdatedAt   time.Time     `json:"updatedAt"`

	Items []InvoiceLine `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE" json:"items"`
}

func (Invoice) TableName() string { return "invoices" }

// BeforeCreate assigns a UUID when the caller did not
func (i *Invoice) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}

// Line returns the index of the line for barcode, or -1
func (i *Invoice) Line(barcode string) int {
	for idx := range i.Items {
		if i.Items[idx].Barcode == barcode {
			return idx
		}
	}
	return -1
}

// LineByBoxCode returns the index of the line whose carton label is code, or -1
func (i *Invoice) LineByBoxCode(code string) int {
	if code == "" {
		return -1
	}
	for idx := range i.Items {
		if i.Items[idx].BoxCode == code {
			return idx
		}
	}
	return -1
}

// FirstIncomplete returns the first line whose collected count differs from
// its quantity, or nil when every line is complete
func (i *Invoice) FirstIncomplete() *InvoiceLine {
	for idx := range i.Items {
		if i.Items[idx].Collected != i.Items[idx].Quantity {
			return &i.Items[idx]
		}
	}
	return nil
}

// Totals sums required and collected units across lines
func (i *Invoice) Totals() (quantity, collected int) {
	for _, it := range i.Items {
		quantity += it.Quantity
		collected += it.Collected
	}
	return
}

// InvoiceLine is one product row of an invoice. Metadata is a snapshot taken
// when the invoice was created and is not re-synced with the catalog.
type InvoiceLine struct {
	ID        uint   `gorm:"primaryKey" json:"-"`
	InvoiceID string `gorm:"size:36;uniqueIndex:idx_invoice_barcode;not null" json:"-"`
	Position  int    `json:"-"`
	Barcode   string `gorm:"size:13;uniqueIndex:idx_invoice_barcode;not null" json:"barcode"`
	Quantity  int    `json:"quantity"`
	Collected int    `gorm:"default:0" json:"collected"`
	Name      string `json:"name"`
	Model     string `json:"model"`
	BoxNum    string `json:"box_num"`
	BoxCode   string `json:"box_code"`
	SingleNum int    `gorm:"default:1" json:"single_num"`
}

func (InvoiceLine) TableName() string { return "invoice_lines" }

// CartonUnits is the number of units one carton scan contributes
func (l InvoiceLine) CartonUnits() int {
	return PositiveOr(l.BoxNum, 1)
}

// UnitMultiplier is the number of units one unit scan contributes
func (l InvoiceLine) UnitMultiplier() int {
	if l.SingleNum > 0 {
		return l.SingleNum
	}
	return 1
}
