package models

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/hybrid-bistoon/anbar/internal/utils"
	"gorm.io/datatypes"
)

// Product is one catalog record keyed by its 13-digit unit barcode
type Product struct {
	ID          uint           `gorm:"primaryKey" json:"-"`
	Code        string         `gorm:"uniqueIndex;size:13;not null" json:"code"`
	GeneratedAt time.Time      `json:"generatedAt"`
	Name        string         `gorm:"index" json:"name"`
	Model       string         `json:"model"`
	BoxNum      string         `json:"box_num"`    // units per carton, free text from imports
	SingleNum   int            `gorm:"default:1" json:"single_num"`
	BoxCode     string         `json:"box_code"`
	InStock     datatypes.JSON `gorm:"type:text" json:"in_stock,omitempty"` // number or text
	UpdatedAt   time.Time      `json:"updatedAt"`
}

func (Product) TableName() string { return "products" }

// CartonUnits parses BoxNum, falling back to 1 when absent or invalid
func (p Product) CartonUnits() int {
	return PositiveOr(p.BoxNum, 1)
}

// UnitMultiplier returns SingleNum, falling back to 1
func (p Product) UnitMultiplier() int {
	if p.SingleNum > 0 {
		return p.SingleNum
	}
	return 1
}

// PositiveOr parses s as a positive integer, returning def otherwise.
// Persian digits are accepted.
func PositiveOr(s string, def int) int {
	n, err := strconv.Atoi(utils.NormalizeDigits(s))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// InStockValue decodes the stored stock hint into a float64, a string or nil
func (p Product) InStockValue() any {
	if len(p.InStock) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(p.InStock, &v); err != nil {
		return nil
	}
	return v
}
