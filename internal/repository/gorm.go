package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hybrid-bistoon/anbar/internal/models"
	"gorm.io/gorm"
)

// GormStore keeps the catalog and invoices in a SQL database through gorm.
// Invoice lines live in their own table so counters can be incremented
// with a single conditional UPDATE.
type GormStore struct {
	db      *gorm.DB
	onClose func() error
}

// NewGormStore wraps db. onClose, when set, replaces the default close of
// the underlying sql.DB (the embedded database needs its own shutdown).
func NewGormStore(db *gorm.DB, onClose func() error) *GormStore {
	return &GormStore{db: db, onClose: onClose}
}

// Migrate synchronizes the schema
func (s *GormStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&models.Product{},
		&models.Invoice{},
		&models.InvoiceLine{},
		&models.UserAuth{},
	)
}

// Close releases the connection pool
func (s *GormStore) Close() error {
	if s.onClose != nil {
		return s.onClose()
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ---------------------------------------------------------------------------
// Products
// ---------------------------------------------------------------------------

func (s *GormStore) CreateProduct(ctx context.Context, p *models.Product) error {
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create product: %w", err)
	}
	return nil
}

func (s *GormStore) FindProduct(ctx context.Context, code string) (*models.Product, error) {
	var p models.Product
	err := s.db.WithContext(ctx).Where("code = ?", code).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find product %s: %w", code, err)
	}
	return &p, nil
}

func (s *GormStore) FindProducts(ctx context.Context, codes []string) ([]models.Product, error) {
	var out []models.Product
	if len(codes) == 0 {
		return out, nil
	}
	// Chunk to stay under driver bind-variable limits on large sheets
	for _, chunk := range chunkStrings(uniqueStrings(codes), 500) {
		var part []models.Product
		if err := s.db.WithContext(ctx).Where("code IN ?", chunk).Find(&part).Error; err != nil {
			return nil, fmt.Errorf("find products: %w", err)
		}
		out = append(out, part...)
	}
	return out, nil
}

func (s *GormStore) UpdateProduct(ctx context.Context, code string, f ProductFields) error {
	if f.Empty() {
		return nil
	}
	res := s.db.WithContext(ctx).Model(&models.Product{}).Where("code = ?", code).Updates(gormFields(f))
	if res.Error != nil {
		return fmt.Errorf("update product %s: %w", code, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) ApplyProductChanges(ctx context.Context, changes []ProductChange) ([]RowError, error) {
	var failed []RowError
	for _, ch := range changes {
		if err := ctx.Err(); err != nil {
			return failed, err
		}
		if ch.Fields.Empty() {
			continue
		}
		err := s.db.WithContext(ctx).Model(&models.Product{}).
			Where("code = ?", ch.Code).
			Updates(gormFields(ch.Fields)).Error
		if err != nil {
			failed = append(failed, RowError{Code: ch.Code, Error: err.Error()})
		}
	}
	return failed, nil
}

func (s *GormStore) SearchProducts(ctx context.Context, q SearchQuery) ([]models.Product, int64, error) {
	base := s.db.WithContext(ctx).Model(&models.Product{})
	switch {
	case q.Code != "":
		base = base.Where("code = ?", q.Code)
	case q.Name != "":
		base = base.Where("LOWER(name) LIKE ? ESCAPE '\\'", "%"+escapeLike(strings.ToLower(q.Name))+"%")
	}

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	var out []models.Product
	err := base.
		Order("CASE WHEN name IS NULL OR name = '' THEN 1 ELSE 0 END").
		Order("name ASC").
		Order("code ASC").
		Offset(q.Offset).
		Limit(q.Limit).
		Find(&out).Error
	if err != nil {
		return nil, 0, fmt.Errorf("search products: %w", err)
	}
	return out, total, nil
}

func (s *GormStore) FindProductsByName(ctx context.Context, substrings []string, limit int) ([]models.Product, error) {
	if len(substrings) == 0 {
		return nil, nil
	}
	clauses := make([]string, 0, len(substrings))
	args := make([]any, 0, len(substrings))
	for _, sub := range substrings {
		clauses = append(clauses, "name LIKE ? ESCAPE '\\'")
		args = append(args, "%"+escapeLike(sub)+"%")
	}

	var out []models.Product
	q := s.db.WithContext(ctx).Where(strings.Join(clauses, " OR "), args...).Order("code ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("find products by name: %w", err)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Invoices
// ---------------------------------------------------------------------------

func (s *GormStore) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	for i := range inv.Items {
		inv.Items[i].Position = i
	}
	if err := s.db.WithContext(ctx).Create(inv).Error; err != nil {
		return fmt.Errorf("create invoice: %w", err)
	}
	return nil
}

func (s *GormStore) FindInvoice(ctx context.Context, id string) (*models.Invoice, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrInvalidID
	}
	var inv models.Invoice
	err := s.db.WithContext(ctx).Preload("Items", orderLines).First(&inv, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find invoice %s: %w", id, err)
	}
	return &inv, nil
}

func (s *GormStore) ListInvoices(ctx context.Context, f InvoiceFilter) ([]models.Invoice, error) {
	q := s.db.WithContext(ctx).Model(&models.Invoice{}).Preload("Items", orderLines)
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at < ?", *f.To)
	}
	if f.Serial != "" {
		q = q.Where("LOWER(id) LIKE ? ESCAPE '\\'", "%"+escapeLike(strings.ToLower(f.Serial))+"%")
	}

	var out []models.Invoice
	if err := q.Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	return out, nil
}

func (s *GormStore) TransitionInvoice(ctx context.Context, id string, from []models.InvoiceStatus, to models.InvoiceStatus) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrInvalidID
	}
	res := s.db.WithContext(ctx).Model(&models.Invoice{}).
		Where("id = ? AND status IN ?", id, statusStrings(from)).
		Update("status", string(to))
	if res.Error != nil {
		return fmt.Errorf("transition invoice %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return s.missingOrConflict(ctx, id)
	}
	return nil
}

func (s *GormStore) IncrementCollected(ctx context.Context, id, barcode string, delta int, bounded bool) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrInvalidID
	}
	open := s.db.Model(&models.Invoice{}).Select("id").
		Where("id = ? AND status IN ?", id, statusStrings(NonTerminal))

	q := s.db.WithContext(ctx).Model(&models.InvoiceLine{}).
		Where("invoice_id = ? AND barcode = ?", id, barcode).
		Where("invoice_id IN (?)", open).
		Where("collected + ? >= 0", delta)
	if bounded {
		q = q.Where("collected + ? <= quantity", delta)
	}

	res := q.UpdateColumn("collected", gorm.Expr("collected + ?", delta))
	if res.Error != nil {
		return fmt.Errorf("increment line %s/%s: %w", id, barcode, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

func (s *GormStore) missingOrConflict(ctx context.Context, id string) error {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Invoice{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return fmt.Errorf("check invoice %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrConflict
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

func (s *GormStore) CreateUser(ctx context.Context, u *models.UserAuth) error {
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *GormStore) FindUserByUsername(ctx context.Context, username string) (*models.UserAuth, error) {
	var u models.UserAuth
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

func (s *GormStore) TouchLogin(ctx context.Context, id string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&models.UserAuth{}).Where("id = ?", id).Update("last_login", at).Error
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func orderLines(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func gormFields(f ProductFields) map[string]any {
	m := make(map[string]any, 6)
	if f.Name != nil {
		m["name"] = *f.Name
	}
	if f.Model != nil {
		m["model"] = *f.Model
	}
	if f.BoxNum != nil {
		m["box_num"] = *f.BoxNum
	}
	if f.BoxCode != nil {
		m["box_code"] = *f.BoxCode
	}
	if f.SingleNum != nil {
		m["single_num"] = *f.SingleNum
	}
	if len(f.InStock) > 0 {
		m["in_stock"] = f.InStock
	}
	return m
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

func statusStrings(in []models.InvoiceStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func chunkStrings(in []string, size int) [][]string {
	var out [][]string
	for len(in) > size {
		out = append(out, in[:size])
		in = in[size:]
	}
	if len(in) > 0 {
		out = append(out, in)
	}
	return out
}
