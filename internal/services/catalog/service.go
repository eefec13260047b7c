// Package catalog owns the product catalog: barcode allocation, spreadsheet
// reconciliation, manual fixes and search.
package catalog

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hybrid-bistoon/anbar/internal/apperr"
	"github.com/hybrid-bistoon/anbar/internal/ingest"
	"github.com/hybrid-bistoon/anbar/internal/models"
	"github.com/hybrid-bistoon/anbar/internal/repository"
	"github.com/hybrid-bistoon/anbar/internal/utils"
	"go.uber.org/zap"
)

// MaxGenerateAttempts bounds the insert-and-retry loop of Generate
const MaxGenerateAttempts = 5

// ErrCodesExhausted is wrapped into the internal error Generate returns when
// every candidate collided
var ErrCodesExhausted = errors.New("no unique barcode after retries")

// Service handles catalog operations
type Service struct {
	store   repository.Products
	log     *zap.Logger
	kw      ingest.Keywords
	newCode func() string
	now     func() time.Time
}

// Option customises a Service
type Option func(*Service)

// WithCodeSource replaces the random barcode generator
func WithCodeSource(fn func() string) Option {
	return func(s *Service) { s.newCode = fn }
}

// WithKeywords replaces the header keyword table
func WithKeywords(kw ingest.Keywords) Option {
	return func(s *Service) { s.kw = kw }
}

// NewService creates a new catalog service
func NewService(store repository.Products, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:   store,
		log:     log.Named("catalog"),
		kw:      ingest.DefaultKeywords(),
		newCode: utils.GenerateCandidate,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate allocates a new unique barcode and stores it as an empty product
func (s *Service) Generate(ctx context.Context) (*models.Product, error) {
	for attempt := 1; attempt <= MaxGenerateAttempts; attempt++ {
		p := &models.Product{Code: s.newCode(), GeneratedAt: s.now(), SingleNum: 1}
		err := s.store.CreateProduct(ctx, p)
		if err == nil {
			s.log.Info("🏷️  Barcode generated", zap.String("code", p.Code))
			return p, nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Internal("failed to store barcode", err)
		}
		s.log.Warn("Barcode collision, retrying", zap.String("code", p.Code), zap.Int("attempt", attempt))
	}
	return nil, apperr.Internal("failed to generate a unique barcode", ErrCodesExhausted)
}

// Lookup returns one product by its unit code
func (s *Service) Lookup(ctx context.Context, code string) (*models.Product, error) {
	code = utils.NormalizeDigits(code)
	if !utils.IsBarcode(code) {
		return nil, apperr.Validation("barcode must be 13 digits")
	}
	p, err := s.store.FindProduct(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("barcode %s not found", code)
	}
	if err != nil {
		return nil, apperr.Internal("failed to load product", err)
	}
	return p, nil
}

// ---------------------------------------------------------------------------
// Bulk update
// ---------------------------------------------------------------------------

// BulkDebug carries the detection details requested with ?debug=1
type BulkDebug struct {
	HeaderRow int                 `json:"headerRow"`
	Sample    map[string][]string `json:"sample"`
}

// BulkReport summarises a catalog reconciliation. Failed and missing rows
// are results for manual follow-up, not errors.
type BulkReport struct {
	TotalRows       int                   `json:"totalRows"`
	Matched         int                   `json:"matched"`
	Updated         int                   `json:"updated"`
	FieldsChanged   int                   `json:"fieldsChanged"`
	Missing         []string              `json:"missing"`
	Failed          []repository.RowError `json:"failed"`
	ColumnsDetected map[string]int        `json:"columnsDetected,omitempty"`
	Debug           *BulkDebug            `json:"debug,omitempty"`
}

// ImportWorkbook reads a supplier spreadsheet, detects its header and
// reconciles the rows against the catalog
func (s *Service) ImportWorkbook(ctx context.Context, r io.Reader, debug bool) (*BulkReport, error) {
	sheets, err := ingest.ReadWorkbook(r)
	if err != nil {
		return nil, apperr.Validation("cannot read spreadsheet: %v", err)
	}
	grid := ingest.FirstSheet(sheets)

	match, ok := ingest.DetectHeader(grid, s.kw)
	if !ok {
		return nil, apperr.Validation("header not found (barcode)")
	}
	candidates := ingest.ExtractRows(grid, match, s.kw)
	if len(candidates) == 0 {
		return nil, apperr.Validation("no data rows found")
	}

	report, err := s.BulkUpdate(ctx, candidates)
	if err != nil {
		return nil, err
	}
	report.ColumnsDetected = match.Columns
	if debug {
		report.Debug = &BulkDebug{HeaderRow: match.Row, Sample: ingest.SampleColumns(grid, match, 5)}
	}

	s.log.Info("📥 Catalog bulk update",
		zap.Int("rows", report.TotalRows),
		zap.Int("matched", report.Matched),
		zap.Int("updated", report.Updated),
		zap.Int("missing", len(report.Missing)),
		zap.Int("failed", len(report.Failed)),
	)
	return report, nil
}

// BulkUpdate applies candidates to existing products only. Rows for the
// same code are folded in order, so the last one wins.
func (s *Service) BulkUpdate(ctx context.Context, candidates []ingest.Candidate) (*BulkReport, error) {
	codes := make([]string, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		if !seen[c.Code] {
			seen[c.Code] = true
			codes = append(codes, c.Code)
		}
	}

	existing, err := s.store.FindProducts(ctx, codes)
	if err != nil {
		return nil, apperr.Internal("failed to load products", err)
	}
	before := make(map[string]models.Product, len(existing))
	after := make(map[string]*models.Product, len(existing))
	for _, p := range existing {
		before[p.Code] = p
		cp := p
		after[p.Code] = &cp
	}

	for _, c := range candidates {
		p, ok := after[c.Code]
		if !ok {
			continue
		}
		if c.Name != "" {
			p.Name = c.Name
		}
		if c.Model != "" {
			p.Model = c.Model
		}
		if c.BoxNum != "" {
			p.BoxNum = c.BoxNum
		}
		if len(c.InStock) > 0 {
			p.InStock = []byte(c.InStock)
		}
	}

	report := &BulkReport{
		TotalRows: len(candidates),
		Matched:   len(existing),
		Missing:   []string{},
		Failed:    []repository.RowError{},
	}

	var changes []repository.ProductChange
	for _, code := range codes {
		p, ok := after[code]
		if !ok {
			continue
		}
		fields := diff(before[code], *p)
		if fields.Empty() {
			continue
		}
		report.FieldsChanged += len(fields.Columns())
		changes = append(changes, repository.ProductChange{Code: code, Fields: fields})
	}

	if len(changes) > 0 {
		failed, err := s.store.ApplyProductChanges(ctx, changes)
		if err != nil {
			return nil, apperr.Internal("failed to update products", err)
		}
		report.Failed = append(report.Failed, failed...)
		report.Updated = len(changes) - len(failed)
		for _, f := range failed {
			s.log.Warn("Product update failed", zap.String("code", f.Code), zap.String("error", f.Error))
		}
	}

	found, err := s.store.FindProducts(ctx, codes)
	if err != nil {
		return nil, apperr.Internal("failed to verify products", err)
	}
	present := make(map[string]bool, len(found))
	for _, p := range found {
		present[p.Code] = true
	}
	for _, code := range codes {
		if !present[code] {
			report.Missing = append(report.Missing, code)
		}
	}
	return report, nil
}

func diff(old, cur models.Product) repository.ProductFields {
	var f repository.ProductFields
	if cur.Name != old.Name {
		f.Name = &cur.Name
	}
	if cur.Model != old.Model {
		f.Model = &cur.Model
	}
	if cur.BoxNum != old.BoxNum {
		f.BoxNum = &cur.BoxNum
	}
	if !bytes.Equal(cur.InStock, old.InStock) {
		f.InStock = cur.InStock
	}
	return f
}

// ---------------------------------------------------------------------------
// Manual fix
// ---------------------------------------------------------------------------

// FixRequest corrects fields of one product; nil fields are left alone
type FixRequest struct {
	Barcode            string  `json:"barcode"`
	CorrectedName      *string `json:"correctedName,omitempty"`
	CorrectedModel     *string `json:"correctedModel,omitempty"`
	CorrectedBoxNum    *string `json:"correctedBoxNum,omitempty"`
	CorrectedSingleNum *int    `json:"correctedSingleNum,omitempty"`
}

// FixResult echoes the applied values and what they replaced
type FixResult struct {
	Barcode   string         `json:"barcode"`
	Updates   map[string]any `json:"updates"`
	OldValues map[string]any `json:"oldValues"`
}

// Fix applies a manual correction
func (s *Service) Fix(ctx context.Context, req FixRequest) (*FixResult, error) {
	code := utils.NormalizeDigits(req.Barcode)
	if code == "" {
		return nil, apperr.Validation("barcode is required")
	}

	var f repository.ProductFields
	if v := trimmed(req.CorrectedName); v != nil {
		f.Name = v
	}
	if v := trimmed(req.CorrectedModel); v != nil {
		f.Model = v
	}
	if v := trimmed(req.CorrectedBoxNum); v != nil {
		f.BoxNum = v
	}
	if req.CorrectedSingleNum != nil {
		if *req.CorrectedSingleNum <= 0 {
			return nil, apperr.Validation("correctedSingleNum must be positive")
		}
		f.SingleNum = req.CorrectedSingleNum
	}
	if f.Empty() {
		return nil, apperr.Validation("at least one corrected field must be provided")
	}

	p, err := s.store.FindProduct(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("barcode %s not found", code)
	}
	if err != nil {
		return nil, apperr.Internal("failed to load product", err)
	}

	res := &FixResult{Barcode: code, Updates: map[string]any{}, OldValues: map[string]any{}}
	if f.Name != nil {
		res.Updates["name"], res.OldValues["oldName"] = *f.Name, p.Name
	}
	if f.Model != nil {
		res.Updates["model"], res.OldValues["oldModel"] = *f.Model, p.Model
	}
	if f.BoxNum != nil {
		res.Updates["box_num"], res.OldValues["oldBoxNum"] = *f.BoxNum, p.BoxNum
	}
	if f.SingleNum != nil {
		res.Updates["single_num"], res.OldValues["oldSingleNum"] = *f.SingleNum, p.SingleNum
	}

	if err := s.store.UpdateProduct(ctx, code, f); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("barcode %s not found", code)
		}
		return nil, apperr.Internal("failed to update product", err)
	}

	s.log.Info("🔧 Product corrected", zap.String("code", code), zap.Any("updates", res.Updates), zap.Any("old", res.OldValues))
	return res, nil
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}

// ---------------------------------------------------------------------------
// Search
// ---------------------------------------------------------------------------

// Search bounds
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	MinQueryRunes   = 2
)

// SearchRequest is a catalog query. Zero Page/Limit take the defaults.
type SearchRequest struct {
	Query   string
	Barcode string
	Page    int
	Limit   int
}

// SearchResult is one page of products
type SearchResult struct {
	Results []models.Product `json:"results"`
	Total   int64            `json:"total"`
	Page    int              `json:"page"`
	Limit   int              `json:"limit"`
	HasNext bool             `json:"hasNext"`
	HasPrev bool             `json:"hasPrev"`
}

// Search finds products by name substring or exact barcode
func (s *Service) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	q := repository.SearchQuery{}
	switch {
	case strings.TrimSpace(req.Barcode) != "":
		q.Code = utils.NormalizeDigits(req.Barcode)
	case utf8.RuneCountInString(strings.TrimSpace(req.Query)) >= MinQueryRunes:
		q.Name = strings.TrimSpace(req.Query)
	default:
		return nil, apperr.Validation("query must be at least %d characters", MinQueryRunes)
	}

	page, limit := req.Page, req.Limit
	if page == 0 {
		page = 1
	}
	if limit == 0 {
		limit = DefaultPageSize
	}
	if page < 1 {
		return nil, apperr.Validation("page must be >= 1")
	}
	if limit < 1 || limit > MaxPageSize {
		return nil, apperr.Validation("limit must be between 1 and %d", MaxPageSize)
	}
	q.Offset, q.Limit = (page-1)*limit, limit

	products, total, err := s.store.SearchProducts(ctx, q)
	if err != nil {
		return nil, apperr.Internal("failed to search products", err)
	}
	if products == nil {
		products = []models.Product{}
	}
	return &SearchResult{
		Results: products,
		Total:   total,
		Page:    page,
		Limit:   limit,
		HasNext: int64(page*limit) < total,
		HasPrev: page > 1,
	}, nil
}
