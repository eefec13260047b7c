// Package picking builds invoices from uploads and drives the scan-collect
// lifecycle: pending → in-progress → done, or skipped at any open point.
package picking

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/hybrid-bistoon/anbar/internal/apperr"
	"github.com/hybrid-bistoon/anbar/internal/ingest"
	"github.com/hybrid-bistoon/anbar/internal/models"
	"github.com/hybrid-bistoon/anbar/internal/repository"
	"github.com/hybrid-bistoon/anbar/internal/utils"
	"github.com/hybrid-bistoon/anbar/internal/websocket"
	"go.uber.org/zap"
)

// ScanReplayWindow is how long a scanId is remembered
const ScanReplayWindow = 5 * time.Minute

// Event types pushed to dashboards
const (
	EventCreated  = "invoice.created"
	EventStarted  = "invoice.started"
	EventScanned  = "invoice.scanned"
	EventAdjusted = "invoice.adjusted"
	EventFinished = "invoice.finished"
)

// Store is the storage the picking flow needs
type Store interface {
	repository.Products
	repository.Invoices
}

// Notifier receives every accepted invoice mutation
type Notifier interface {
	Publish(ev websocket.Event)
}

type nopNotifier struct{}

func (nopNotifier) Publish(websocket.Event) {}

// Service handles invoice creation and picking
type Service struct {
	store    Store
	log      *zap.Logger
	notifier Notifier
	dedup    *utils.Deduplicator
	loc      *time.Location
	now      func() time.Time
}

// Option customises a Service
type Option func(*Service)

// WithNotifier sets the sink for invoice events
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithLocation sets the zone used for display dates and date filters
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new picking service
func NewService(store Store, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		log:      log.Named("picking"),
		notifier: nopNotifier{},
		dedup:    utils.NewDeduplicator(ScanReplayWindow),
		loc:      time.UTC,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ---------------------------------------------------------------------------
// Building invoices
// ---------------------------------------------------------------------------

// Preview is a parsed upload that has not been stored
type Preview struct {
	Layout  string               `json:"layout"`
	Items   []models.InvoiceLine `json:"items"`
	Skipped []ingest.SkippedRow  `json:"skipped"`
}

// ItemInput is one requested line when creating an invoice from JSON.
// Metadata left blank is filled from the catalog.
type ItemInput struct {
	Barcode   string `json:"barcode"`
	Quantity  int    `json:"quantity"`
	Name      string `json:"name,omitempty"`
	Model     string `json:"model,omitempty"`
	BoxNum    string `json:"box_num,omitempty"`
	BoxCode   string `json:"box_code,omitempty"`
	SingleNum int    `json:"single_num,omitempty"`
}

// CreateRequest is the body of a JSON invoice creation
type CreateRequest struct {
	Name  string      `json:"name"`
	Items []ItemInput `json:"items"`
}

// ImportResult is a stored upload plus the rows that were dropped
type ImportResult struct {
	Invoice *models.Invoice     `json:"invoice"`
	Skipped []ingest.SkippedRow `json:"skipped"`
}

// Preview parses and enriches an uploaded workbook without storing it
func (s *Service) Preview(ctx context.Context, r io.Reader) (*Preview, error) {
	parsed, err := s.parseUpload(r)
	if err != nil {
		return nil, err
	}
	lines := mergeRows(parsed.Rows)
	if err := s.enrich(ctx, lines); err != nil {
		return nil, err
	}
	return &Preview{Layout: parsed.Layout, Items: lines, Skipped: parsed.Skipped}, nil
}

// Import parses an uploaded workbook and stores it as a pending invoice
func (s *Service) Import(ctx context.Context, r io.Reader, name string) (*ImportResult, error) {
	parsed, err := s.parseUpload(r)
	if err != nil {
		return nil, err
	}
	lines := mergeRows(parsed.Rows)
	if err := s.enrich(ctx, lines); err != nil {
		return nil, err
	}
	inv, err := s.persist(ctx, strings.TrimSpace(name), lines)
	if err != nil {
		return nil, err
	}
	return &ImportResult{Invoice: inv, Skipped: parsed.Skipped}, nil
}

// Create stores an invoice from explicit items
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Invoice, error) {
	if len(req.Items) == 0 {
		return nil, apperr.Validation("items list is empty")
	}

	lines := make([]models.InvoiceLine, 0, len(req.Items))
	index := make(map[string]int, len(req.Items))
	for i, it := range req.Items {
		code := utils.NormalizeDigits(it.Barcode)
		if !utils.IsBarcode(code) {
			return nil, apperr.Validation("item %d: barcode must be 13 digits", i+1)
		}
		if it.Quantity <= 0 {
			return nil, apperr.Validation("item %d: quantity must be positive", i+1)
		}
		if at, ok := index[code]; ok {
			lines[at].Quantity += it.Quantity
			continue
		}
		index[code] = len(lines)
		lines = append(lines, models.InvoiceLine{
			Barcode:   code,
			Quantity:  it.Quantity,
			Name:      strings.TrimSpace(it.Name),
			Model:     strings.TrimSpace(it.Model),
			BoxNum:    strings.TrimSpace(it.BoxNum),
			BoxCode:   strings.TrimSpace(it.BoxCode),
			SingleNum: it.SingleNum,
		})
	}

	if err := s.enrich(ctx, lines); err != nil {
		return nil, err
	}
	return s.persist(ctx, strings.TrimSpace(req.Name), lines)
}

func (s *Service) parseUpload(r io.Reader) (*ingest.PreInvoice, error) {
	sheets, err := ingest.ReadWorkbook(r)
	if err != nil {
		return nil, apperr.Validation("cannot read spreadsheet: %v", err)
	}
	parsed, err := ingest.ParsePreInvoice(sheets)
	if errors.Is(err, ingest.ErrNoInvoiceLayout) {
		return nil, apperr.Validation("%v", err)
	}
	if err != nil {
		return nil, apperr.Internal("failed to parse invoice", err)
	}
	if len(parsed.Rows) == 0 {
		return nil, apperr.Validation("no valid invoice rows found")
	}
	return parsed, nil
}

// mergeRows folds repeated barcodes into one line, keeping first-seen order
func mergeRows(rows []ingest.InvoiceRow) []models.InvoiceLine {
	lines := make([]models.InvoiceLine, 0, len(rows))
	index := make(map[string]int, len(rows))
	for _, r := range rows {
		if at, ok := index[r.Barcode]; ok {
			lines[at].Quantity += r.Quantity
			continue
		}
		index[r.Barcode] = len(lines)
		lines = append(lines, models.InvoiceLine{Barcode: r.Barcode, Quantity: r.Quantity})
	}
	return lines
}

// enrich copies catalog metadata into blank line fields. Unknown barcodes
// keep whatever they have.
func (s *Service) enrich(ctx context.Context, lines []models.InvoiceLine) error {
	codes := make([]string, len(lines))
	for i, l := range lines {
		codes[i] = l.Barcode
	}
	products, err := s.store.FindProducts(ctx, codes)
	if err != nil {
		return apperr.Internal("failed to load catalog", err)
	}
	byCode := make(map[string]models.Product, len(products))
	for _, p := range products {
		byCode[p.Code] = p
	}

	for i := range lines {
		l := &lines[i]
		if p, ok := byCode[l.Barcode]; ok {
			l.Name = firstNonEmpty(l.Name, p.Name)
			l.Model = firstNonEmpty(l.Model, p.Model)
			l.BoxNum = firstNonEmpty(l.BoxNum, p.BoxNum)
			l.BoxCode = firstNonEmpty(l.BoxCode, p.BoxCode)
			if l.SingleNum <= 0 {
				l.SingleNum = p.SingleNum
			}
		}
		if l.SingleNum <= 0 {
			l.SingleNum = 1
		}
	}
	return nil
}

func (s *Service) persist(ctx context.Context, name string, lines []models.InvoiceLine) (*models.Invoice, error) {
	now := s.now().UTC()
	inv := &models.Invoice{
		Name:        name,
		CreatedAt:   &now,
		CreatedAtFa: utils.FormatJalali(now, s.loc),
		Status:      models.InvoiceStatusPending,
		Items:       lines,
	}
	if err := s.store.CreateInvoice(ctx, inv); err != nil {
		return nil, apperr.Internal("failed to store invoice", err)
	}
	s.log.Info("🧾 Invoice created", zap.String("id", inv.ID), zap.String("name", name), zap.Int("lines", len(lines)))
	s.publish(EventCreated, inv)
	return inv, nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// ---------------------------------------------------------------------------
// Reading
// ---------------------------------------------------------------------------

// ListRequest filters the invoice history. Dates are YYYY-MM-DD in the
// service's zone; To is inclusive.
type ListRequest struct {
	Status string
	From   string
	To     string
	Serial string
}

// Summary is one row of the invoice history
type Summary struct {
	ID             string               `json:"id"`
	Name           string               `json:"name"`
	CreatedAt      *time.Time           `json:"createdAt,omitempty"`
	CreatedAtFa    string               `json:"createdAtFa"`
	Status         models.InvoiceStatus `json:"status"`
	ItemCount      int                  `json:"itemCount"`
	TotalQuantity  int                  `json:"totalQuantity"`
	TotalCollected int                  `json:"totalCollected"`
}

const dateLayout = "2006-01-02"

// List returns invoice summaries newest first
func (s *Service) List(ctx context.Context, req ListRequest) ([]Summary, error) {
	var f repository.InvoiceFilter

	switch st := strings.TrimSpace(req.Status); st {
	case "", "all":
	default:
		status := models.InvoiceStatus(st)
		if !status.Valid() {
			return nil, apperr.Validation("unknown status %q", st)
		}
		f.Status = status
	}

	if req.From != "" {
		from, err := time.ParseInLocation(dateLayout, strings.TrimSpace(req.From), s.loc)
		if err != nil {
			return nil, apperr.Validation("from must be YYYY-MM-DD")
		}
		f.From = &from
	}
	if req.To != "" {
		to, err := time.ParseInLocation(dateLayout, strings.TrimSpace(req.To), s.loc)
		if err != nil {
			return nil, apperr.Validation("to must be YYYY-MM-DD")
		}
		end := to.AddDate(0, 0, 1)
		f.To = &end
	}
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return nil, apperr.Validation("from must not be after to")
	}
	f.Serial = strings.TrimSpace(req.Serial)

	invoices, err := s.store.ListInvoices(ctx, f)
	if err != nil {
		return nil, apperr.Internal("failed to list invoices", err)
	}

	out := make([]Summary, len(invoices))
	for i := range invoices {
		inv := &invoices[i]
		q, c := inv.Totals()
		out[i] = Summary{
			ID:             inv.ID,
			Name:           inv.Name,
			CreatedAt:      inv.CreatedAt,
			CreatedAtFa:    s.displayDate(inv),
			Status:         inv.Status,
			ItemCount:      len(inv.Items),
			TotalQuantity:  q,
			TotalCollected: c,
		}
	}
	return out, nil
}

// Get returns the full invoice
func (s *Service) Get(ctx context.Context, id string) (*models.Invoice, error) {
	inv, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	inv.CreatedAtFa = s.displayDate(inv)
	return inv, nil
}

func (s *Service) displayDate(inv *models.Invoice) string {
	if inv.CreatedAtFa != "" || inv.CreatedAt == nil {
		return inv.CreatedAtFa
	}
	return utils.FormatJalali(*inv.CreatedAt, s.loc)
}

func (s *Service) load(ctx context.Context, id string) (*models.Invoice, error) {
	inv, err := s.store.FindInvoice(ctx, strings.TrimSpace(id))
	switch {
	case errors.Is(err, repository.ErrInvalidID):
		return nil, apperr.Validation("invalid invoice id")
	case errors.Is(err, repository.ErrNotFound):
		return nil, apperr.NotFound("invoice not found")
	case err != nil:
		return nil, apperr.Internal("failed to load invoice", err)
	}
	return inv, nil
}

func (s *Service) publish(kind string, inv *models.Invoice) {
	s.notifier.Publish(websocket.Event{Type: kind, InvoiceID: inv.ID, Payload: inv})
}
