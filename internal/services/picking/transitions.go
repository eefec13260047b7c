package picking

import (
	"context"
	"errors"

	"github.com/hybrid-bistoon/anbar/internal/apperr"
	"github.com/hybrid-bistoon/anbar/internal/models"
	"github.com/hybrid-bistoon/anbar/internal/repository"
	"github.com/hybrid-bistoon/anbar/internal/utils"
	"go.uber.org/zap"
)

// Start moves a pending invoice to in-progress. Re-entering an invoice that
// is already in progress is allowed.
func (s *Service) Start(ctx context.Context, id string) (*models.Invoice, error) {
	inv, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status.Terminal() {
		return nil, closedError(inv)
	}
	if inv.Status == models.InvoiceStatusPending {
		err := s.store.TransitionInvoice(ctx, inv.ID, []models.InvoiceStatus{models.InvoiceStatusPending}, models.InvoiceStatusInProgress)
		if err != nil && !errors.Is(err, repository.ErrConflict) {
			return nil, apperr.Internal("failed to start invoice", err)
		}
	}
	return s.reloadAfter(ctx, inv.ID, EventStarted)
}

// ScanRequest is one scanner read
type ScanRequest struct {
	Barcode string `json:"barcode"`
	Carton  bool   `json:"carton"`
	// ScanID lets a scanner resend a read safely
	ScanID string `json:"scanId,omitempty"`
}

// ScanResult reports what a scan did
type ScanResult struct {
	Invoice   *models.Invoice `json:"invoice"`
	Barcode   string          `json:"barcode"`
	Carton    bool            `json:"carton"`
	Delta     int             `json:"delta"`
	Duplicate bool            `json:"duplicate,omitempty"`
}

// Scan adds one unit or carton read to the matching line. A scan that would
// push collected past quantity is rejected without changing anything.
func (s *Service) Scan(ctx context.Context, id string, req ScanRequest) (*ScanResult, error) {
	code := utils.NormalizeDigits(req.Barcode)
	if code == "" {
		return nil, apperr.Validation("barcode is required")
	}

	replayKey := ""
	if req.ScanID != "" {
		replayKey = id + ":" + req.ScanID
		if !s.dedup.Claim(replayKey) {
			inv, err := s.load(ctx, id)
			if err != nil {
				return nil, err
			}
			s.log.Debug("Scan replay acknowledged", zap.String("invoice", id), zap.String("scanId", req.ScanID))
			return &ScanResult{Invoice: inv, Barcode: code, Carton: req.Carton, Duplicate: true}, nil
		}
	}

	res, err := s.applyScan(ctx, id, code, req.Carton)
	if err != nil {
		if replayKey != "" {
			s.dedup.Release(replayKey)
		}
		return nil, err
	}
	return res, nil
}

func (s *Service) applyScan(ctx context.Context, id, code string, cartonFlag bool) (*ScanResult, error) {
	inv, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status.Terminal() {
		return nil, closedError(inv)
	}

	idx, carton := resolveLine(inv, code, cartonFlag)
	if idx < 0 {
		return nil, apperr.NotFound("barcode %s is not part of this invoice", code)
	}
	line := inv.Items[idx]

	delta := line.UnitMultiplier()
	if carton {
		delta = line.CartonUnits()
	}
	if line.Collected+delta > line.Quantity {
		return nil, apperr.Validation("scan would exceed quantity for %s (%d + %d > %d)",
			line.Barcode, line.Collected, delta, line.Quantity)
	}

	err = s.store.IncrementCollected(ctx, inv.ID, line.Barcode, delta, true)
	if errors.Is(err, repository.ErrConflict) {
		// someone else scanned or closed the invoice between read and write
		return nil, s.conflict(ctx, inv.ID, "scan would exceed quantity for %s", line.Barcode)
	}
	if err != nil {
		return nil, apperr.Internal("failed to record scan", err)
	}

	s.promote(ctx, inv)
	updated, err := s.reloadAfter(ctx, inv.ID, EventScanned)
	if err != nil {
		return nil, err
	}
	s.log.Info("📦 Scan accepted",
		zap.String("invoice", inv.ID),
		zap.String("barcode", line.Barcode),
		zap.Bool("carton", carton),
		zap.Int("delta", delta),
	)
	return &ScanResult{Invoice: updated, Barcode: line.Barcode, Carton: carton, Delta: delta}, nil
}

// resolveLine finds the line a scanned code belongs to. A code printed as a
// line's box_code, or carrying the carton scheme digit, counts as a carton.
func resolveLine(inv *models.Invoice, code string, cartonFlag bool) (int, bool) {
	if idx := inv.LineByBoxCode(code); idx >= 0 {
		return idx, true
	}
	if utils.IsCartonCode(code) {
		if unit, err := utils.UnitCode(code); err == nil {
			if idx := inv.Line(unit); idx >= 0 {
				return idx, true
			}
		}
	}
	return inv.Line(code), cartonFlag
}

// AdjustRequest is a manual correction of a line's collected count
type AdjustRequest struct {
	Barcode string `json:"barcode"`
	Delta   int    `json:"delta"`
}

// Adjust changes collected directly. It may exceed quantity (operator
// override) but never goes below zero.
func (s *Service) Adjust(ctx context.Context, id string, req AdjustRequest) (*models.Invoice, error) {
	code := utils.NormalizeDigits(req.Barcode)
	if code == "" {
		return nil, apperr.Validation("barcode is required")
	}
	if req.Delta == 0 {
		return nil, apperr.Validation("delta must not be zero")
	}

	inv, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status.Terminal() {
		return nil, closedError(inv)
	}
	idx := inv.Line(code)
	if idx < 0 {
		return nil, apperr.NotFound("barcode %s is not part of this invoice", code)
	}
	line := inv.Items[idx]

	next := line.Collected + req.Delta
	if next < 0 {
		return nil, apperr.Validation("collected for %s cannot go below zero", code)
	}
	if next > line.Quantity {
		s.log.Warn("⚠️  Manual adjust exceeds quantity",
			zap.String("invoice", inv.ID),
			zap.String("barcode", code),
			zap.Int("collected", next),
			zap.Int("quantity", line.Quantity),
		)
	}

	err = s.store.IncrementCollected(ctx, inv.ID, code, req.Delta, false)
	if errors.Is(err, repository.ErrConflict) {
		return nil, s.conflict(ctx, inv.ID, "collected for %s cannot go below zero", code)
	}
	if err != nil {
		return nil, apperr.Internal("failed to adjust line", err)
	}

	s.promote(ctx, inv)
	s.log.Info("✏️  Line adjusted", zap.String("invoice", inv.ID), zap.String("barcode", code), zap.Int("delta", req.Delta))
	return s.reloadAfter(ctx, inv.ID, EventAdjusted)
}

// Finish closes the invoice. Mode done requires every line to be complete;
// mode skipped closes it as-is for manual follow-up.
func (s *Service) Finish(ctx context.Context, id string, mode string) (*models.Invoice, error) {
	target := models.InvoiceStatus(mode)
	if target != models.InvoiceStatusDone && target != models.InvoiceStatusSkipped {
		return nil, apperr.Validation("mode must be %q or %q", models.InvoiceStatusDone, models.InvoiceStatusSkipped)
	}

	inv, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.Status.Terminal() {
		return nil, closedError(inv)
	}
	if target == models.InvoiceStatusDone {
		if l := inv.FirstIncomplete(); l != nil {
			return nil, apperr.Validation("line %s is incomplete (%d of %d collected)", l.Barcode, l.Collected, l.Quantity)
		}
	}

	err = s.store.TransitionInvoice(ctx, inv.ID, repository.NonTerminal, target)
	if errors.Is(err, repository.ErrConflict) {
		return nil, s.conflict(ctx, inv.ID, "invoice changed while finishing, reload and retry")
	}
	if err != nil {
		return nil, apperr.Internal("failed to finish invoice", err)
	}

	q, c := inv.Totals()
	s.log.Info("✅ Invoice finished", zap.String("invoice", inv.ID), zap.String("status", mode), zap.Int("collected", c), zap.Int("quantity", q))
	return s.reloadAfter(ctx, inv.ID, EventFinished)
}

// promote moves a pending invoice to in-progress after its first accepted
// change. Losing the race to another request is fine.
func (s *Service) promote(ctx context.Context, inv *models.Invoice) {
	if inv.Status != models.InvoiceStatusPending {
		return
	}
	err := s.store.TransitionInvoice(ctx, inv.ID, []models.InvoiceStatus{models.InvoiceStatusPending}, models.InvoiceStatusInProgress)
	if err != nil && !errors.Is(err, repository.ErrConflict) {
		s.log.Warn("Failed to promote invoice", zap.String("invoice", inv.ID), zap.Error(err))
	}
}

// conflict explains a conditional write that matched nothing
func (s *Service) conflict(ctx context.Context, id, format string, args ...any) error {
	inv, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if inv.Status.Terminal() {
		return closedError(inv)
	}
	return apperr.Validation(format, args...)
}

func (s *Service) reloadAfter(ctx context.Context, id, event string) (*models.Invoice, error) {
	inv, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	inv.CreatedAtFa = s.displayDate(inv)
	s.publish(event, inv)
	return inv, nil
}

func closedError(inv *models.Invoice) error {
	return apperr.Validation("invoice is already %s", inv.Status)
}
