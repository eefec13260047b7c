package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hybrid-bistoon/anbar/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// one writer keeps the shared in-memory database from reporting table locks
	sqlDB.SetMaxOpenConns(1)

	s := NewGormStore(db, nil)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func strPtr(s string) *string { return &s }

func seedInvoice(t *testing.T, s *GormStore, lines ...models.InvoiceLine) *models.Invoice {
	t.Helper()
	now := time.Now().UTC()
	inv := &models.Invoice{Name: "test", CreatedAt: &now, Status: models.InvoiceStatusPending, Items: lines}
	if err := s.CreateInvoice(context.Background(), inv); err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	return inv
}

func TestProductCreateAndDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := &models.Product{Code: "1410622069641", Name: "پیچ", GeneratedAt: time.Now()}
	if err := s.CreateProduct(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := s.CreateProduct(ctx, &models.Product{Code: "1410622069641"})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	got, err := s.FindProduct(ctx, "1410622069641")
	if err != nil || got.Name != "پیچ" {
		t.Fatalf("find: %+v %v", got, err)
	}
	if _, err := s.FindProduct(ctx, "1000000000000"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing product: got %v", err)
	}
}

func TestApplyProductChangesOnlyUpdates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, code := range []string{"1000000000017", "1000000000024"} {
		if err := s.CreateProduct(ctx, &models.Product{Code: code, Name: "old"}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	failed, err := s.ApplyProductChanges(ctx, []ProductChange{
		{Code: "1000000000017", Fields: ProductFields{Name: strPtr("new"), BoxNum: strPtr("12")}},
		{Code: "1999999999999", Fields: ProductFields{Name: strPtr("ghost")}},
	})
	if err != nil || len(failed) != 0 {
		t.Fatalf("apply: %v %v", failed, err)
	}

	p, _ := s.FindProduct(ctx, "1000000000017")
	if p.Name != "new" || p.BoxNum != "12" {
		t.Errorf("update not applied: %+v", p)
	}
	if _, err := s.FindProduct(ctx, "1999999999999"); !errors.Is(err, ErrNotFound) {
		t.Error("absent codes must not be created")
	}

	found, err := s.FindProducts(ctx, []string{"1000000000017", "1000000000024", "1000000000017"})
	if err != nil || len(found) != 2 {
		t.Errorf("FindProducts: got %d, %v", len(found), err)
	}
}

func TestSearchProductsOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seed := []models.Product{
		{Code: "1000000000031", Name: ""},
		{Code: "1000000000048", Name: "Lamp B"},
		{Code: "1000000000055", Name: "lamp a"},
		{Code: "1000000000062", Name: "Chair"},
	}
	for i := range seed {
		if err := s.CreateProduct(ctx, &seed[i]); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	all, total, err := s.SearchProducts(ctx, SearchQuery{Limit: 10})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if total != 4 || len(all) != 4 {
		t.Fatalf("total: got %d/%d", total, len(all))
	}
	if all[3].Code != "1000000000031" {
		t.Errorf("unnamed product should sort last, got %s", all[3].Code)
	}

	hits, total, err := s.SearchProducts(ctx, SearchQuery{Name: "LAMP", Limit: 1})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if total != 2 || len(hits) != 1 {
		t.Errorf("name search: total %d page %d", total, len(hits))
	}

	byCode, total, _ := s.SearchProducts(ctx, SearchQuery{Code: "1000000000062", Limit: 10})
	if total != 1 || byCode[0].Name != "Chair" {
		t.Errorf("code search: %+v", byCode)
	}

	named, err := s.FindProductsByName(ctx, []string{"Chair", "B"}, 0)
	if err != nil || len(named) != 2 {
		t.Errorf("FindProductsByName: got %d %v", len(named), err)
	}
}

func TestInvoiceRoundTripKeepsLineOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inv := seedInvoice(t, s,
		models.InvoiceLine{Barcode: "1000000000079", Quantity: 3},
		models.InvoiceLine{Barcode: "1000000000017", Quantity: 1},
	)

	got, err := s.FindInvoice(ctx, inv.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got.Items) != 2 || got.Items[0].Barcode != "1000000000079" {
		t.Errorf("line order lost: %+v", got.Items)
	}
	if _, err := s.FindInvoice(ctx, "not-a-uuid"); !errors.Is(err, ErrInvalidID) {
		t.Errorf("invalid id: got %v", err)
	}
	if _, err := s.FindInvoice(ctx, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing invoice: got %v", err)
	}
}

func TestListInvoicesFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	day := func(d int) *time.Time {
		v := time.Date(2025, 7, d, 10, 0, 0, 0, time.UTC)
		return &v
	}
	for i, d := range []int{1, 2, 3} {
		inv := &models.Invoice{CreatedAt: day(d), Status: models.InvoiceStatusPending,
			Items: []models.InvoiceLine{{Barcode: "1000000000017", Quantity: 1}}}
		if i == 2 {
			inv.Status = models.InvoiceStatusDone
		}
		if err := s.CreateInvoice(ctx, inv); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	all, err := s.ListInvoices(ctx, InvoiceFilter{})
	if err != nil || len(all) != 3 {
		t.Fatalf("list: %d %v", len(all), err)
	}
	if !all[0].CreatedAt.After(*all[2].CreatedAt) {
		t.Error("listing should be newest first")
	}
	if len(all[0].Items) != 1 {
		t.Error("lines should be preloaded")
	}

	done, _ := s.ListInvoices(ctx, InvoiceFilter{Status: models.InvoiceStatusDone})
	if len(done) != 1 {
		t.Errorf("status filter: got %d", len(done))
	}

	from, to := day(2), day(3)
	*from = from.Add(-10 * time.Hour)
	*to = to.Add(-10 * time.Hour)
	ranged, _ := s.ListInvoices(ctx, InvoiceFilter{From: from, To: to})
	if len(ranged) != 1 {
		t.Errorf("date filter: got %d", len(ranged))
	}

	serial := all[1].ID[:8]
	bySerial, _ := s.ListInvoices(ctx, InvoiceFilter{Serial: serial})
	if len(bySerial) != 1 || bySerial[0].ID != all[1].ID {
		t.Errorf("serial filter: got %d", len(bySerial))
	}
}

func TestTransitionInvoice(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	inv := seedInvoice(t, s, models.InvoiceLine{Barcode: "1000000000017", Quantity: 1})

	if err := s.TransitionInvoice(ctx, inv.ID, []models.InvoiceStatus{models.InvoiceStatusPending}, models.InvoiceStatusInProgress); err != nil {
		t.Fatalf("pending -> in-progress: %v", err)
	}
	err := s.TransitionInvoice(ctx, inv.ID, []models.InvoiceStatus{models.InvoiceStatusPending}, models.InvoiceStatusDone)
	if !errors.Is(err, ErrConflict) {
		t.Errorf("stale transition: got %v", err)
	}
	err = s.TransitionInvoice(ctx, "00000000-0000-0000-0000-000000000000", NonTerminal, models.InvoiceStatusDone)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("missing invoice: got %v", err)
	}
}

func TestIncrementCollectedGuards(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	inv := seedInvoice(t, s, models.InvoiceLine{Barcode: "1000000000017", Quantity: 7})

	if err := s.IncrementCollected(ctx, inv.ID, "1000000000017", 4, true); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if err := s.IncrementCollected(ctx, inv.ID, "1000000000017", 4, true); !errors.Is(err, ErrConflict) {
		t.Errorf("overshoot should conflict, got %v", err)
	}
	if err := s.IncrementCollected(ctx, inv.ID, "1000000000017", -5, false); !errors.Is(err, ErrConflict) {
		t.Errorf("negative result should conflict, got %v", err)
	}
	// unbounded adjust may exceed quantity
	if err := s.IncrementCollected(ctx, inv.ID, "1000000000017", 6, false); err != nil {
		t.Errorf("unbounded increment: %v", err)
	}

	got, _ := s.FindInvoice(ctx, inv.ID)
	if got.Items[0].Collected != 10 {
		t.Errorf("collected: got %d, want 10", got.Items[0].Collected)
	}

	_ = s.TransitionInvoice(ctx, inv.ID, NonTerminal, models.InvoiceStatusSkipped)
	if err := s.IncrementCollected(ctx, inv.ID, "1000000000017", -1, false); !errors.Is(err, ErrConflict) {
		t.Errorf("terminal invoice must reject writes, got %v", err)
	}
}

func TestIncrementCollectedConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	inv := seedInvoice(t, s, models.InvoiceLine{Barcode: "1000000000017", Quantity: 5})

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.IncrementCollected(ctx, inv.ID, "1000000000017", 1, true); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	got, _ := s.FindInvoice(ctx, inv.ID)
	if accepted != 5 || got.Items[0].Collected != 5 {
		t.Errorf("accepted %d, collected %d; want 5/5", accepted, got.Items[0].Collected)
	}
}

func TestUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := &models.UserAuth{Username: "ali", Password: "hash", Role: models.RolePicker, IsActive: true}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateUser(ctx, &models.UserAuth{Username: "ali", Password: "x"}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate username: got %v", err)
	}
	if err := s.TouchLogin(ctx, u.ID, time.Now()); err != nil {
		t.Errorf("touch: %v", err)
	}
	got, err := s.FindUserByUsername(ctx, "ali")
	if err != nil || got.LastLogin == nil {
		t.Errorf("find: %+v %v", got, err)
	}
}
