package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hybrid-bistoon/anbar/internal/config"
	"github.com/hybrid-bistoon/anbar/internal/models"
	"github.com/hybrid-bistoon/anbar/internal/services/catalog"
	"github.com/hybrid-bistoon/anbar/internal/services/converter"
	"github.com/hybrid-bistoon/anbar/internal/services/picking"
	"github.com/hybrid-bistoon/anbar/internal/services/printer"
	"github.com/hybrid-bistoon/anbar/internal/testutil"
	"github.com/hybrid-bistoon/anbar/internal/utils"
	"github.com/hybrid-bistoon/anbar/internal/websocket"
	"github.com/xuri/excelize/v2"
)

const testSecret = "handler-test-secret"

type testServer struct {
	t      *testing.T
	router *Router
	admin  string
	picker string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := testutil.NewStore(t)
	log := testutil.Logger()
	ctx := context.Background()

	for _, u := range []struct{ name, role string }{{"boss", models.RoleAdmin}, {"ali", models.RolePicker}} {
		hash, err := utils.HashPassword("pass-" + u.name)
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		if err := store.CreateUser(ctx, &models.UserAuth{Username: u.name, Password: hash, Role: u.role, IsActive: true}); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}

	labels, err := printer.NewRenderer(config.LabelConfig{Brand: "brand"})
	if err != nil {
		t.Fatalf("renderer: %v", err)
	}
	hub := websocket.NewHub(log)

	s := &testServer{t: t}
	s.router = NewRouter(Deps{
		Store:     store,
		Catalog:   catalog.NewService(store, log),
		Picking:   picking.NewService(store, log, picking.WithNotifier(hub)),
		Labels:    labels,
		Converter: converter.NewClient(config.ConverterConfig{}, log),
		Hub:       hub,
		JWTSecret: testSecret,
		Log:       log,
	})
	s.admin = s.login("boss", "pass-boss")
	s.picker = s.login("ali", "pass-ali")
	return s
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var rd *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		rd = bytes.NewReader(data)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) upload(path, token, field string, file []byte, extra map[string]string) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile(field, "upload.xlsx")
	fw.Write(file)
	for k, v := range extra {
		mw.WriteField(k, v)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) login(username, password string) string {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/auth/login", "", LoginRequest{Username: username, Password: password})
	if rec.Code != http.StatusOK {
		s.t.Fatalf("login %s: %d %s", username, rec.Code, rec.Body.String())
	}
	var out struct {
		Token string `json:"token"`
	}
	decode(s.t, rec, &out)
	return out.Token
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status %d, want %d: %s", rec.Code, want, rec.Body.String())
	}
}

func TestHealthAndAuth(t *testing.T) {
	s := newTestServer(t)

	expectStatus(t, s.do(http.MethodGet, "/health", "", nil), http.StatusOK)
	expectStatus(t, s.do(http.MethodGet, "/api/status", "", nil), http.StatusUnauthorized)
	expectStatus(t, s.do(http.MethodGet, "/api/status", s.picker, nil), http.StatusOK)

	rec := s.do(http.MethodPost, "/auth/login", "", LoginRequest{Username: "ali", Password: "nope"})
	expectStatus(t, rec, http.StatusUnauthorized)
	rec = s.do(http.MethodPost, "/auth/login", "", LoginRequest{Username: "ghost", Password: "x"})
	expectStatus(t, rec, http.StatusUnauthorized)
	if strings.Contains(rec.Body.String(), "password") {
		t.Error("response must not leak password fields")
	}

	expectStatus(t, s.do(http.MethodPost, "/api/barcodes", s.picker, nil), http.StatusForbidden)
}

func TestProductRoutes(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/barcodes", s.admin, nil)
	expectStatus(t, rec, http.StatusCreated)
	var p models.Product
	decode(t, rec, &p)
	if !utils.ValidChecksum(p.Code) {
		t.Fatalf("bad generated code %q", p.Code)
	}

	name := "Shower 7x14"
	expectStatus(t, s.do(http.MethodPost, "/api/products/fix", s.admin, catalog.FixRequest{Barcode: p.Code, CorrectedName: &name}), http.StatusOK)

	rec = s.do(http.MethodGet, "/api/products/"+p.Code, s.picker, nil)
	expectStatus(t, rec, http.StatusOK)
	decode(t, rec, &p)
	if p.Name != name {
		t.Errorf("fix not applied: %+v", p)
	}
	expectStatus(t, s.do(http.MethodGet, "/api/products/1999999999990", s.picker, nil), http.StatusNotFound)
	expectStatus(t, s.do(http.MethodGet, "/api/products/abc", s.picker, nil), http.StatusBadRequest)

	rec = s.do(http.MethodGet, "/api/products/search?q=shower", s.picker, nil)
	expectStatus(t, rec, http.StatusOK)
	var page catalog.SearchResult
	decode(t, rec, &page)
	if page.Total != 1 || page.Page != 1 || page.Limit != catalog.DefaultPageSize {
		t.Errorf("search page: %+v", page)
	}
	expectStatus(t, s.do(http.MethodGet, "/api/products/search", s.picker, nil), http.StatusBadRequest)
	expectStatus(t, s.do(http.MethodGet, "/api/products/search?q=s", s.picker, nil), http.StatusBadRequest)
	expectStatus(t, s.do(http.MethodGet, "/api/products/search?q=sh&page=0", s.picker, nil), http.StatusBadRequest)
	expectStatus(t, s.do(http.MethodGet, "/api/products/search?q=sh&limit=101", s.picker, nil), http.StatusBadRequest)

	rec = s.do(http.MethodGet, "/api/products/dimension-issues", s.picker, nil)
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), `"count":1`) {
		t.Errorf("dimension issues: %s", rec.Body.String())
	}
}

func TestBulkUpdateRoute(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/barcodes", s.admin, nil)
	var p models.Product
	decode(t, rec, &p)

	f := excelize.NewFile()
	f.SetSheetRow("Sheet1", "A1", &[]any{"بارکد", "نام کالا", "مدل"})
	f.SetSheetRow("Sheet1", "A2", &[]any{p.Code, "شیر", "M1"})
	var buf bytes.Buffer
	f.WriteTo(&buf)
	f.Close()

	rec = s.upload("/api/products/bulk-update?debug=1", s.admin, "excel", buf.Bytes(), nil)
	expectStatus(t, rec, http.StatusOK)
	var report catalog.BulkReport
	decode(t, rec, &report)
	if report.Updated != 1 || report.Debug == nil {
		t.Errorf("report: %+v", report)
	}

	expectStatus(t, s.upload("/api/products/bulk-update", s.picker, "excel", buf.Bytes(), nil), http.StatusForbidden)
	expectStatus(t, s.upload("/api/products/bulk-update", s.admin, "other", buf.Bytes(), nil), http.StatusBadRequest)
}

func TestInvoiceFlow(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/barcodes", s.admin, nil)
	var p models.Product
	decode(t, rec, &p)

	rec = s.do(http.MethodPost, "/api/invoices", s.picker, picking.CreateRequest{
		Name:  "order 1",
		Items: []picking.ItemInput{{Barcode: p.Code, Quantity: 2}},
	})
	expectStatus(t, rec, http.StatusCreated)
	var inv models.Invoice
	decode(t, rec, &inv)
	base := "/api/invoices/" + inv.ID

	expectStatus(t, s.do(http.MethodPatch, base+"/start", s.picker, nil), http.StatusOK)

	scan := picking.ScanRequest{Barcode: p.Code, ScanID: "s1"}
	expectStatus(t, s.do(http.MethodPatch, base+"/scan", s.picker, scan), http.StatusOK)
	rec = s.do(http.MethodPatch, base+"/scan", s.picker, scan)
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), `"duplicate":true`) {
		t.Errorf("replay should be acknowledged: %s", rec.Body.String())
	}

	rec = s.do(http.MethodPatch, base+"/finish", s.picker, FinishRequest{Mode: "done"})
	expectStatus(t, rec, http.StatusBadRequest)
	if !strings.Contains(rec.Body.String(), p.Code) {
		t.Errorf("finish error should name the line: %s", rec.Body.String())
	}

	expectStatus(t, s.do(http.MethodPatch, base+"/update-line", s.picker, picking.AdjustRequest{Barcode: p.Code, Delta: 1}), http.StatusOK)
	expectStatus(t, s.do(http.MethodPatch, base+"/scan", s.picker, picking.ScanRequest{Barcode: p.Code}), http.StatusBadRequest)
	expectStatus(t, s.do(http.MethodPatch, base+"/scan", s.picker, picking.ScanRequest{Barcode: "1999999999990"}), http.StatusNotFound)
	expectStatus(t, s.do(http.MethodPatch, base+"/finish", s.picker, FinishRequest{Mode: "done"}), http.StatusOK)
	expectStatus(t, s.do(http.MethodPatch, base+"/adjust", s.picker, picking.AdjustRequest{Barcode: p.Code, Delta: -1}), http.StatusBadRequest)

	rec = s.do(http.MethodGet, "/api/invoices?status=done", s.picker, nil)
	expectStatus(t, rec, http.StatusOK)
	var list []picking.Summary
	decode(t, rec, &list)
	if len(list) != 1 || list[0].TotalCollected != 2 {
		t.Errorf("list: %+v", list)
	}

	rec = s.do(http.MethodGet, base+"/export?format=csv", s.picker, nil)
	expectStatus(t, rec, http.StatusOK)
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv") {
		t.Errorf("content type %q", rec.Header().Get("Content-Type"))
	}

	expectStatus(t, s.do(http.MethodGet, "/api/invoices/not-an-id", s.picker, nil), http.StatusBadRequest)
	expectStatus(t, s.do(http.MethodGet, "/api/invoices/6f1c2d9e-3b4a-4c5d-8e7f-001122334455", s.picker, nil), http.StatusNotFound)
	expectStatus(t, s.do(http.MethodPost, "/api/invoices", s.picker, map[string]any{"items": []any{}}), http.StatusBadRequest)
}

func TestInvoiceUpload(t *testing.T) {
	s := newTestServer(t)

	f := excelize.NewFile()
	f.SetSheetRow("Sheet1", "A1", &[]any{"بارکد", "مقدار اصلی"})
	f.SetSheetRow("Sheet1", "A2", &[]any{"1410622069641", 3})
	f.SetSheetRow("Sheet1", "A3", &[]any{"bad", 1})
	var buf bytes.Buffer
	f.WriteTo(&buf)
	f.Close()

	rec := s.upload("/api/invoices/upload", s.picker, "invoice", buf.Bytes(), nil)
	expectStatus(t, rec, http.StatusOK)
	var preview picking.Preview
	decode(t, rec, &preview)
	if len(preview.Items) != 1 || len(preview.Skipped) != 1 {
		t.Errorf("preview: %+v", preview)
	}

	rec = s.upload("/api/invoices/import", s.picker, "invoice", buf.Bytes(), map[string]string{"name": "upload"})
	expectStatus(t, rec, http.StatusCreated)
	var res picking.ImportResult
	decode(t, rec, &res)
	if res.Invoice == nil || res.Invoice.Name != "upload" || res.Invoice.Status != models.InvoiceStatusPending {
		t.Errorf("import: %+v", res)
	}
}

func TestPrintRoutes(t *testing.T) {
	s := newTestServer(t)
	code := "1410622069641"

	rec := s.do(http.MethodGet, "/api/labels/svg?code="+code+"&name=x&carton=1", s.picker, nil)
	expectStatus(t, rec, http.StatusOK)
	var out map[string]string
	decode(t, rec, &out)
	if !strings.HasPrefix(out["svg"], "<svg") || !strings.Contains(out["svg"], printer.CartonPrefix) {
		t.Errorf("label svg: %.80s", out["svg"])
	}
	expectStatus(t, s.do(http.MethodGet, "/api/labels/svg?code=12", s.picker, nil), http.StatusBadRequest)

	expectStatus(t, s.do(http.MethodGet, "/api/barcodes/"+code+"/svg", s.picker, nil), http.StatusOK)
	expectStatus(t, s.do(http.MethodGet, "/api/barcodes/12/svg", s.picker, nil), http.StatusBadRequest)

	rec = s.do(http.MethodPost, "/api/labels/pdf", s.picker, printer.SheetConfig{Codes: []string{code}, QR: true})
	expectStatus(t, rec, http.StatusOK)
	if rec.Header().Get("Content-Type") != "application/pdf" {
		t.Errorf("content type %q", rec.Header().Get("Content-Type"))
	}
	expectStatus(t, s.do(http.MethodPost, "/api/labels/pdf", s.picker, printer.SheetConfig{}), http.StatusBadRequest)
}

func TestConverterNotConfigured(t *testing.T) {
	s := newTestServer(t)
	rec := s.upload("/api/invoice-process", s.picker, "file", []byte("x"), nil)
	expectStatus(t, rec, http.StatusServiceUnavailable)
}

func TestWebsocketRequiresToken(t *testing.T) {
	s := newTestServer(t)
	expectStatus(t, s.do(http.MethodGet, "/ws", "", nil), http.StatusUnauthorized)
}
