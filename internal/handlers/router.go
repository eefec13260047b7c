package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/hybrid-bistoon/anbar/internal/apperr"
	"github.com/hybrid-bistoon/anbar/internal/buildinfo"
	"github.com/hybrid-bistoon/anbar/internal/middleware"
	"github.com/hybrid-bistoon/anbar/internal/repository"
	"github.com/hybrid-bistoon/anbar/internal/services/catalog"
	"github.com/hybrid-bistoon/anbar/internal/services/converter"
	"github.com/hybrid-bistoon/anbar/internal/services/picking"
	"github.com/hybrid-bistoon/anbar/internal/services/printer"
	"github.com/hybrid-bistoon/anbar/internal/utils"
	"github.com/hybrid-bistoon/anbar/internal/websocket"
	"go.uber.org/zap"
)

// maxUploadSize bounds spreadsheet uploads
const maxUploadSize = 32 << 20

// Deps are the collaborators the HTTP layer dispatches to
type Deps struct {
	Store     repository.Store
	Catalog   *catalog.Service
	Picking   *picking.Service
	Labels    *printer.Renderer
	Converter *converter.Client
	Hub       *websocket.Hub
	JWTSecret string
	Log       *zap.Logger
}

// Router wraps the mux router and the services
type Router struct {
	*mux.Router
	store     repository.Store
	catalog   *catalog.Service
	picking   *picking.Service
	labels    *printer.Renderer
	converter *converter.Client
	hub       *websocket.Hub
	secret    string
	log       *zap.Logger
}

// NewRouter creates a new HTTP router with all routes
func NewRouter(d Deps) *Router {
	r := &Router{
		Router:    mux.NewRouter(),
		store:     d.Store,
		catalog:   d.Catalog,
		picking:   d.Picking,
		labels:    d.Labels,
		converter: d.Converter,
		hub:       d.Hub,
		secret:    d.JWTSecret,
		log:       d.Log.Named("http"),
	}
	r.Use(middleware.Logging(r.log))

	// Health check endpoint
	r.HandleFunc("/health", r.healthCheck).Methods("GET")

	// Auth routes
	auth := r.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/login", r.login).Methods("POST")

	// Websocket feed authenticates with ?token= since browsers cannot set headers
	r.HandleFunc("/ws", r.serveWs)

	// API routes (protected)
	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.Auth(r.secret))
	api.HandleFunc("/status", r.getStatus).Methods("GET")

	// Catalog mutations are admin only
	admin := api.NewRoute().Subrouter()
	admin.Use(middleware.RequireAdmin)
	admin.HandleFunc("/barcodes", r.generateBarcode).Methods("POST")
	admin.HandleFunc("/products/bulk-update", r.bulkUpdate).Methods("POST")
	admin.HandleFunc("/products/fix", r.fixProduct).Methods("POST")

	api.HandleFunc("/products/search", r.searchProducts).Methods("GET")
	api.HandleFunc("/products/dimension-issues", r.dimensionIssues).Methods("GET")
	api.HandleFunc("/products/{code}", r.getProduct).Methods("GET")

	// Invoice routes
	api.HandleFunc("/invoices/upload", r.previewInvoice).Methods("POST")
	api.HandleFunc("/invoices/import", r.importInvoice).Methods("POST")
	api.HandleFunc("/invoices", r.createInvoice).Methods("POST")
	api.HandleFunc("/invoices", r.listInvoices).Methods("GET")
	api.HandleFunc("/invoices/{id}", r.getInvoice).Methods("GET")
	api.HandleFunc("/invoices/{id}/start", r.startInvoice).Methods("PATCH")
	api.HandleFunc("/invoices/{id}/scan", r.scanInvoice).Methods("PATCH")
	api.HandleFunc("/invoices/{id}/adjust", r.adjustInvoice).Methods("PATCH")
	api.HandleFunc("/invoices/{id}/update-line", r.adjustInvoice).Methods("PATCH")
	api.HandleFunc("/invoices/{id}/finish", r.finishInvoice).Methods("PATCH")
	api.HandleFunc("/invoices/{id}/export", r.exportInvoice).Methods("GET")
	api.HandleFunc("/invoice-process", r.processInvoice).Methods("POST")

	// Print routes
	api.HandleFunc("/labels/svg", r.labelSVG).Methods("GET")
	api.HandleFunc("/labels/pdf", r.labelsPDF).Methods("POST")
	api.HandleFunc("/barcodes/{code}/svg", r.barcodeSVG).Methods("GET")

	return r
}

// healthCheck returns the health status of the API
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// getStatus returns build information
func (r *Router) getStatus(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "running",
		"buildTime":  buildinfo.BuildTime,
		"commitTime": buildinfo.CommitTime,
		"commitHash": buildinfo.CommitHash,
		"startTime":  buildinfo.StartTime,
		"wsClients":  r.hub.ClientCount(),
	})
}

func (r *Router) serveWs(w http.ResponseWriter, req *http.Request) {
	if _, err := utils.ValidateToken(req.URL.Query().Get("token"), r.secret); err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}
	websocket.ServeWs(r.hub, w, req)
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondErr maps a service error to its status. Internal details are
// logged, never sent.
func (r *Router) respondErr(w http.ResponseWriter, req *http.Request, err error) {
	e := apperr.As(err)
	if e.Kind == apperr.KindInternal {
		if errors.Is(err, context.Canceled) || req.Context().Err() != nil {
			// client went away
			return
		}
		r.log.Error("❌ Request failed",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Error(err),
		)
		respondError(w, e.Status(), "internal server error")
		return
	}
	respondError(w, e.Status(), e.Message)
}

// decodeJSON reads a JSON body into v
func decodeJSON(req *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(req.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return apperr.Validation("Invalid request payload")
	}
	return nil
}

// intParam parses an optional positive query parameter. Absent means 0.
func intParam(req *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(req.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(utils.NormalizeDigits(raw))
	if err != nil || n < 1 {
		return 0, apperr.Validation("%s must be a positive integer", name)
	}
	return n, nil
}

// formFile opens an uploaded file, trying each field name in turn
func formFile(req *http.Request, fields ...string) (io.ReadCloser, error) {
	if err := req.ParseMultipartForm(maxUploadSize); err != nil {
		return nil, apperr.Validation("expected a multipart upload")
	}
	for _, name := range fields {
		f, _, err := req.FormFile(name)
		if err == nil {
			return f, nil
		}
	}
	return nil, apperr.Validation("no file uploaded (field %q)", fields[0])
}
