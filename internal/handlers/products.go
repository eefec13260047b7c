package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/hybrid-bistoon/anbar/internal/services/catalog"
)

// generateBarcode creates a new catalog entry with a fresh unit barcode
func (r *Router) generateBarcode(w http.ResponseWriter, req *http.Request) {
	p, err := r.catalog.Generate(req.Context())
	if err != nil {
		r.respondErr(w, req, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

// bulkUpdate reconciles an uploaded supplier spreadsheet with the catalog
func (r *Router) bulkUpdate(w http.ResponseWriter, req *http.Request) {
	file, err := formFile(req, "excel", "file")
	if err != nil {
		r.respondErr(w, req, err)
		return
	}
	defer file.Close()

	debug := req.URL.Query().Get("debug") == "1"
	report, err := r.catalog.ImportWorkbook(req.Context(), file, debug)
	if err != nil {
		r.respondErr(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// fixProduct applies a manual correction to one product
func (r *Router) fixProduct(w http.ResponseWriter, req *http.Request) {
	var body catalog.FixRequest
	if err := decodeJSON(req, &body); err != nil {
		r.respondErr(w, req, err)
		return
	}
	res, err := r.catalog.Fix(req.Context(), body)
	if err != nil {
		r.respondErr(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// searchProducts pages through the catalog by name or barcode
func (r *Router) searchProducts(w http.ResponseWriter, req *http.Request) {
	page, err := intParam(req, "page")
	if err != nil {
		r.respondErr(w, req, err)
		return
	}
	limit, err := intParam(req, "limit")
	if err != nil {
		r.respondErr(w, req, err)
		return
	}

	q := req.URL.Query()
	res, err := r.catalog.Search(req.Context(), catalog.SearchRequest{
		Query:   q.Get("q"),
		Barcode: q.Get("barcode"),
		Page:    page,
		Limit:   limit,
	})
	if err != nil {
		r.respondErr(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// dimensionIssues lists products whose name carries suspiciously small sizes
func (r *Router) dimensionIssues(w http.ResponseWriter, req *http.Request) {
	limit, err := intParam(req, "limit")
	if err != nil {
		r.respondErr(w, req, err)
		return
	}
	issues, err := r.catalog.DimensionIssues(req.Context(), limit)
	if err != nil {
		r.respondErr(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"count":  len(issues),
		"issues": issues,
	})
}

// getProduct returns one catalog entry
func (r *Router) getProduct(w http.ResponseWriter, req *http.Request) {
	p, err := r.catalog.Lookup(req.Context(), mux.Vars(req)["code"])
	if err != nil {
		r.respondErr(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}
