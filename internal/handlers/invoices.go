package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/hybrid-bistoon/anbar/internal/services/picking"
	"go.uber.org/zap"
)

// previewInvoice parses an uploaded pre-invoice without storing it
func (r *Router) previewInvoice(w http.ResponseWriter, req *http.Request) {
	file, err := formFile(req, "invoice", "file")
	if err != nil {
		r.respondErr(w, req, err)
		return
	}
	defer file.Close()

	preview, err := r.picking.Preview(req.Context(), file)
	if err != nil {
		r.respondErr(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, preview)
}

// importInvoice parses an uploaded pre-invoice and stores it
func (r *Router) importInvoice(w http.ResponseWriter, req *http.Request) {
	file, err := formFile(req, "invoice", "file")
	if err != nil {
		r.respondErr(w, req, err)
		return
	}
	defer file.Close()

	res, err := r.picking.Import(req.Context(), file, req.FormValue("name"))
	if err != nil {
		r.respondErr(w, req, err)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}

// createInvoice stores an invoice from a JSON item list
func (r *Router) createInvoice(w http.ResponseWriter, req *http.Request) {
	var body picking.CreateRequest
	if err := decodeJSON(req, &body); err != nil {
		r.respondErr(w, req, err)
		return
	}
	inv, err := r.picking.Create(req.Context(), body)
	if err != nil {
		r.respondErr(w, req, err)
		return
	}
	respondJSON(w, http.StatusCreated, inv)
}

// listInvoices returns the invoice history
func (r *Router) listInvoices(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	list, err := r.picking.List(req.Context(), picking.ListRequest{
		Status: q.Get("status"),
		From:   q.Get("from"),
		To:     q.Get("to"),
		Serial: q.Get("serial"),
	})
	if err != nil {
		r.respondErr(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

// getInvoice returns the full invoice
func (r *Router) getInvoice(w http.ResponseWriter, req *http.Request) {
	inv, err := r.picking.Get(req.Context(), mux.Vars(req)["id"])
	if err != nil {
		r.respondErr(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, inv)
}

// startInvoice marks the invoice as being picked
func (r *Router) startInvoice(w http.ResponseWriter, req *http.Request) {
	inv, err := r.picking.Start(req.Context(), mux.Vars(req)["id"])
	if err != nil {
		r.respondErr(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, inv)
}

// scanInvoice is the picking entry point for every scanner read
func (r *Router) scanInvoice(w http.ResponseWriter, req *http.Request) {
	var body picking.ScanRequest
	if err := decodeJSON(req, &body); err != nil {
		r.respondErr(w, req, err)
		return
	}
	res, err := r.picking.Scan(req.Context(), mux.Vars(req)["id"], body)
	if err != nil {
		r.respondErr(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// adjustInvoice corrects a line's collected count by hand
func (r *Router) adjustInvoice(w http.ResponseWriter, req *http.Request) {
	var body picking.AdjustRequest
	if err := decodeJSON(req, &body); err != nil {
		r.respondErr(w, req, err)
		return
	}
	inv, err := r.picking.Adjust(req.Context(), mux.Vars(req)["id"], body)
	if err != nil {
		r.respondErr(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, inv)
}

// FinishRequest closes an invoice as done or skipped
type FinishRequest struct {
	Mode string `json:"mode"`
}

// finishInvoice closes the invoice
func (r *Router) finishInvoice(w http.ResponseWriter, req *http.Request) {
	var body FinishRequest
	if err := decodeJSON(req, &body); err != nil {
		r.respondErr(w, req, err)
		return
	}
	inv, err := r.picking.Finish(req.Context(), mux.Vars(req)["id"], body.Mode)
	if err != nil {
		r.respondErr(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, inv)
}

// exportInvoice downloads the invoice lines as CSV or XLSX
func (r *Router) exportInvoice(w http.ResponseWriter, req *http.Request) {
	out, err := r.picking.Export(req.Context(), mux.Vars(req)["id"], req.URL.Query().Get("format"))
	if err != nil {
		r.respondErr(w, req, err)
		return
	}
	w.Header().Set("Content-Type", out.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", out.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Body)))
	w.Write(out.Body)
}

// processInvoice relays a raw accounting export to the converter and streams
// the converted workbook back
func (r *Router) processInvoice(w http.ResponseWriter, req *http.Request) {
	req.Body = http.MaxBytesReader(w, req.Body, maxUploadSize)
	body, err := r.converter.Process(req.Context(), req.Header.Get("Content-Type"), req.Body)
	if err != nil {
		r.respondErr(w, req, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="result.xlsx"`)
	w.Header().Set("Cache-Control", "no-store")
	if _, err := io.Copy(w, body); err != nil {
		r.log.Warn("Converter stream interrupted", zap.Error(err))
	}
}
