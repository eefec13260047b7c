package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/hybrid-bistoon/anbar/internal/services/printer"
	"go.uber.org/zap"
)

// labelSVG renders one 100×60 mm product label
func (r *Router) labelSVG(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	svg, err := r.labels.LabelSVG(printer.Label{
		Code:   q.Get("code"),
		Name:   q.Get("name"),
		Model:  q.Get("model"),
		Carton: q.Get("carton") == "1",
	})
	r.respondSVG(w, req, svg, err)
}

// barcodeSVG renders the bare barcode of a code
func (r *Router) barcodeSVG(w http.ResponseWriter, req *http.Request) {
	svg, err := printer.BarcodeSVG(mux.Vars(req)["code"])
	r.respondSVG(w, req, svg, err)
}

func (r *Router) respondSVG(w http.ResponseWriter, req *http.Request, svg string, err error) {
	if errors.Is(err, printer.ErrBadCode) {
		respondError(w, http.StatusBadRequest, "bad code")
		return
	}
	if err != nil {
		r.respondErr(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"svg": svg})
}

// labelsPDF handles the PDF generation request
func (r *Router) labelsPDF(w http.ResponseWriter, req *http.Request) {
	var config printer.SheetConfig
	if err := decodeJSON(req, &config); err != nil {
		r.respondErr(w, req, err)
		return
	}

	pdfBytes, err := printer.GenerateSheetPDF(config)
	if errors.Is(err, printer.ErrBadSheet) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		r.log.Error("❌ Failed to generate PDF", zap.Error(err))
		respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to generate PDF: %v", err))
		return
	}

	// Set headers for download
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"labels_%s.pdf\"", time.Now().Format("20060102_150405")))
	w.Header().Set("Content-Length", strconv.Itoa(len(pdfBytes)))

	w.Write(pdfBytes)
}
