package main

import (
	"bytes"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Simplici0/cotizaciones/internal/export"
	"github.com/Simplici0/cotizaciones/internal/quotation"
)

func (s *server) handleListQuotations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := quotation.ListFilter{
		Query:  q.Get("q"),
		Status: quotation.Status(q.Get("estado")),
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PageSize, _ = strconv.Atoi(q.Get("pageSize"))

	page, err := s.quotes.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *server) handleCreateQuotation(w http.ResponseWriter, r *http.Request) {
	var d quotation.Draft
	if err := decodeJSON(w, r, &d); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := s.quotes.Create(r.Context(), d, userFrom(r.Context()).Email)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"data": created})
}

func (s *server) handleGetQuotation(w http.ResponseWriter, r *http.Request) {
	q, err := s.quotes.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": q})
}

func (s *server) handleUpdateQuotation(w http.ResponseWriter, r *http.Request) {
	var d quotation.Draft
	if err := decodeJSON(w, r, &d); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := s.quotes.Update(r.Context(), chi.URLParam(r, "id"), d, userFrom(r.Context()).Email)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": updated})
}

func (s *server) handleDeleteQuotation(w http.ResponseWriter, r *http.Request) {
	if err := s.quotes.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status string `json:"estado"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q, err := s.quotes.ChangeStatus(r.Context(), chi.URLParam(r, "id"), body.Status, userFrom(r.Context()).Email)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": q})
}

type detailResponse struct {
	Quotation quotation.Quotation `json:"quotation"`
	Aggregate aggregateResponse   `json:"aggregate"`
	Summary   summaryResponse     `json:"summary"`
}

func (s *server) handleQuotationDetail(w http.ResponseWriter, r *http.Request) {
	d, err := s.quotes.Detail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detailResponse{
		Quotation: d.Quotation,
		Aggregate: newAggregateResponse(d.Aggregate),
		Summary:   newSummaryResponse(d.Summary),
	})
}

func (s *server) handleQuotationText(w http.ResponseWriter, r *http.Request) {
	d, err := s.quotes.Detail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(export.Text(d.Quotation, d.Aggregate, d.Summary)))
}

func (s *server) handleQuotationExport(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = "xlsx"
	}
	if format != "xlsx" && format != "csv" {
		writeError(w, http.StatusBadRequest, "format must be xlsx or csv")
		return
	}

	d, err := s.quotes.Detail(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var (
		body        []byte
		filename    string
		contentType string
	)
	switch format {
	case "csv":
		var buf bytes.Buffer
		if err := export.CSV(&buf, d.Quotation, d.Summary); err != nil {
			writeServiceError(w, err)
			return
		}
		body = buf.Bytes()
		filename = export.CSVFilename(d.Quotation)
		contentType = "text/csv; charset=utf-8"
	default:
		body, err = export.Workbook(d.Quotation, d.Summary)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		filename = export.Filename(d.Quotation)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	_, _ = w.Write(body)
}

func (s *server) handleListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := s.quotes.Comments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": comments})
}

func (s *server) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProductID int64  `json:"productId"`
		Field     string `json:"field"`
		Body      string `json:"body"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	c, err := s.quotes.Comment(r.Context(), chi.URLParam(r, "id"), body.ProductID, body.Field, body.Body, userFrom(r.Context()).Email)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"data": c})
}
