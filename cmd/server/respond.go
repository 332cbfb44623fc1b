package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"strconv"

	"github.com/Simplici0/cotizaciones/internal/cms"
	"github.com/Simplici0/cotizaciones/internal/quotation"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// writeServiceError maps domain and storage errors to HTTP responses.
func writeServiceError(w http.ResponseWriter, err error) {
	var (
		validation *quotation.ValidationError
		apiErr     *cms.APIError
	)
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, validation.Error())
	case errors.Is(err, quotation.ErrNotFound):
		writeError(w, http.StatusNotFound, "cotización no encontrada")
	case errors.As(err, &apiErr):
		log.Printf("cms error: %v", err)
		writeError(w, http.StatusBadGateway, "el CMS respondió con un error")
	default:
		log.Printf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "error interno")
	}
}

// number is a float64 that encodes NaN and infinities as null, which plain
// encoding/json refuses to marshal.
type number float64

func (n number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}
