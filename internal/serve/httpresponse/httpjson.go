package httpresponse

import (
	"encoding/json"
	"net/http"

	"github.com/paymenthub/payment-engine-backend/internal/log"
)

// Render writes v as a JSON response body with status 200.
func Render(w http.ResponseWriter, v any) {
	RenderStatus(w, http.StatusOK, v)
}

// RenderStatus writes v as an indented JSON response body with the given
// status code. Marshalling failures degrade to a plain 500: by the time they
// surface the handler already ran, so there is nothing better to report.
func RenderStatus(w http.ResponseWriter, statusCode int, v any) {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.WithField("err", err.Error()).Error("cannot marshal JSON response")
		http.Error(w, `{"error": "An internal error occurred while processing this request."}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	if _, err = w.Write(body); err != nil {
		log.WithField("err", err.Error()).Error("cannot write JSON response")
	}
}

// RenderXML writes an ISO 20022 document (already encoded) as an XML response
// body with the given status code.
func RenderXML(w http.ResponseWriter, statusCode int, body []byte) {
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(statusCode)
	if _, err := w.Write(body); err != nil {
		log.WithField("err", err.Error()).Error("cannot write XML response")
	}
}
