package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/Anvesh1211/indic-justice-league/pkg/errs"

	"github.com/google/uuid"
)

func NewRequestID() string { return "req_" + uuid.NewString() }

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ReadJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func WriteError(w http.ResponseWriter, status int, code, message string, details any) {
	resp := map[string]any{
		"request_id": NewRequestID(),
		"error": map[string]any{
			"code": code, "message": message, "details": details,
		},
	}
	WriteJSON(w, status, resp)
}

// WriteErr maps a typed error onto the wire envelope.
func WriteErr(w http.ResponseWriter, err error) {
	WriteError(w, errs.HTTPStatus(err), errs.Code(err), err.Error(), nil)
}
