package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/md-rashed-zaman/docslot/services/booking-service/internal/apperr"
	"go.uber.org/zap"
)

type errorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind"`
	Refresh bool   `json:"refresh,omitempty"`
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalidInterval:
		return http.StatusBadRequest
	case apperr.KindValidation:
		return http.StatusUnprocessableEntity
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindSlotConflict:
		return http.StatusConflict
	case apperr.KindTransport:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorBody renders err for the client. Internal details never leak; the reason
// of an *apperr.Error is written for users.
func errorBody(err error) (int, []byte) {
	kind := apperr.KindOf(err)
	resp := errorResponse{Error: apperr.ReasonOf(err), Kind: string(kind)}
	var e *apperr.Error
	if errors.As(err, &e) {
		resp.Refresh = e.NeedsRefresh()
	}
	body, _ := json.Marshal(resp)
	return statusFor(kind), body
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	writeRaw(w, status, body)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorBody(err)
	h.logFailure(r, status, err)
	writeRaw(w, status, body)
}

func (h *Handler) logFailure(r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		h.logger(r).Error("request failed", zap.Int("status", status), zap.Error(err))
		return
	}
	h.logger(r).Info("request rejected", zap.Int("status", status), zap.String("kind", string(apperr.KindOf(err))), zap.Error(err))
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and validates it. Failures are validation errors.
func (h *Handler) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Invalid("request body is required")
		}
		return apperr.Wrap(apperr.KindValidation, "invalid json body", err)
	}
	return h.validateStruct(dst)
}

func (h *Handler) validateStruct(v any) error {
	err := h.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return apperr.Wrap(apperr.KindValidation, fmt.Sprintf("%s failed %q validation", fe.Namespace(), fe.Tag()), err)
	}
	return apperr.Wrap(apperr.KindValidation, "invalid request", err)
}
