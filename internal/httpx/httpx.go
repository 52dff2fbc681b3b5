package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/joao-fontenele/botmarket/internal/domain"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

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

// ValidationError describes a request body that failed decoding or validation.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return domain.ErrValidation }

// Decode reads a JSON body into dst and validates its struct tags.
func Decode(r *http.Request, dst any) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &ValidationError{Message: "request body is required"}
		}
		return &ValidationError{Message: "invalid request body"}
	}

	if err := validate.Struct(dst); err != nil {
		return &ValidationError{Message: "validation failed", Fields: FormatValidationErrors(err)}
	}
	return nil
}

// FormatValidationErrors maps each failing field to a readable message.
func FormatValidationErrors(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("failed on the '%s' tag", fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s (value: %s)", msg, fe.Param())
		}
		fields[fe.Field()] = msg
	}
	return fields
}

func WriteJSON(w http.ResponseWriter, logger *slog.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func WriteError(w http.ResponseWriter, logger *slog.Logger, status int, message string) {
	WriteJSON(w, logger, status, map[string]string{"error": message})
}

// WriteDomainError maps err onto the validation/conflict/not-found taxonomy.
// Anything else is logged and reported as an internal error.
func WriteDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		body := map[string]any{"error": verr.Message}
		if len(verr.Fields) > 0 {
			body["fields"] = verr.Fields
		}
		WriteJSON(w, logger, http.StatusBadRequest, body)
	case errors.Is(err, domain.ErrValidation):
		WriteError(w, logger, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		WriteError(w, logger, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		WriteError(w, logger, http.StatusConflict, err.Error())
	default:
		logger.Error("request failed", "error", err)
		WriteError(w, logger, http.StatusInternalServerError, "internal server error")
	}
}
