package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"quizroom-service/internal/config"
	"quizroom-service/internal/domain"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindNotAuthorized:
		return http.StatusForbidden
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindResourceExhausted:
		return http.StatusServiceUnavailable
	case domain.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err with the status its kind maps to. Internal faults
// are logged and hidden behind a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var de *domain.Error
	if errors.As(err, &de) {
		writeJSON(w, statusFor(de.Kind), errorBody{Error: string(de.Kind), Message: de.Message})
		return
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: string(domain.KindValidation), Message: validationMessage(verrs)})
		return
	}
	config.WithContext(r.Context()).WithError(err).Error("request failed")
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: string(domain.KindInternal), Message: "An internal error occurred."})
}

func validationMessage(errs validator.ValidationErrors) string {
	fe := errs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required."
	case "len":
		return fe.Field() + " must be " + fe.Param() + " characters."
	case "numeric":
		return fe.Field() + " must contain digits only."
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + "."
	case "min":
		return fe.Field() + " must be at least " + fe.Param() + "."
	default:
		return fe.Field() + " is invalid."
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// decode reads a JSON body into dst and validates it. An empty body is
// treated as an empty object so validation reports the missing fields.
func decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return &domain.Error{Kind: domain.KindValidation, Message: "Request body is not valid JSON."}
	}
	return validate.Struct(dst)
}
