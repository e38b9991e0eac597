package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/xela07ax/requestflow/internal/domain"
)

type envelope struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    domain.ErrorKind `json:"code"`
	Message string           `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// StatusFor переводит вид ошибки в HTTP-код.
func StatusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindInvalidInput:
		return http.StatusBadRequest
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInvalidState, domain.KindConflict:
		return http.StatusConflict
	case domain.KindExternalService:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	kind := domain.KindOf(err)
	status := StatusFor(kind)

	message := "Internal server error"
	var de *domain.Error
	if errors.As(err, &de) && kind != domain.KindInternal {
		message = de.Message
	}

	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.String("kind", string(kind)), zap.Error(err))
	} else {
		logger.Debug("request rejected", zap.String("kind", string(kind)), zap.Error(err))
	}
	writeJSON(w, status, errorBody{Error: errorDetail{Code: kind, Message: message}})
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// в сообщениях об ошибках поля называются как в JSON
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeBody читает JSON и прогоняет его через validator. Ошибки всегда InvalidInput.
func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.InvalidInput("Request body is required")
		}
		return domain.InvalidInput("Invalid JSON in request body")
	}
	if err := validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return domain.InvalidInput("invalid request body")
	}
	fe := errs[0]
	switch fe.Tag() {
	case "required":
		return domain.InvalidInput("%s is required", fe.Field())
	case "oneof":
		return domain.InvalidInput("%s must be one of: %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gt":
		if fe.Param() == "0" {
			return domain.InvalidInput("%s must be a positive number", fe.Field())
		}
		return domain.InvalidInput("%s must be greater than %s", fe.Field(), fe.Param())
	case "max":
		return domain.InvalidInput("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return domain.InvalidInput("%s is invalid", fe.Field())
	}
}

func pathParam(value, name string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return "", domain.InvalidInput("Missing path parameter: %s", name)
	}
	return value, nil
}

func successMessage(subject, verb string) string {
	return fmt.Sprintf("%s %s successfully", subject, verb)
}
