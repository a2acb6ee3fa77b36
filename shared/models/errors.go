package models

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Application-wide standard errors
var (
	// Ресурсы / БД
	ErrNotFound        = errors.New("resource not found")
	ErrStoryNotFound   = errors.New("story not found")
	ErrSegmentNotFound = errors.New("segment not found")
	ErrConflict        = errors.New("resource conflict")
	ErrDatabase        = errors.New("database error")

	// Аутентификация и доступ
	ErrUnauthorized      = errors.New("unauthorized")
	ErrMissingToken      = errors.New("missing bearer token")
	ErrForbidden         = errors.New("forbidden")
	ErrNotResourceOwner  = errors.New("caller is not the resource owner")
	ErrInsufficientRoles = errors.New("insufficient permissions")

	// Токены
	ErrTokenInvalid   = errors.New("token is invalid")
	ErrTokenMalformed = errors.New("token is malformed")
	ErrTokenExpired   = errors.New("token has expired")

	// Валидация
	ErrBadRequest     = errors.New("bad request")
	ErrMissingField   = errors.New("missing required field")
	ErrInvalidField   = errors.New("invalid field value")
	ErrInvalidChoice  = errors.New("invalid choice index")
	ErrStoryCompleted = errors.New("story is already completed")

	// Граф истории
	ErrPositionConflict       = errors.New("segment position already taken")
	ErrInvalidAssetTransition = errors.New("invalid asset status transition")

	// Кредиты
	ErrInsufficientCredits  = errors.New("insufficient credits")
	ErrDuplicateTransaction = errors.New("duplicate credit transaction")
	ErrInvalidAmount        = errors.New("credit amount must be positive")

	// Внешние сервисы
	ErrAIProvider    = errors.New("external AI provider error")
	ErrTimeout       = errors.New("upstream timeout")
	ErrMisconfigured = errors.New("service misconfigured")

	ErrInternalServer = errors.New("internal server error")
)

// Машиночитаемые коды ошибок. Клиенты ветвятся по ним, а не по тексту.
const (
	CodeMissingToken        = "MISSING_TOKEN"
	CodeInvalidToken        = "INVALID_TOKEN"
	CodeInsufficientPerms   = "INSUFFICIENT_PERMISSIONS"
	CodeNotResourceOwner    = "NOT_RESOURCE_OWNER"
	CodeMissingField        = "MISSING_REQUIRED_FIELD"
	CodeInvalidField        = "INVALID_FIELD_VALUE"
	CodeNotFound            = "NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodeForbidden           = "FORBIDDEN"
	CodeInsufficientCredits = "INSUFFICIENT_CREDITS"
	CodeDatabase            = "DATABASE_ERROR"
	CodeAIProvider          = "AI_PROVIDER_ERROR"
	CodeTimeout             = "TIMEOUT"
	CodeConfiguration       = "SERVICE_CONFIGURATION_ERROR"
	CodeInternal            = "INTERNAL_ERROR"
)

// AppError - ошибка со стабильным кодом и HTTP статусом.
type AppError struct {
	Code    string
	Status  int
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// NewAppError создает AppError поверх исходной ошибки.
func NewAppError(code string, status int, message string, err error) *AppError {
	return &AppError{Code: code, Status: status, Message: message, Err: err}
}

// ValidationError возвращает ошибку валидации конкретного поля.
func ValidationError(field string, missing bool) error {
	if missing {
		return fmt.Errorf("%w: %s", ErrMissingField, field)
	}
	return fmt.Errorf("%w: %s", ErrInvalidField, field)
}

// ClassifyError сводит любую цепочку ошибок к таксономии API.
// Неизвестные ошибки превращаются в INTERNAL_ERROR без внутреннего текста.
func ClassifyError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, ErrMissingToken):
		return NewAppError(CodeMissingToken, http.StatusUnauthorized, "Missing bearer token", err)
	case errors.Is(err, ErrTokenExpired):
		return NewAppError(CodeInvalidToken, http.StatusUnauthorized, "Token has expired", err)
	case errors.Is(err, ErrTokenInvalid), errors.Is(err, ErrTokenMalformed), errors.Is(err, ErrUnauthorized):
		return NewAppError(CodeInvalidToken, http.StatusUnauthorized, "Invalid token", err)
	case errors.Is(err, ErrInsufficientRoles):
		return NewAppError(CodeInsufficientPerms, http.StatusForbidden, "Insufficient permissions", err)
	case errors.Is(err, ErrNotResourceOwner):
		return NewAppError(CodeNotResourceOwner, http.StatusForbidden, "Not the owner of this resource", err)
	case errors.Is(err, ErrForbidden):
		return NewAppError(CodeForbidden, http.StatusForbidden, "Forbidden", err)
	case errors.Is(err, ErrMissingField):
		return NewAppError(CodeMissingField, http.StatusBadRequest, err.Error(), err)
	case errors.Is(err, ErrInvalidField), errors.Is(err, ErrInvalidChoice), errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrBadRequest):
		return NewAppError(CodeInvalidField, http.StatusBadRequest, err.Error(), err)
	case errors.Is(err, ErrStoryNotFound), errors.Is(err, ErrSegmentNotFound), errors.Is(err, ErrNotFound):
		return NewAppError(CodeNotFound, http.StatusNotFound, "Resource not found", err)
	case errors.Is(err, ErrStoryCompleted), errors.Is(err, ErrDuplicateTransaction),
		errors.Is(err, ErrPositionConflict), errors.Is(err, ErrInvalidAssetTransition), errors.Is(err, ErrConflict):
		return NewAppError(CodeConflict, http.StatusConflict, conflictMessage(err), err)
	case errors.Is(err, ErrInsufficientCredits):
		return NewAppError(CodeInsufficientCredits, http.StatusPaymentRequired, "Insufficient credits", err)
	case errors.Is(err, ErrMisconfigured):
		return NewAppError(CodeConfiguration, http.StatusInternalServerError, "Service configuration error", err)
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return NewAppError(CodeTimeout, http.StatusServiceUnavailable, "Upstream timeout", err)
	case errors.Is(err, ErrAIProvider):
		return NewAppError(CodeAIProvider, http.StatusBadGateway, "AI provider error", err)
	case errors.Is(err, ErrDatabase):
		return NewAppError(CodeDatabase, http.StatusServiceUnavailable, "Database error", err)
	default:
		return NewAppError(CodeInternal, http.StatusInternalServerError, "Internal server error", err)
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, ErrStoryCompleted):
		return ErrStoryCompleted.Error()
	case errors.Is(err, ErrDuplicateTransaction):
		return "Duplicate request"
	case errors.Is(err, ErrInvalidAssetTransition):
		return "Asset generation already in progress or completed"
	default:
		return "Conflict, please retry"
	}
}
