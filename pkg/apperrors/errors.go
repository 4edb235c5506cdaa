// Пакет apperrors описывает типизированные ошибки приложения,
// которые транспортный слой превращает в HTTP-статусы и сообщения
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError структурированная ошибка с кодом, сообщением и HTTP-статусом.
// Fields содержит ошибки по полям формы (например name -> "errornameexists").
type AppError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	StatusCode int               `json:"-"`
	Fields     map[string]string `json:"fields,omitempty"`
	Internal   error             `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}
	return e.Message
}

// Unwrap отдаёт внутреннюю ошибку для errors.Is / errors.As
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// Is сравнивает ошибки по коду, поэтому errors.Is(err, ErrNotFound)
// срабатывает для любой ошибки, созданной через NotFound(...)
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// WithInternal возвращает копию ошибки с прикреплённой внутренней причиной
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}
	cpy := *e
	cpy.Internal = err
	return &cpy
}

// WithFields возвращает копию ошибки с ошибками по полям
func (e *AppError) WithFields(fields map[string]string) *AppError {
	if e == nil {
		return nil
	}
	cpy := *e
	cpy.Fields = fields
	return &cpy
}

// Базовые ошибки, по которым сверяются остальные слои
var (
	ErrValidation = &AppError{
		Code:       "VALIDATION_ERROR",
		Message:    "validation failed",
		StatusCode: http.StatusBadRequest,
	}
	ErrNotFound = &AppError{
		Code:       "NOT_FOUND",
		Message:    "record not found",
		StatusCode: http.StatusNotFound,
	}
	ErrForbidden = &AppError{
		Code:       "FORBIDDEN",
		Message:    "permission denied",
		StatusCode: http.StatusForbidden,
	}
	ErrInternal = &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		StatusCode: http.StatusInternalServerError,
	}
)

// Validation создаёт ошибку валидации с указанным сообщением
func Validation(message string) *AppError {
	return &AppError{Code: ErrValidation.Code, Message: message, StatusCode: ErrValidation.StatusCode}
}

// NotFound создаёт ошибку отсутствия записи
func NotFound(message string) *AppError {
	return &AppError{Code: ErrNotFound.Code, Message: message, StatusCode: ErrNotFound.StatusCode}
}

// Forbidden создаёт ошибку нехватки прав
func Forbidden(message string) *AppError {
	return &AppError{Code: ErrForbidden.Code, Message: message, StatusCode: ErrForbidden.StatusCode}
}

// FromError приводит произвольную ошибку к AppError, по умолчанию ErrInternal
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return ErrInternal.WithInternal(err)
}
