package httpapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"cloudlab/pkg/domain"
)

type startRequest struct {
	UserID string `json:"userId" validate:"required"`
	LabID  string `json:"labId" validate:"required"`
}

type validateRequest struct {
	UserID  string         `json:"userId" validate:"required"`
	LabID   string         `json:"labId" validate:"required"`
	StepID  string         `json:"stepId"`
	Action  string         `json:"action"`
	Payload map[string]any `json:"payload"`
}

type labSummary struct {
	ID      string `json:"id"`
	Service string `json:"service"`
	Title   string `json:"title"`
	Steps   int    `json:"steps"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// requestValidator adapts go-playground/validator to echo's Validator hook.
type requestValidator struct {
	validate *validator.Validate
}

func newRequestValidator() *requestValidator {
	return &requestValidator{validate: validator.New()}
}

func (v *requestValidator) Validate(i any) error {
	if err := v.validate.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// statusForCode maps the stable error taxonomy onto HTTP statuses. Only
// persistence failures are server faults.
func statusForCode(code domain.ErrorCode) int {
	switch code {
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeDuplicateKey, domain.CodeResourceState:
		return http.StatusConflict
	case domain.CodeReferentialIntegrity, domain.CodeValidationMismatch:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
