package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

const internalErrorMessage = "internal server error"

type errorResponse struct {
	Error   string        `json:"error"`
	Kind    domain.Kind   `json:"kind"`
	Field   string        `json:"field,omitempty"`
	Details []fieldDetail `json:"details,omitempty"`
}

type fieldDetail struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation, domain.KindInvalidState, domain.KindEmptyOrder:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindAuthentication, domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError отвечает ошибкой в формате {"error","kind","field"}.
// Текст внутренних ошибок клиенту не показывается.
func (a *API) writeError(c *gin.Context, err error) {
	kind := domain.KindOf(err)
	resp := errorResponse{Error: err.Error(), Kind: kind, Field: domain.FieldOf(err)}

	if kind == domain.KindInternal {
		a.logger.WithError(err).WithField("route", c.FullPath()).Error("request failed")
		resp.Error = internalErrorMessage
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok && kind == domain.KindValidation {
		resp.Field = ""
		for _, e := range joined.Unwrap() {
			resp.Details = append(resp.Details, fieldDetail{Field: domain.FieldOf(e), Message: fieldMessage(e)})
		}
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(statusFor(kind), resp)
}

func fieldMessage(err error) string {
	var fieldErr *domain.FieldError
	if errors.As(err, &fieldErr) {
		return fieldErr.Message
	}
	return err.Error()
}

// bindError превращает ошибку разбора тела запроса в ошибку валидации.
func bindError(err error) error {
	return domain.NewFieldError("", "malformed request body: "+err.Error())
}
