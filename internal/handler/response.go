package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/dispatch-api/internal/repository"
	"github.com/jwalitptl/dispatch-api/internal/service/account"
	"github.com/jwalitptl/dispatch-api/internal/service/report"
	apperrors "github.com/jwalitptl/dispatch-api/pkg/errors"
	pkgvalidator "github.com/jwalitptl/dispatch-api/pkg/validator"
)

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// AppError maps service and repository errors to their HTTP form.
func AppError(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return apperrors.BadRequest(pkgvalidator.Message(err), err)
	case errors.Is(err, repository.ErrStorage):
		return apperrors.StorageFailure(err)
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NotFound("resource", err)
	case errors.Is(err, account.ErrDuplicateAccount):
		return apperrors.Conflict("email or phone already registered", err)
	case errors.Is(err, repository.ErrReportNotPending):
		return apperrors.Conflict("report is no longer pending", err)
	case errors.Is(err, repository.ErrAmbulanceUnavailable):
		return apperrors.Conflict("ambulance is not available", err)
	case errors.Is(err, repository.ErrAmbulanceAssigned):
		return apperrors.Conflict("ambulance is already assigned to a driver", err)
	case errors.Is(err, account.ErrInvalidCredentials):
		return apperrors.Unauthorized("invalid credentials", err)
	case errors.Is(err, account.ErrSessionExpired):
		return apperrors.Unauthorized("session expired", err)
	case errors.Is(err, account.ErrAccountBlocked):
		return apperrors.Forbidden("account is blocked", err)
	case errors.Is(err, report.ErrFakeAlarm):
		return apperrors.Forbidden("report rejected as a false alarm; the account has been blocked", err)
	case errors.Is(err, report.ErrNotReporter):
		return apperrors.Forbidden("only reporting users can submit reports", err)
	case errors.Is(err, report.ErrImageRequired):
		return apperrors.BadRequest("an image is required", err)
	default:
		return apperrors.Internal(err)
	}
}

// Error writes err in the response envelope. Server-side failures are logged
// with the request id and their detail is withheld from the client.
func Error(c *gin.Context, err error) {
	appErr := AppError(err)
	status := appErr.StatusCode()
	if status >= http.StatusInternalServerError {
		log.Error().
			Err(err).
			Str("request_id", c.GetString("request_id")).
			Str("path", c.Request.URL.Path).
			Msg("Request failed")
	}
	c.AbortWithStatusJSON(status, NewErrorResponse(appErr.Message))
}

// BindError reports a request that failed to bind or validate.
func BindError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, NewErrorResponse(pkgvalidator.Message(err)))
}
