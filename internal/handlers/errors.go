package handlers

import (
	"errors"
	"net/http"

	"dentalcrm/internal/apperrors"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const internalErrorMessage = "Internal server error"

// ErrorHandler renders every error as {"message": ...}. Causes of 500s are
// logged and never sent to the client.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, message := classify(err)
	if status >= http.StatusInternalServerError {
		zerolog.Ctx(c.Request().Context()).Error().Err(err).
			Str("method", c.Request().Method).
			Str("path", c.Request().URL.Path).
			Msg("request failed")
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, echo.Map{"message": message})
	}
	if err != nil {
		zerolog.Ctx(c.Request().Context()).Error().Err(err).Msg("failed to write error response")
	}
}

func classify(err error) (int, string) {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		status := appErr.Kind.StatusCode()
		if appErr.Kind == apperrors.KindInternal {
			return status, internalErrorMessage
		}
		return status, appErr.Message
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.Code >= http.StatusInternalServerError {
			return httpErr.Code, internalErrorMessage
		}
		if msg, ok := httpErr.Message.(string); ok {
			return httpErr.Code, msg
		}
		return httpErr.Code, http.StatusText(httpErr.Code)
	}

	return http.StatusInternalServerError, internalErrorMessage
}
