package gotrue

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	apperrors "github.com/alungalsinan/groot-scribe-studio/internal/errors"
)

// AuthError is an error response from the auth service. Error returns the
// server's message unchanged so it can be shown to users.
type AuthError struct {
	Status  int
	Code    string
	Message string
}

func (e *AuthError) Error() string { return e.Message }

// Unwrap exposes the matching application error so callers can use the
// apperrors predicates.
func (e *AuthError) Unwrap() error {
	return &apperrors.AppError{Code: e.appCode(), Message: e.Message}
}

func (e *AuthError) appCode() apperrors.ErrorCode {
	switch {
	case e.Status == http.StatusNotFound:
		return apperrors.ErrCodeNotFound
	case e.Status == http.StatusConflict || e.Code == "user_already_exists" || e.Code == "email_exists":
		return apperrors.ErrCodeConflict
	case e.Status == http.StatusUnprocessableEntity:
		return apperrors.ErrCodeValidation
	case e.Status == http.StatusTooManyRequests || e.Status >= 500:
		return apperrors.ErrCodeUnavailable
	default:
		return apperrors.ErrCodeUnauthorized
	}
}

// errorBody covers the error shapes returned by GoTrue versions.
type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Code             any    `json:"code"`
}

func parseAuthError(status int, body []byte) *AuthError {
	var eb errorBody
	_ = json.Unmarshal(body, &eb)

	msg := firstNonEmpty(eb.ErrorDescription, eb.Msg, eb.Message, eb.Error)
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" || strings.HasPrefix(msg, "<") {
		msg = http.StatusText(status)
	}

	code := eb.ErrorCode
	if code == "" {
		if s, ok := eb.Code.(string); ok {
			code = s
		}
	}
	if code == "" && eb.Error != "" && eb.Error != msg {
		code = eb.Error
	}
	return &AuthError{Status: status, Code: code, Message: msg}
}

// definitive reports whether a refresh failure means the session is gone,
// as opposed to a transient outage.
func definitive(err error) bool {
	var ae *AuthError
	if !errors.As(err, &ae) {
		return false
	}
	return ae.Status >= 400 && ae.Status < 500 && ae.Status != http.StatusTooManyRequests
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
