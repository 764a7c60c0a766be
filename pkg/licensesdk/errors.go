package licensesdk

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Error codes the server puts in the "error" field of failure bodies.
const (
	ErrorCodeInvalidRequest    = "invalid_request"
	ErrorCodeInvalidToken      = "invalid_token"
	ErrorCodeLicenseExists     = "license_exists"
	ErrorCodeRateLimitExceeded = "rate_limit_exceeded"
	ErrorCodeServerError       = "server_error"
)

// APIError is a non-2xx answer from the service.
type APIError struct {
	StatusCode int

	// Code is the machine readable error code, empty for the
	// {success:false, message} shape of get-trial.
	Code string

	// Description is error_description, or message when that is what the
	// server sent.
	Description string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("licensesdk: HTTP %d: %s", e.StatusCode, e.Description)
	}
	return fmt.Sprintf("licensesdk: HTTP %d: %s: %s", e.StatusCode, e.Code, e.Description)
}

// parseErrorResponse turns a failure body into an *APIError.
func parseErrorResponse(resp *http.Response, body []byte) error {
	var errResp struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		Message          string `json:"message"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil {
		switch {
		case errResp.Error != "":
			return &APIError{
				StatusCode:  resp.StatusCode,
				Code:        errResp.Error,
				Description: errResp.ErrorDescription,
			}
		case errResp.Message != "":
			return &APIError{
				StatusCode:  resp.StatusCode,
				Description: errResp.Message,
			}
		}
	}

	return &APIError{
		StatusCode:  resp.StatusCode,
		Code:        ErrorCodeServerError,
		Description: http.StatusText(resp.StatusCode),
	}
}
