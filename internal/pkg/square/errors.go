package square

import "fmt"

// APIError is the decoded processor error envelope for a non-2xx response.
type APIError struct {
	StatusCode int
	Category   string
	Code       string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("square api error: status=%d code=%s detail=%s", e.StatusCode, e.Code, e.Detail)
	}
	return fmt.Sprintf("square api error: status=%d", e.StatusCode)
}

// IsUnauthorized reports whether the error indicates a revoked or expired
// token. Initialization uses this to force re-authorization.
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

type errorEnvelope struct {
	Errors []struct {
		Category string `json:"category"`
		Code     string `json:"code"`
		Detail   string `json:"detail"`
	} `json:"errors"`
}
