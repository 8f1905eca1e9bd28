package atlas

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// APIError is a non-2xx response from the Atlas Admin API.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	ErrorCode  string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("atlas: %s %s: %d %s: %s", e.Method, e.Path, e.StatusCode, e.ErrorCode, e.Detail)
	}
	return fmt.Sprintf("atlas: %s %s: %d", e.Method, e.Path, e.StatusCode)
}

// IsNotFound reports whether err is an Atlas 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

func newAPIError(method, path string, resp *http.Response) *APIError {
	apiErr := &APIError{
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode,
	}

	// Atlas error bodies carry errorCode and detail; decode best-effort.
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apiErr
	}
	var body struct {
		ErrorCode string `json:"errorCode"`
		Detail    string `json:"detail"`
	}
	if json.Unmarshal(data, &body) == nil {
		apiErr.ErrorCode = body.ErrorCode
		apiErr.Detail = body.Detail
	}
	return apiErr
}
