package client

import (
	"encoding/json"
	"net/http"
	"net/url"
)

// Supported HTTP methods for REST calls.
var supportedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodDelete: true,
}

// RequestSpec describes a single API call. Constructed fresh per call and
// never mutated after dispatch.
type RequestSpec struct {
	// Method is the HTTP method; empty means GET.
	Method string

	// Path is the endpoint, either a leading-slash path or a full URL on
	// the configured API base.
	Path string

	// Query holds query parameters; duplicate keys are allowed.
	Query url.Values

	// Header holds extra request headers applied on top of the
	// authorization and accept headers.
	Header http.Header

	// Body is JSON-encoded for POST/PUT requests when non-nil.
	Body any

	// Masked controls the Accept masking parameter. When true, fields
	// containing personally identifiable information are masked by the API.
	Masked bool
}

// Response is the outcome of an executed request. The body is fully read
// before the response is returned.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// JSON unmarshals the response body into v.
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// NoContent reports whether the server answered 204 No Content, the
// pagination termination signal.
func (r *Response) NoContent() bool {
	return r.StatusCode == http.StatusNoContent
}
