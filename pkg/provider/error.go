package provider

// ErrorResponse is the structured error body returned by the relay when a
// failure happens before any stream output is committed.
type ErrorResponse struct {
	Error string `json:"error"`
}
