package models

// ErrorBody is the error payload returned by the rules API
type ErrorBody struct {
	Code        string         `json:"code"`
	Message     string         `json:"message"`
	Details     map[string]any `json:"details,omitempty"`
	FieldErrors []FieldMessage `json:"field_errors,omitempty"`
}

// ErrorEnvelope wraps ErrorBody on the wire: {"error": {...}}
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// StatusRequest is the body of the enable/disable call
type StatusRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// RollbackRequest is the body of the rollback call
type RollbackRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}
