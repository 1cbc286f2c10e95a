package models

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// LiveResponse is the body of the liveness probe
type LiveResponse struct {
	Status string `json:"status"`
}

// CommandAcceptedResponse is returned when a lifecycle command was queued
type CommandAcceptedResponse struct {
	CommandID     string      `json:"CommandId"`
	Type          CommandType `json:"Type"`
	ShardID       string      `json:"ShardId"`
	CorrelationID string      `json:"CorrelationId,omitempty"`
}

// ErrorResponse represents error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Path    string                 `json:"path,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}
