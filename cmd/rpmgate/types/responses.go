package types

import "time"

// Common HTTP response types used across all handlers
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Code    string `json:"code,omitempty"`
}

type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Health check types
type HealthStatus struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
}

// UploadResult describes a stored artifact
type UploadResult struct {
	Repository string `json:"repository"`
	File       string `json:"file"`
	Size       int64  `json:"size"`
	Package    string `json:"package,omitempty"`
}

// RefreshResult describes a finished metadata refresh
type RefreshResult struct {
	RunID      string `json:"runId"`
	Repository string `json:"repository"`
	WaitedMs   int64  `json:"waitedMs"`
	DurationMs int64  `json:"durationMs"`
}
