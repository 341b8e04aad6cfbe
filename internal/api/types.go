package api

import (
	"time"

	"facewatch/internal/deps"
	"facewatch/internal/identify"
	"facewatch/internal/records"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// HealthResponse answers GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	SessionID string `json:"sessionId,omitempty"`
}

// StatusResponse answers GET /api/status.
type StatusResponse struct {
	SessionID    string             `json:"sessionId,omitempty"`
	StartedAt    string             `json:"startedAt,omitempty"`
	CameraMode   string             `json:"cameraMode,omitempty"`
	Engine       EngineStatus       `json:"engine"`
	Workflows    []identify.Status  `json:"workflows"`
	Dependencies []DependencyStatus `json:"dependencies,omitempty"`
}

// EngineStatus reports the engine process and who it is answering. A gate in
// the "orphaned" state owes a reply to an abandoned request; resetting any
// workflow again stops waiting for it.
type EngineStatus struct {
	Running   bool                `json:"running"`
	Pid       int                 `json:"pid,omitempty"`
	ExitError string              `json:"exitError,omitempty"`
	Gate      identify.GateStatus `json:"gate"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// IdentifyRequest is the body of POST /api/identify/{modality}.
type IdentifyRequest struct {
	Path string `json:"path"`
}

// WorkflowResponse returns the workflow snapshot after an accepted operation.
type WorkflowResponse struct {
	Status identify.Status `json:"status"`
}

// EnrollRequest is the body of POST /api/records.
type EnrollRequest struct {
	records.NewRecord
	Photos []string `json:"photos"`
}

// EnrollResponse reports the stored record.
type EnrollResponse struct {
	RecordID int64 `json:"recordId"`
	Photos   int   `json:"photos"`
}

// ErrorResponse is every non-2xx body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// FromDependencies converts a dependency report for transport.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	if len(statuses) == 0 {
		return nil
	}
	out := make([]DependencyStatus, len(statuses))
	for i, dep := range statuses {
		out[i] = DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		}
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateTimeFormat)
}
