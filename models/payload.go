package models

import "encoding/json"

// Event names carried in Frame.Event.
const (
	EventSessionJoin   = "session:join"
	EventPatientUpdate = "patient:update"
	EventPatientSubmit = "patient:submit"
	EventStaffUpdate   = "staff:update"
)

type Status string

const (
	StatusFilling   Status = "FILLING"
	StatusInactive  Status = "INACTIVE"
	StatusSubmitted Status = "SUBMITTED"
)

type Role string

const (
	RolePatient Role = "patient"
	RoleStaff   Role = "staff"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RolePatient || r == RoleStaff
}

// Draft is the patient's in-progress form data keyed by field name. Values are
// untyped; nothing on the relay path may assume a key exists.
type Draft map[string]interface{}

// Clone returns a shallow copy of d.
func (d Draft) Clone() Draft {
	out := make(Draft, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// UpdatePayload is sent by the patient role and delivered unchanged to staff.
type UpdatePayload struct {
	SessionID    string `json:"sessionId"`
	Draft        Draft  `json:"draft"`
	Status       Status `json:"status"`
	LastActiveAt int64  `json:"lastActiveAt"`
}

// Frame is the envelope of every WebSocket text message in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Session is the identity a client persists between runs.
type Session struct {
	SessionID string
	Role      Role
}

type HealthResponse struct {
	Status string `json:"status"`
}
