package domain

import "time"

// AuditLog is one recorded auth or account event. UserID is empty when the actor is unknown (e.g. login_failure).
type AuditLog struct {
	ID        string
	UserID    string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
