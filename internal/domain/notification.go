package domain

import "time"

// NotificationRecord is an outbound message staged for an external mailer
type NotificationRecord struct {
	ID        string    `json:"id" db:"notification_id"`
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	JobID     string    `json:"job_id,omitempty" db:"job_id"`
	Channel   string    `json:"channel" db:"channel"`
	Recipient string    `json:"recipient" db:"recipient"`
	Subject   string    `json:"subject" db:"subject"`
	Body      string    `json:"body" db:"body"`
	Timestamp time.Time `json:"timestamp" db:"created_at"`
}

// NotificationFilter narrows a notification listing. Zero values match everything.
type NotificationFilter struct {
	TenantID string
	JobID    string
	Limit    int
}

// Matches reports whether n passes the filter's tenant and job constraints.
func (f NotificationFilter) Matches(n NotificationRecord) bool {
	if f.TenantID != "" && n.TenantID != f.TenantID {
		return false
	}
	if f.JobID != "" && n.JobID != f.JobID {
		return false
	}
	return true
}
