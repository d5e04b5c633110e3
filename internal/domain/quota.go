package domain

import "time"

// QuotaRecord is the per-tenant usage counter for a single UTC day
type QuotaRecord struct {
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	DayKey    string    `json:"day_key" db:"day_key"`
	Count     int       `json:"count" db:"count"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CountFor returns the stored count if it belongs to dayKey, otherwise zero.
func (r QuotaRecord) CountFor(dayKey string) int {
	if r.DayKey != dayKey || r.Count < 0 {
		return 0
	}
	return r.Count
}
