package domain

import "time"

// DailyStat is the per-tenant daily rollup the dashboard and the warehouse
// exporter read. Day is truncated to UTC midnight.
type DailyStat struct {
	TenantID       string    `json:"tenant_id" db:"tenant_id"`
	Day            time.Time `json:"day" db:"day"`
	DMsSent        int       `json:"dms_sent" db:"dms_sent"`
	DMsFailed      int       `json:"dms_failed" db:"dms_failed"`
	LeadsScored    int       `json:"leads_scored" db:"leads_scored"`
	LeadsContacted int       `json:"leads_contacted" db:"leads_contacted"`
	Blocks         int       `json:"blocks" db:"blocks"`
}
