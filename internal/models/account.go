package models

import "time"

// Snapshot is one live-stream metrics row returned by the platform API.
// The orchestrator treats these opaquely; only the metrics client maps fields.
type Snapshot struct {
	ID        string     `json:"id"`
	Title     string     `json:"title,omitempty"`
	Status    string     `json:"status,omitempty"`
	Viewers   int64      `json:"viewers"`
	Likes     int64      `json:"likes"`
	Revenue   float64    `json:"revenue"`
	StartedAt time.Time  `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// MetricsSnapshot is the result of one successful metrics fetch for an
// account, split into currently-live and already-ended items.
type MetricsSnapshot struct {
	Live  []Snapshot `json:"live"`
	Ended []Snapshot `json:"ended"`
}

// MonitoredAccount is the in-memory runtime aggregate for one registered
// account. LiveItems and EndedItems are replaced wholesale on every
// successful fetch - last fetch wins, there is no incremental merge.
type MonitoredAccount struct {
	AccountID   string     `json:"account_id"`
	DisplayName string     `json:"display_name,omitempty"`
	LiveItems   []Snapshot `json:"live_items"`
	EndedItems  []Snapshot `json:"ended_items"`
	LastFetchAt time.Time  `json:"last_fetch_at"`

	Credential *AccountCredential `json:"-"`
}

// Status returns the account's current credential status.
func (a *MonitoredAccount) Status() AccountStatus {
	if a.Credential == nil {
		return AccountStatusUnknown
	}
	return a.Credential.Status
}

// ApplyMetrics replaces the account's snapshot data from a successful fetch.
func (a *MonitoredAccount) ApplyMetrics(m *MetricsSnapshot, at time.Time) {
	if m == nil {
		return
	}
	a.LiveItems = m.Live
	a.EndedItems = m.Ended
	a.LastFetchAt = at
}

// AccountView is the read-only listing shape returned by the API surface.
type AccountView struct {
	AccountID   string        `json:"account_id"`
	DisplayName string        `json:"display_name,omitempty"`
	Status      AccountStatus `json:"status"`
	LiveCount   int           `json:"live_count"`
	EndedCount  int           `json:"ended_count"`
	LastFetchAt time.Time     `json:"last_fetch_at"`
}
