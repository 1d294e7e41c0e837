package models

// AuthProgress reports the state of the authorization worker. The counters
// are meaningful only while Running is true and describe the current fixed
// batch, not entries enqueued after the batch was snapshotted.
type AuthProgress struct {
	Running          bool   `json:"running"`
	CurrentAccountID string `json:"current_account_id,omitempty"`
	Completed        int    `json:"completed"`
	Total            int    `json:"total"`
}
