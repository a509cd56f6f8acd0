package session

// Record is a live session cache entry. Overwritten in place on refresh,
// deleted on logout. The JSON field names are part of the cache schema and
// are also read by the evict-and-create Lua script.
type Record struct {
	SessionID     string `json:"sid"`
	UserID        string `json:"uid"`
	TenantID      string `json:"tid,omitempty"`
	AccessToken   string `json:"at"`
	RefreshToken  string `json:"rt"`
	AppInstanceID string `json:"aid,omitempty"`
	LoginAt       int64  `json:"lat"`
	ExpiresAt     int64  `json:"exp"`
}
