package model

// SessionCleanupJob is the queue payload instructing the worker to tear down
// a deleted session's temporary documents and vector index.
type SessionCleanupJob struct {
	TenantID  string `json:"tenant_id"`
	SessionID string `json:"session_id"`
}
