package api

// DigestRequest asks either for every collection with unread updates
// or for the full digest of the listed collections.
type DigestRequest struct {
	KegDbIDs []string `json:"kegDbIds,omitempty"`
	Unread   bool     `json:"unread,omitempty"`
}

// DigestEvent is one (collection, type) digest line, both as a response item
// and as a pushed/polled notification.
type DigestEvent struct {
	KegDbID       string `json:"kegDbId"`
	Type          string `json:"type"`
	MaxUpdateID   string `json:"maxUpdateId"`
	KnownUpdateID string `json:"knownUpdateId"`
	NewKegsCount  int    `json:"newKegsCount"`
}

// DigestResponse is the reply to CmdDigest.
type DigestResponse struct {
	Events []DigestEvent `json:"events"`
}

// LastKnownVersionRequest acknowledges updates up to LastKnownVersion.
type LastKnownVersionRequest struct {
	KegDbID          string `json:"kegDbId"`
	Type             string `json:"type"`
	LastKnownVersion string `json:"lastKnownVersion"`
}
