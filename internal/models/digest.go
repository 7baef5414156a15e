package models

import "strings"

// DigestEntry is how far one (collection, type) pair has advanced on the
// server versus what this client has acknowledged.
type DigestEntry struct {
	KegDbID       string `json:"kegDbId" cbor:"1,keyasint"`
	Type          string `json:"type" cbor:"2,keyasint"`
	MaxUpdateID   string `json:"maxUpdateId" cbor:"3,keyasint"`
	KnownUpdateID string `json:"knownUpdateId" cbor:"4,keyasint"`
	NewKegsCount  int    `json:"newKegsCount" cbor:"5,keyasint"` // подсказка, не точное число
}

// HasUpdates reports whether the server is ahead of what was acknowledged.
func (d DigestEntry) HasUpdates() bool {
	return CompareUpdateID(d.KnownUpdateID, d.MaxUpdateID) < 0
}

// CompareUpdateID orders update ids. Ids are unsigned decimal strings of any
// length; the empty string sorts before every id.
func CompareUpdateID(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return strings.Compare(a, b)
}

// MaxUpdateID returns the newer of two update ids.
func MaxUpdateID(a, b string) string {
	if CompareUpdateID(a, b) >= 0 {
		return a
	}
	return b
}
