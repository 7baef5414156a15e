package api

import "encoding/json"

// Keg is the wire form of a single versioned object.
// Payload holds ciphertext frames for encrypted kegs and raw JSON for plaintext ones.
type Keg struct {
	Props             map[string]json.RawMessage `json:"props,omitempty"`
	KegID             string                     `json:"kegId"`
	KegDbID           string                     `json:"kegDbId"`
	Type              string                     `json:"type"`
	KeyID             string                     `json:"keyId,omitempty"`
	Owner             string                     `json:"owner,omitempty"`
	CollectionVersion string                     `json:"collectionVersion,omitempty"`
	Signature         string                     `json:"signature,omitempty"` // base64 ed25519 detached signature
	SignedBy          string                     `json:"signedBy,omitempty"`
	Payload           []byte                     `json:"payload,omitempty"`
	Version           int                        `json:"version"`
	Format            int                        `json:"format"`
	Deleted           bool                       `json:"deleted,omitempty"`
}

// CreateKegRequest reserves a keg id in a collection.
// KegID is optional: named kegs (settings and the like) ask for a fixed id.
type CreateKegRequest struct {
	KegDbID string `json:"kegDbId"`
	Type    string `json:"type"`
	KegID   string `json:"kegId,omitempty"`
}

// CreateKegResponse carries the reserved id and the empty keg's version.
type CreateKegResponse struct {
	KegID             string `json:"kegId"`
	CollectionVersion string `json:"collectionVersion"`
	Version           int    `json:"version"`
}

// UpdateKegRequest submits a new keg version.
// Version must be exactly the stored version + 1.
type UpdateKegRequest struct {
	Props     map[string]json.RawMessage `json:"props,omitempty"`
	KegDbID   string                     `json:"kegDbId"`
	KegID     string                     `json:"kegId"`
	KeyID     string                     `json:"keyId,omitempty"`
	Type      string                     `json:"type"`
	Signature string                     `json:"signature,omitempty"`
	SignedBy  string                     `json:"signedBy,omitempty"`
	Payload   []byte                     `json:"payload"`
	Version   int                        `json:"version"`
	Format    int                        `json:"format"`
}

// UpdateKegResponse reports the collection version assigned to the update.
type UpdateKegResponse struct {
	CollectionVersion string `json:"collectionVersion"`
	Version           int    `json:"version"`
}

// GetKegRequest fetches one keg.
type GetKegRequest struct {
	KegDbID string `json:"kegDbId"`
	KegID   string `json:"kegId"`
}

// DeleteKegRequest tombstones a keg. Deleting twice is not an error.
type DeleteKegRequest struct {
	KegDbID string `json:"kegDbId"`
	KegID   string `json:"kegId"`
}

// ListKegsRequest fetches every live keg of a type, optionally only those newer
// than MinCollectionVersion.
type ListKegsRequest struct {
	KegDbID              string `json:"kegDbId"`
	Type                 string `json:"type"`
	MinCollectionVersion string `json:"minCollectionVersion,omitempty"`
}

// ListKegsResponse holds the batch.
type ListKegsResponse struct {
	Kegs []Keg `json:"kegs"`
}

// OKResponse is returned by commands with no payload.
type OKResponse struct {
	OK bool `json:"ok"`
}
