package keg

import (
	"encoding/json"
	"fmt"
	"maps"

	"github.com/iudanet/kegkeeper/internal/models"
)

// BootContent is the user's private key material and collection keys. It is
// stored in the SELF collection encrypted with the boot key.
type BootContent struct {
	KegKeys             map[string][]byte `json:"kegKeys"`
	CurrentKeyID        string            `json:"currentKeyId"`
	SigningPublicKey    []byte            `json:"signingPublicKey"`
	SigningSecretKey    []byte            `json:"signingSecretKey"`
	EncryptionPublicKey []byte            `json:"encryptionPublicKey"`
	EncryptionSecretKey []byte            `json:"encryptionSecretKey"`
}

func (c *BootContent) Kind() string { return KindBoot }

func (c *BootContent) EncodePayload() ([]byte, error) { return encodeJSON(KindBoot, c) }

func (c *BootContent) DecodePayload(data []byte) error {
	*c = BootContent{}
	return decodeJSON(KindBoot, data, c)
}

// TofuContent pins a contact's public keys the first time they are seen.
type TofuContent struct {
	Username            string `json:"username"`
	SigningPublicKey    []byte `json:"signingPublicKey"`
	EncryptionPublicKey []byte `json:"encryptionPublicKey"`
}

func (c *TofuContent) Kind() string { return KindTofu }

func (c *TofuContent) EncodePayload() ([]byte, error) { return encodeJSON(KindTofu, c) }

func (c *TofuContent) DecodePayload(data []byte) error {
	*c = TofuContent{}
	return decodeJSON(KindTofu, data, c)
}

// SettingsContent is a flat string map of user settings.
type SettingsContent struct {
	Values map[string]string `json:"values"`
}

func (c *SettingsContent) Kind() string { return KindSettings }

func (c *SettingsContent) EncodePayload() ([]byte, error) { return encodeJSON(KindSettings, c) }

func (c *SettingsContent) DecodePayload(data []byte) error {
	*c = SettingsContent{}
	return decodeJSON(KindSettings, data, c)
}

// Get returns a setting.
func (c *SettingsContent) Get(key string) (string, bool) {
	v, ok := c.Values[key]
	return v, ok
}

// Set changes a setting and reports whether the value changed.
func (c *SettingsContent) Set(key, value string) bool {
	if old, ok := c.Values[key]; ok && old == value {
		return false
	}
	if c.Values == nil {
		c.Values = make(map[string]string)
	}
	c.Values[key] = value
	return true
}

// Clone returns a deep copy.
func (c *SettingsContent) Clone() *SettingsContent {
	return &SettingsContent{Values: maps.Clone(c.Values)}
}

// FileContent describes an uploaded file: where its blob is and how to
// decrypt it. The file id is also exposed in props so the server can link
// the keg to the blob.
type FileContent struct {
	FileID    string `json:"fileId"`
	Name      string `json:"name"`
	Key       []byte `json:"key"`
	NonceSeed []byte `json:"nonceSeed"`
	Size      int64  `json:"size"`
	ChunkSize int    `json:"chunkSize"`
}

func (c *FileContent) Kind() string { return KindFile }

func (c *FileContent) EncodePayload() ([]byte, error) { return encodeJSON(KindFile, c) }

func (c *FileContent) DecodePayload(data []byte) error {
	fileID := c.FileID
	*c = FileContent{}
	if err := decodeJSON(KindFile, data, c); err != nil {
		return err
	}
	if fileID != "" && c.FileID != fileID {
		return fmt.Errorf("file keg payload names file %q, props name %q", c.FileID, fileID)
	}
	return nil
}

func (c *FileContent) EncodeProps() (map[string]json.RawMessage, error) {
	id, err := json.Marshal(c.FileID)
	if err != nil {
		return nil, err
	}
	return map[string]json.RawMessage{"fileId": id}, nil
}

func (c *FileContent) DecodeProps(props map[string]json.RawMessage) error {
	raw, ok := props["fileId"]
	if !ok {
		return nil
	}
	return json.Unmarshal(raw, &c.FileID)
}

// Info converts the content to the transfer description.
func (c *FileContent) Info() models.FileInfo {
	return models.FileInfo{
		FileID:    c.FileID,
		Name:      c.Name,
		Key:       c.Key,
		NonceSeed: c.NonceSeed,
		Size:      c.Size,
		ChunkSize: c.ChunkSize,
	}
}

// FileContentFrom is the inverse of Info.
func FileContentFrom(info models.FileInfo) *FileContent {
	return &FileContent{
		FileID:    info.FileID,
		Name:      info.Name,
		Key:       info.Key,
		NonceSeed: info.NonceSeed,
		Size:      info.Size,
		ChunkSize: info.ChunkSize,
	}
}

// JSONContent is an untyped JSON object.
type JSONContent struct {
	Data map[string]json.RawMessage
}

func (c *JSONContent) Kind() string { return KindJSON }

func (c *JSONContent) EncodePayload() ([]byte, error) {
	if c.Data == nil {
		return []byte("{}"), nil
	}
	return encodeJSON(KindJSON, c.Data)
}

func (c *JSONContent) DecodePayload(data []byte) error {
	c.Data = nil
	return decodeJSON(KindJSON, data, &c.Data)
}
