package keg

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Known content kinds. The kind doubles as the keg type for every kind
// except JSON, which carries arbitrary types.
const (
	KindBoot     = "boot"
	KindTofu     = "tofu"
	KindSettings = "settings"
	KindFile     = "file"
	KindJSON     = "json"
)

// Content is the typed payload of a keg. EncodePayload must produce a JSON
// object; the keys "kegId" and "type" are reserved for the anti-tamper block.
type Content interface {
	Kind() string
	EncodePayload() ([]byte, error)
	DecodePayload(data []byte) error
}

// PropsCodec is implemented by contents that also use the plaintext props
// side channel.
type PropsCodec interface {
	EncodeProps() (map[string]json.RawMessage, error)
	DecodeProps(props map[string]json.RawMessage) error
}

var (
	registryMu sync.RWMutex
	registry   = map[string]func() Content{
		KindBoot:     func() Content { return &BootContent{} },
		KindTofu:     func() Content { return &TofuContent{} },
		KindSettings: func() Content { return &SettingsContent{} },
		KindFile:     func() Content { return &FileContent{} },
		KindJSON:     func() Content { return &JSONContent{} },
	}
)

// Register adds or replaces the constructor for kind.
func Register(kind string, fn func() Content) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[kind] = fn
}

// NewContent returns an empty content of the given kind; unknown kinds get
// a JSONContent.
func NewContent(kind string) Content {
	registryMu.RLock()
	fn, ok := registry[kind]
	registryMu.RUnlock()
	if !ok {
		return &JSONContent{}
	}
	return fn()
}

func encodeJSON(kind string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", kind, err)
	}
	return data, nil
}

func decodeJSON(kind string, data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", kind, err)
	}
	return nil
}
