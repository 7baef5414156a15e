package keg

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/kegkeeper/internal/errs"
	"github.com/iudanet/kegkeeper/internal/models"
)

func TestNewContent(t *testing.T) {
	tests := []struct {
		kind string
		want Content
	}{
		{kind: KindBoot, want: &BootContent{}},
		{kind: KindTofu, want: &TofuContent{}},
		{kind: KindSettings, want: &SettingsContent{}},
		{kind: KindFile, want: &FileContent{}},
		{kind: "message", want: &JSONContent{}},
	}
	for _, tt := range tests {
		assert.IsType(t, tt.want, NewContent(tt.kind), tt.kind)
	}

	Register("custom", func() Content { return &SettingsContent{} })
	assert.IsType(t, &SettingsContent{}, NewContent("custom"))
}

func TestAntiTamperBlock(t *testing.T) {
	payload, err := injectAntiTamper([]byte(`{"a":1}`), "keg1", "note")
	require.NoError(t, err)

	clean, err := verifyAntiTamper(payload, "keg1", "note")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(clean))

	_, err = verifyAntiTamper(payload, "keg2", "note")
	assert.ErrorIs(t, err, errs.ErrAntiTamper)
	_, err = verifyAntiTamper(payload, "keg1", "file")
	assert.ErrorIs(t, err, errs.ErrAntiTamper)
	_, err = verifyAntiTamper([]byte(`[1,2]`), "keg1", "note")
	assert.ErrorIs(t, err, errs.ErrAntiTamper)

	_, err = injectAntiTamper([]byte(`"string"`), "keg1", "note")
	assert.ErrorIs(t, err, errs.ErrEncryption)

	empty, err := injectAntiTamper(nil, "keg1", "note")
	require.NoError(t, err)
	assert.JSONEq(t, `{"kegId":"keg1","type":"note"}`, string(empty))
}

func TestSettingsContent(t *testing.T) {
	c := &SettingsContent{}
	assert.True(t, c.Set("lang", "en"))
	assert.False(t, c.Set("lang", "en"))
	assert.True(t, c.Set("lang", "ru"))

	clone := c.Clone()
	clone.Set("lang", "de")
	v, _ := c.Get("lang")
	assert.Equal(t, "ru", v)

	data, err := c.EncodePayload()
	require.NoError(t, err)
	decoded := &SettingsContent{Values: map[string]string{"stale": "x"}}
	require.NoError(t, decoded.DecodePayload(data))
	assert.Equal(t, c.Values, decoded.Values)
}

func TestFileContent(t *testing.T) {
	info := models.FileInfo{FileID: "f1", Name: "a.bin", Key: []byte{1}, NonceSeed: []byte{2}, Size: 10, ChunkSize: 64}
	c := FileContentFrom(info)
	assert.Equal(t, info, c.Info())

	props, err := c.EncodeProps()
	require.NoError(t, err)
	assert.JSONEq(t, `"f1"`, string(props["fileId"]))

	payload, err := c.EncodePayload()
	require.NoError(t, err)

	decoded := &FileContent{}
	require.NoError(t, decoded.DecodeProps(props))
	require.NoError(t, decoded.DecodePayload(payload))
	assert.Equal(t, info, decoded.Info())

	// props и payload указывают на разные файлы
	mismatch := &FileContent{}
	require.NoError(t, mismatch.DecodeProps(map[string]json.RawMessage{"fileId": json.RawMessage(`"f2"`)}))
	assert.Error(t, mismatch.DecodePayload(payload))
}
