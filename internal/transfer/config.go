// Package transfer moves files through the server as streams of
// independently encrypted, resumable chunks.
package transfer

const (
	kib = 1024
	mib = 1024 * kib
)

// Config holds the pipeline budgets. They bound memory use and are never
// derived from the file being transferred.
type Config struct {
	// EncryptBufferBytes - сколько прочитанных, но еще не зашифрованных байт
	// может лежать в памяти
	EncryptBufferBytes int64 `env:"TRANSFER_ENCRYPT_BUFFER" envDefault:"2097152"`
	// UploadBufferBytes - зашифрованные, но еще не подтвержденные сервером байты
	UploadBufferBytes int64 `env:"TRANSFER_UPLOAD_BUFFER" envDefault:"4194304"`
	// DecryptBufferBytes - скачанные, но еще не записанные на диск байты
	DecryptBufferBytes   int64 `env:"TRANSFER_DECRYPT_BUFFER" envDefault:"4194304"`
	MaxInFlightChunks    int   `env:"TRANSFER_MAX_IN_FLIGHT" envDefault:"4"`
	DownloadWindowChunks int   `env:"TRANSFER_DOWNLOAD_WINDOW" envDefault:"4"`
}

// DefaultConfig returns the budgets used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		EncryptBufferBytes:   2 * mib,
		UploadBufferBytes:    4 * mib,
		DecryptBufferBytes:   4 * mib,
		MaxInFlightChunks:    4,
		DownloadWindowChunks: 4,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.EncryptBufferBytes <= 0 {
		c.EncryptBufferBytes = d.EncryptBufferBytes
	}
	if c.UploadBufferBytes <= 0 {
		c.UploadBufferBytes = d.UploadBufferBytes
	}
	if c.DecryptBufferBytes <= 0 {
		c.DecryptBufferBytes = d.DecryptBufferBytes
	}
	if c.MaxInFlightChunks <= 0 {
		c.MaxInFlightChunks = d.MaxInFlightChunks
	}
	if c.DownloadWindowChunks <= 0 {
		c.DownloadWindowChunks = d.DownloadWindowChunks
	}
	return c
}

// ChunkSizeFor picks the chunk size for a file of the given size. The result
// is stored with the file and must not change for the file's lifetime.
func ChunkSizeFor(size int64) int {
	switch {
	case size <= 192*kib:
		return 64 * kib
	case size <= 768*kib:
		return 128 * kib
	case size <= 3*mib/2:
		return 256 * kib
	case size <= 3*mib:
		return 512 * kib
	default:
		return mib
	}
}

// weight clamps a buffer reservation to the budget so that a single chunk
// larger than the whole budget can still pass on its own.
func weight(n int, budget int64) int64 {
	return min(int64(n), budget)
}
