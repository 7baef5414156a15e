package models

// TransferState is the progress of one upload or download.
// ChunkID is the next chunk to be processed.
type TransferState struct {
	ChunkID        int   `json:"chunkId"`
	BytesProcessed int64 `json:"bytesProcessed"`
	Stopped        bool  `json:"stopped"`
	Finished       bool  `json:"finished"`
}

// FileInfo describes an uploaded file. ChunkSize is fixed when the upload
// starts and never changes afterwards.
type FileInfo struct {
	FileID    string `json:"fileId"`
	Name      string `json:"name"`
	Key       []byte `json:"key"`
	NonceSeed []byte `json:"nonceSeed"`
	Size      int64  `json:"size"`
	ChunkSize int    `json:"chunkSize"`
}

// ChunkCount is the number of chunks the file is split into; an empty file
// still has one (empty) chunk.
func (f FileInfo) ChunkCount() int {
	if f.ChunkSize <= 0 || f.Size <= 0 {
		return 1
	}
	return int((f.Size + int64(f.ChunkSize) - 1) / int64(f.ChunkSize))
}

// MaxChunkID is the id of the final chunk.
func (f FileInfo) MaxChunkID() int {
	return f.ChunkCount() - 1
}

// TransferMarker is persisted while a transfer is in progress so it can be
// resumed after a restart.
type TransferMarker struct {
	FileID string `json:"fileId" cbor:"1,keyasint"`
	Path   string `json:"path" cbor:"2,keyasint"`
	KegID  string `json:"kegId,omitempty" cbor:"3,keyasint,omitempty"`
}
