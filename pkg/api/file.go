package api

// FileUploadStartRequest reserves a file id for a chunked upload.
type FileUploadStartRequest struct {
	Size      int64 `json:"size"`
	ChunkSize int   `json:"chunkSize"`
}

// FileUploadStartResponse returns the reserved id.
type FileUploadStartResponse struct {
	FileID string `json:"fileId"`
}

// ChunkUploadRequest carries one encrypted chunk.
type ChunkUploadRequest struct {
	FileID   string `json:"fileId"`
	Chunk    []byte `json:"chunk"`
	ChunkNum int    `json:"chunkNum"`
	Last     bool   `json:"last"`
}

// FileUploadStatusRequest asks how far an upload got.
type FileUploadStatusRequest struct {
	FileID string `json:"fileId"`
}

// FileUploadStatusResponse reports the contiguous prefix of acknowledged chunks.
// LastChunkNum is -1 when nothing has been stored yet.
type FileUploadStatusResponse struct {
	LastChunkNum int  `json:"lastChunkNum"`
	Finished     bool `json:"finished"`
}

// FileDownloadURLRequest asks for an authenticated blob URL.
type FileDownloadURLRequest struct {
	FileID string `json:"fileId"`
}

// FileDownloadURLResponse holds the URL to range-GET the ciphertext from.
type FileDownloadURLResponse struct {
	URL string `json:"url"`
}
