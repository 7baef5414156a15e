package api

// Command names accepted by the server's command endpoint
// (POST /api/v1/cmd/<command>).
const (
	CmdKegCreate = "kegs/create"
	CmdKegUpdate = "kegs/update"
	CmdKegGet    = "kegs/get"
	CmdKegDelete = "kegs/delete"
	CmdKegList   = "kegs/list"

	CmdDigest           = "updates/digest"
	CmdLastKnownVersion = "updates/last-known-version"

	CmdFileUploadStart  = "file/upload-start"
	CmdFileChunkUpload  = "file/chunk/upload"
	CmdFileUploadStatus = "file/upload-status"
	CmdFileDownloadURL  = "file/download-url"
)

// SelfKegDbID is the alias every user has for their own private collection.
const SelfKegDbID = "SELF"

// Range query parameters of the blob download endpoint.
// rangeEnd is exclusive.
const (
	QueryRangeStart = "rangeStart"
	QueryRangeEnd   = "rangeEnd"
)
