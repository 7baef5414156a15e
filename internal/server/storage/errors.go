package storage

import "errors"

// Common storage errors
var (
	// ErrKegNotFound indicates that the keg does not exist or was deleted
	ErrKegNotFound = errors.New("keg not found")

	// ErrKegExists indicates that a keg with this id is already in the collection
	ErrKegExists = errors.New("keg already exists")

	// ErrVersionConflict indicates that an update was not exactly stored version + 1
	ErrVersionConflict = errors.New("version conflict")

	// ErrKegDbNotFound indicates that the collection does not exist
	ErrKegDbNotFound = errors.New("keg collection not found")

	// ErrAccessForbidden indicates that the caller does not own the collection or file
	ErrAccessForbidden = errors.New("access forbidden")

	// ErrFileNotFound indicates that no upload was started with this id
	ErrFileNotFound = errors.New("file not found")

	// ErrFileFinished indicates that the final chunk was already stored
	ErrFileFinished = errors.New("file upload already finished")

	// ErrInvalidChunk indicates a chunk number outside the file
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrRangeNotSatisfiable indicates a blob range beyond the stored chunks
	ErrRangeNotSatisfiable = errors.New("range not satisfiable")
)

// ErrUserNotFound indicates that user was not found in storage
var ErrUserNotFound = errors.New("user not found")

// ErrTypeMismatch indicates an update that tries to change the keg type
var ErrTypeMismatch = errors.New("keg type cannot change")
