package transfer

import (
	"fmt"
	"io"
	"os"
)

// FileStream is the source of an upload.
type FileStream interface {
	io.ReadSeekCloser
	Size() int64
}

type fileStream struct {
	*os.File
	size int64
}

func (f *fileStream) Size() int64 { return f.size }

// OpenFileStream opens a local file for upload.
func OpenFileStream(path string) (FileStream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if st.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("%s is a directory", path)
	}
	return &fileStream{File: f, size: st.Size()}, nil
}

// CreateFileWriter opens the download target. With resume the existing
// content is kept and its length returned; otherwise the file is truncated.
func CreateFileWriter(path string, resume bool) (io.WriteCloser, int64, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if resume {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return f, st.Size(), nil
}
