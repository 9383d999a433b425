package images

import (
	"bytes"
	"io"
	"mime/multipart"
)

type fileHeaderUpload struct {
	header *multipart.FileHeader
}

// FromFileHeader adapts a multipart file part.
func FromFileHeader(h *multipart.FileHeader) Upload {
	return fileHeaderUpload{header: h}
}

func (u fileHeaderUpload) Filename() string { return u.header.Filename }

func (u fileHeaderUpload) Open() (io.ReadCloser, error) { return u.header.Open() }

type bytesUpload struct {
	name string
	data []byte
}

// FromBytes wraps in-memory file contents.
func FromBytes(name string, data []byte) Upload {
	return bytesUpload{name: name, data: data}
}

func (u bytesUpload) Filename() string { return u.name }

func (u bytesUpload) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(u.data)), nil
}
