package capture

import (
	"bytes"
	"io"
	"mime/multipart"
)

// File is a user-selected file handed over by the client, typically from a
// file input restricted to image/* with a camera capture hint.
type File interface {
	Name() string
	ContentType() string
	Open() (io.ReadCloser, error)
}

type multipartFile struct {
	fh *multipart.FileHeader
}

// FromMultipart wraps an uploaded multipart file. A nil header yields a nil File.
func FromMultipart(fh *multipart.FileHeader) File {
	if fh == nil {
		return nil
	}
	return multipartFile{fh: fh}
}

func (m multipartFile) Name() string        { return m.fh.Filename }
func (m multipartFile) ContentType() string { return m.fh.Header.Get("Content-Type") }

func (m multipartFile) Open() (io.ReadCloser, error) {
	return m.fh.Open()
}

type bytesFile struct {
	name        string
	contentType string
	data        []byte
}

// FromBytes wraps an in-memory file
func FromBytes(name, contentType string, data []byte) File {
	return bytesFile{name: name, contentType: contentType, data: data}
}

func (b bytesFile) Name() string        { return b.name }
func (b bytesFile) ContentType() string { return b.contentType }

func (b bytesFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.data)), nil
}
