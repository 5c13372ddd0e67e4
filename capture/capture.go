// Package capture turns a selected image file into an inline, displayable
// data URI. It never interprets the image content.
package capture

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"reflect"
	"strings"

	"github.com/linesmerrill/adr-report-api/models"
)

const (
	// AcceptedTypes is the accept filter clients put on the file input
	AcceptedTypes = "image/*"
	// CameraHint asks mobile clients to prefer the environment-facing camera
	CameraHint = "environment"
)

// Kind classifies why a capture failed
type Kind string

const (
	KindNoFile     Kind = "no-file"
	KindReadFailed Kind = "read-failed"
	KindNotImage   Kind = "not-image"
	KindTooLarge   Kind = "too-large"
	KindCanceled   Kind = "canceled"
)

// Error is returned for every failed capture. Callers treat it as "no
// attachment", never as fatal.
type Error struct {
	Kind Kind
	File string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("capture %s: %s", e.File, e.Kind)
	}
	return fmt.Sprintf("capture %s: %s: %v", e.File, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

var errTooLarge = errors.New("file exceeds size limit")

// Capturer encodes image files. The zero value has no size limit.
type Capturer struct {
	maxBytes int64
}

// Option configures a Capturer
type Option func(*Capturer)

// WithMaxBytes rejects files larger than n bytes. n <= 0 disables the limit.
func WithMaxBytes(n int64) Option {
	return func(c *Capturer) {
		c.maxBytes = n
	}
}

// New returns a Capturer with the given options applied
func New(opts ...Option) *Capturer {
	c := &Capturer{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MaxBytes returns the configured size limit, 0 when unlimited
func (c *Capturer) MaxBytes() int64 { return c.maxBytes }

type readResult struct {
	data []byte
	err  error
}

// Capture reads file and returns it as a base64 data URI. The read runs on
// its own goroutine; Capture returns early with KindCanceled if ctx ends first.
func (c *Capturer) Capture(ctx context.Context, file File) (models.ImageAttachment, error) {
	if isNil(file) {
		return models.ImageAttachment{}, &Error{Kind: KindNoFile}
	}
	name := file.Name()

	declared := mediaType(file.ContentType())
	if declared != "" && !isImage(declared) {
		return models.ImageAttachment{}, &Error{Kind: KindNotImage, File: name, Err: fmt.Errorf("declared type %s", declared)}
	}

	done := make(chan readResult, 1)
	go func() {
		data, err := c.read(file)
		done <- readResult{data: data, err: err}
	}()

	var res readResult
	select {
	case <-ctx.Done():
		return models.ImageAttachment{}, &Error{Kind: KindCanceled, File: name, Err: ctx.Err()}
	case res = <-done:
	}

	if errors.Is(res.err, errTooLarge) {
		return models.ImageAttachment{}, &Error{Kind: KindTooLarge, File: name, Err: fmt.Errorf("limit is %d bytes", c.maxBytes)}
	}
	if res.err != nil {
		return models.ImageAttachment{}, &Error{Kind: KindReadFailed, File: name, Err: res.err}
	}
	if len(res.data) == 0 {
		return models.ImageAttachment{}, &Error{Kind: KindReadFailed, File: name, Err: errors.New("file is empty")}
	}

	mimeType, ok := resolveType(declared, http.DetectContentType(res.data))
	if !ok {
		return models.ImageAttachment{}, &Error{Kind: KindNotImage, File: name, Err: fmt.Errorf("content sniffed as %s", mimeType)}
	}

	return models.ImageAttachment{
		EncodedData: "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(res.data),
		MimeType:    mimeType,
		FileName:    name,
		SizeBytes:   int64(len(res.data)),
	}, nil
}

func (c *Capturer) read(file File) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var r io.Reader = rc
	if c.maxBytes > 0 {
		r = io.LimitReader(rc, c.maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if c.maxBytes > 0 && int64(len(data)) > c.maxBytes {
		return nil, errTooLarge
	}
	return data, nil
}

// resolveType picks the attachment type. Sniffed image types win; formats the
// sniffer does not know (HEIC and friends) fall back to a declared image type.
func resolveType(declared, sniffed string) (string, bool) {
	sniffed = mediaType(sniffed)
	if isImage(sniffed) {
		return sniffed, true
	}
	if sniffed == "application/octet-stream" && isImage(declared) {
		return declared, true
	}
	return sniffed, false
}

func mediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}

func isImage(mt string) bool {
	return strings.HasPrefix(mt, "image/")
}

func isNil(f File) bool {
	if f == nil {
		return true
	}
	v := reflect.ValueOf(f)
	return v.Kind() == reflect.Ptr && v.IsNil()
}
