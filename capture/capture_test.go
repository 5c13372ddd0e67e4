package capture

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")

type failingFile struct{}

func (failingFile) Name() string        { return "broken.png" }
func (failingFile) ContentType() string { return "image/png" }
func (failingFile) Open() (io.ReadCloser, error) {
	return nil, errors.New("disk on fire")
}

type blockingFile struct {
	release chan struct{}
}

func (b blockingFile) Name() string        { return "slow.png" }
func (b blockingFile) ContentType() string { return "image/png" }
func (b blockingFile) Open() (io.ReadCloser, error) {
	<-b.release
	return io.NopCloser(strings.NewReader(string(pngBytes))), nil
}

func kindOf(t *testing.T, err error) Kind {
	t.Helper()
	var capErr *Error
	require.True(t, errors.As(err, &capErr), "expected *capture.Error, got %v", err)
	return capErr.Kind
}

func TestCaptureEncodesDataURI(t *testing.T) {
	c := New()
	att, err := c.Capture(context.Background(), FromBytes("label.png", "image/png", pngBytes))
	require.NoError(t, err)

	assert.Equal(t, "image/png", att.MimeType)
	assert.Equal(t, "label.png", att.FileName)
	assert.Equal(t, int64(len(pngBytes)), att.SizeBytes)
	assert.Equal(t, "data:image/png;base64,"+base64.StdEncoding.EncodeToString(pngBytes), att.EncodedData)
}

func TestCaptureFailures(t *testing.T) {
	tests := []struct {
		name string
		cap  *Capturer
		file File
		kind Kind
	}{
		{name: "no file", cap: New(), file: nil, kind: KindNoFile},
		{name: "declared non-image", cap: New(), file: FromBytes("notes.pdf", "application/pdf", []byte("%PDF-1.4")), kind: KindNotImage},
		{name: "sniffed non-image", cap: New(), file: FromBytes("fake.png", "image/png", []byte("<html><body>hi</body></html>")), kind: KindNotImage},
		{name: "empty file", cap: New(), file: FromBytes("empty.png", "image/png", nil), kind: KindReadFailed},
		{name: "open fails", cap: New(), file: failingFile{}, kind: KindReadFailed},
		{name: "over size limit", cap: New(WithMaxBytes(8)), file: FromBytes("big.png", "image/png", pngBytes), kind: KindTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			att, err := tt.cap.Capture(context.Background(), tt.file)
			assert.Empty(t, att)
			assert.Equal(t, tt.kind, kindOf(t, err))
		})
	}
}

func TestCaptureAcceptsFileAtExactLimit(t *testing.T) {
	c := New(WithMaxBytes(int64(len(pngBytes))))
	_, err := c.Capture(context.Background(), FromBytes("exact.png", "image/png", pngBytes))
	assert.NoError(t, err)
}

func TestCaptureFallsBackToDeclaredImageType(t *testing.T) {
	heic := []byte{0x00, 0x00, 0x00, 0x18, 0x66, 0x74, 0x79, 0x70, 0x68, 0x65, 0x69, 0x63}
	att, err := New().Capture(context.Background(), FromBytes("IMG_0001.HEIC", "image/heic", heic))
	require.NoError(t, err)
	assert.Equal(t, "image/heic", att.MimeType)
	assert.True(t, strings.HasPrefix(att.EncodedData, "data:image/heic;base64,"))
}

func TestCaptureStopsWaitingWhenContextEnds(t *testing.T) {
	f := blockingFile{release: make(chan struct{})}
	defer close(f.release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Capture(ctx, f)
	assert.Equal(t, KindCanceled, kindOf(t, err))
	assert.ErrorIs(t, err, context.Canceled)
}
