package export

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/linesmerrill/adr-report-api/models"
	templates "github.com/linesmerrill/adr-report-api/templates/html"
)

// Mailer sends a prepared message. *sendgrid.Client implements it.
type Mailer interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// Uploader hosts a report's image and returns its URL
type Uploader interface {
	Upload(ctx context.Context, report models.Report) (string, error)
}

// EmailSink mails every submitted report to a fixed address
type EmailSink struct {
	mailer   Mailer
	from     *mail.Email
	to       *mail.Email
	uploader Uploader
}

// EmailOption configures an EmailSink
type EmailOption func(*EmailSink)

// WithUploader links hosted images instead of attaching them
func WithUploader(u Uploader) EmailOption {
	return func(s *EmailSink) {
		s.uploader = u
	}
}

// WithMailer replaces the sendgrid client
func WithMailer(m Mailer) EmailOption {
	return func(s *EmailSink) {
		s.mailer = m
	}
}

// NewEmailSink returns a sink that sends through sendgrid with apiKey
func NewEmailSink(apiKey, fromAddress, toAddress string, opts ...EmailOption) *EmailSink {
	s := &EmailSink{
		mailer: sendgrid.NewSendClient(apiKey),
		from:   mail.NewEmail("ADR Reports", fromAddress),
		to:     mail.NewEmail("", toAddress),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Publish emails the report. When an uploader is set and succeeds the image
// is linked; otherwise it is attached.
func (s *EmailSink) Publish(ctx context.Context, r models.Report) error {
	imageURL := ""
	if r.Image != nil && s.uploader != nil {
		url, err := s.uploader.Upload(ctx, r)
		if err != nil {
			zap.S().Warnw("image upload failed, attaching instead", "reportId", r.ID, "error", err)
		} else {
			imageURL = url
		}
	}

	subject := templates.ReportEmailSubject(r)
	msg := mail.NewSingleEmail(s.from, subject, s.to,
		templates.RenderReportPlain(r, imageURL),
		templates.RenderReportEmail(r, imageURL))

	if r.Image != nil && imageURL == "" {
		a, err := attachment(r)
		if err != nil {
			return err
		}
		msg.AddAttachment(a)
	}

	response, err := s.mailer.SendWithContext(ctx, msg)
	if err != nil {
		zap.S().Errorw("failed to send report email", "error", err)
		return fmt.Errorf("failed to send report email: %w", err)
	}
	if response.StatusCode >= 300 {
		zap.S().Errorw("sendgrid returned error status", "status", response.StatusCode, "body", response.Body, "reportId", r.ID)
		return fmt.Errorf("sendgrid error: status %d", response.StatusCode)
	}
	zap.S().Infow("report email sent", "reportId", r.ID, "status", response.StatusCode)
	return nil
}

var errNotDataURI = errors.New("image is not a base64 data URI")

// splitDataURI returns the media type and base64 payload of a data URI
func splitDataURI(uri string) (string, string, error) {
	body, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", "", errNotDataURI
	}
	meta, payload, ok := strings.Cut(body, ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return "", "", errNotDataURI
	}
	return strings.TrimSuffix(meta, ";base64"), payload, nil
}

func attachment(r models.Report) (*mail.Attachment, error) {
	mimeType, payload, err := splitDataURI(r.Image.EncodedData)
	if err != nil {
		return nil, fmt.Errorf("report %s: %w", r.ID, err)
	}
	name := r.Image.FileName
	if name == "" {
		name = r.ID
		if exts, _ := mime.ExtensionsByType(mimeType); len(exts) > 0 {
			name += exts[0]
		}
	}
	a := mail.NewAttachment()
	a.SetContent(payload)
	a.SetType(mimeType)
	a.SetFilename(name)
	a.SetDisposition("attachment")
	return a, nil
}
