// Package report owns the adverse drug reaction form: typed field updates,
// the optional document photo, and submit-time validation.
package report

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/linesmerrill/adr-report-api/capture"
	"github.com/linesmerrill/adr-report-api/models"
)

// ErrAttachmentSuperseded is returned by AttachImage when a later attach,
// clear or reset happened while the file was being read. The late result is
// dropped.
var ErrAttachmentSuperseded = errors.New("attachment superseded by a newer change")

// ImageCapturer encodes a selected file. *capture.Capturer implements it.
type ImageCapturer interface {
	Capture(ctx context.Context, file capture.File) (models.ImageAttachment, error)
}

// Composer holds one report draft. It is safe for concurrent use; updates
// are applied in the order they acquire the lock.
type Composer struct {
	mu       sync.Mutex
	draft    models.ReportDraft
	capturer ImageCapturer
	now      func() time.Time
	newID    func() string

	// attachGen increases on every attach, clear and reset so a slow capture
	// cannot land on a draft that has moved on
	attachGen uint64
}

// Option configures a Composer
type Option func(*Composer)

// WithClock sets the clock used for submission timestamps
func WithClock(now func() time.Time) Option {
	return func(c *Composer) {
		c.now = now
	}
}

// WithIDGenerator sets how report IDs are minted
func WithIDGenerator(newID func() string) Option {
	return func(c *Composer) {
		c.newID = newID
	}
}

// NewComposer returns an empty composer. A nil capturer gets an unlimited
// capture.Capturer.
func NewComposer(capturer ImageCapturer, opts ...Option) *Composer {
	if capturer == nil {
		capturer = capture.New()
	}
	c := &Composer{
		capturer: capturer,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Apply sets fields on the draft. It never fails; values are checked at submit.
func (c *Composer) Apply(updates ...Update) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, u := range updates {
		u.apply(&c.draft)
	}
}

// UpdateField sets one field addressed by its wire names, e.g.
// ("patientDetails", "age", "45")
func (c *Composer) UpdateField(section, field, value string) error {
	u, err := ParseUpdate(section, field, value)
	if err != nil {
		return err
	}
	c.Apply(u)
	return nil
}

// AttachImage captures file and makes it the draft's only attachment. A nil
// file clears the attachment. When the capture fails the draft ends up with
// no attachment and the *capture.Error is returned for the caller to log.
func (c *Composer) AttachImage(ctx context.Context, file capture.File) error {
	c.mu.Lock()
	c.attachGen++
	gen := c.attachGen
	if file == nil {
		c.draft.Image = nil
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	att, err := c.capturer.Capture(ctx, file)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.attachGen {
		return ErrAttachmentSuperseded
	}
	if err != nil {
		c.draft.Image = nil
		return err
	}
	c.draft.Image = &att
	return nil
}

// ClearImage drops the attachment, if any
func (c *Composer) ClearImage() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attachGen++
	c.draft.Image = nil
}

// HasImage reports whether an attachment is held
func (c *Composer) HasImage() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft.Image != nil
}

// Draft returns a copy of the current form state
func (c *Composer) Draft() models.ReportDraft {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.draft
	if d.Image != nil {
		img := *d.Image
		d.Image = &img
	}
	return d
}

// Submit validates the whole draft. On success it returns the finished
// Report and resets the composer. On failure it returns a *ValidationError
// and leaves every field as entered.
func (c *Composer) Submit(submittedBy string) (models.Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	patient, drug, adr, reporter, err := validate(c.draft)
	if err != nil {
		return models.Report{}, err
	}

	r := models.Report{
		ID:              c.newID(),
		PatientDetails:  patient,
		DrugDetails:     drug,
		AdrDetails:      adr,
		ReporterDetails: reporter,
		SubmittedAt:     c.now().UTC(),
		SubmittedBy:     submittedBy,
	}
	if c.draft.Image != nil {
		img := *c.draft.Image
		r.Image = &img
	}

	c.resetLocked()
	return r, nil
}

// Reset clears every section and the attachment
func (c *Composer) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

func (c *Composer) resetLocked() {
	c.draft = models.ReportDraft{}
	c.attachGen++
}
