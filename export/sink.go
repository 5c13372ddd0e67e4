// Package export hands submitted reports to the outside world. Publishing
// never feeds back into the composer.
package export

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/linesmerrill/adr-report-api/models"
)

// Sink receives a report after a successful submit
type Sink interface {
	Publish(ctx context.Context, report models.Report) error
}

// LogSink writes the submission as a structured log entry
type LogSink struct {
	Logger *zap.SugaredLogger
}

// Publish logs the report. The image is summarised, never printed.
func (s LogSink) Publish(_ context.Context, r models.Report) error {
	log := s.Logger
	if log == nil {
		log = zap.S()
	}
	log.Infow("ADR Report Submitted",
		"reportId", r.ID,
		"submittedBy", r.SubmittedBy,
		"submittedAt", r.SubmittedAt,
		"patientDetails", r.PatientDetails,
		"drugDetails", r.DrugDetails,
		"adrDetails", r.AdrDetails,
		"reporterDetails", r.ReporterDetails,
		"uploadedImage", r.ImageSummary(),
	)
	return nil
}

// Multi publishes to every sink and joins their errors
type Multi []Sink

// Publish calls each sink in order, continuing past failures
func (m Multi) Publish(ctx context.Context, r models.Report) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
