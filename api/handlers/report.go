package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/linesmerrill/adr-report-api/api"
	"github.com/linesmerrill/adr-report-api/capture"
	"github.com/linesmerrill/adr-report-api/config"
	"github.com/linesmerrill/adr-report-api/export"
	"github.com/linesmerrill/adr-report-api/models"
	"github.com/linesmerrill/adr-report-api/report"
)

// multipartOverhead is the room left for form boundaries and headers on top
// of the capture limit
const multipartOverhead = 1 << 20

// Report serves the report form of the caller's workspace
type Report struct {
	WS              *Workspace
	Sink            export.Sink
	CaptureMaxBytes int64
}

type captureHints struct {
	Accept   string `json:"accept"`
	Capture  string `json:"capture"`
	MaxBytes int64  `json:"maxBytes,omitempty"`
}

type draftResponse struct {
	Draft    models.ReportDraft `json:"draft"`
	HasImage bool               `json:"hasImage"`
	Capture  captureHints       `json:"capture"`
}

type fieldUpdate struct {
	Section string `json:"section"`
	Field   string `json:"field"`
	Value   string `json:"value"`
}

type attachResponse struct {
	Attached bool   `json:"attached"`
	Reason   string `json:"reason,omitempty"`
}

func (rh Report) composer(w http.ResponseWriter, r *http.Request) (*report.Composer, bool) {
	c, ok := rh.WS.coordinator(w, r)
	if !ok {
		return nil, false
	}
	comp, err := c.Composer()
	if err != nil {
		workspaceError(w, err)
		return nil, false
	}
	return comp, true
}

func (rh Report) draft(comp *report.Composer) draftResponse {
	d := comp.Draft()
	return draftResponse{
		Draft:    d,
		HasImage: d.Image != nil,
		Capture: captureHints{
			Accept:   capture.AcceptedTypes,
			Capture:  capture.CameraHint,
			MaxBytes: rh.CaptureMaxBytes,
		},
	}
}

// DraftHandler returns the form as currently entered
func (rh Report) DraftHandler(w http.ResponseWriter, r *http.Request) {
	comp, ok := rh.composer(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rh.draft(comp))
}

// UpdateFieldHandler sets a single form field. Values are not checked until submit.
func (rh Report) UpdateFieldHandler(w http.ResponseWriter, r *http.Request) {
	comp, ok := rh.composer(w, r)
	if !ok {
		return
	}
	var body fieldUpdate
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		config.ErrorStatus("failed to decode request", http.StatusBadRequest, w, err)
		return
	}
	if err := comp.UpdateField(body.Section, body.Field, body.Value); err != nil {
		config.ErrorStatus("unknown report field", http.StatusBadRequest, w, err)
		return
	}
	writeJSON(w, http.StatusOK, rh.draft(comp))
}

// AttachImageHandler captures the uploaded "file" part as the report's photo.
// A failed capture leaves the report without a photo and is not an error.
func (rh Report) AttachImageHandler(w http.ResponseWriter, r *http.Request) {
	comp, ok := rh.composer(w, r)
	if !ok {
		return
	}
	if rh.CaptureMaxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rh.CaptureMaxBytes+multipartOverhead)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		zap.S().Warnw("image capture failed", "error", err)
		comp.ClearImage()
		writeJSON(w, http.StatusOK, attachResponse{Attached: false, Reason: string(capture.KindReadFailed)})
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	var file capture.File
	if headers := r.MultipartForm.File["file"]; len(headers) > 0 {
		file = capture.FromMultipart(headers[0])
	}

	err := comp.AttachImage(r.Context(), file)
	var capErr *capture.Error
	switch {
	case errors.Is(err, report.ErrAttachmentSuperseded):
		config.ErrorStatus("attachment superseded", http.StatusConflict, w, err)
		return
	case errors.As(err, &capErr):
		zap.S().Warnw("image capture failed",
			"kind", capErr.Kind,
			"file", capErr.File,
			"error", err)
		writeJSON(w, http.StatusOK, attachResponse{Attached: false, Reason: string(capErr.Kind)})
		return
	case err != nil:
		config.ErrorStatus("failed to attach image", http.StatusInternalServerError, w, err)
		return
	}
	writeJSON(w, http.StatusOK, attachResponse{Attached: comp.HasImage()})
}

// ClearImageHandler removes the photo
func (rh Report) ClearImageHandler(w http.ResponseWriter, r *http.Request) {
	comp, ok := rh.composer(w, r)
	if !ok {
		return
	}
	comp.ClearImage()
	writeJSON(w, http.StatusOK, rh.draft(comp))
}

// SubmitHandler validates the form and, when it passes, hands the report to
// the export sink and clears the form
func (rh Report) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	comp, ok := rh.composer(w, r)
	if !ok {
		return
	}
	s, _ := api.SessionFromContext(r.Context())

	rep, err := comp.Submit(s.Username)
	var vErr *report.ValidationError
	if errors.As(err, &vErr) {
		zap.S().Infow("report rejected", "fields", len(vErr.Fields))
		writeJSON(w, http.StatusUnprocessableEntity, models.ErrorResponse{
			Success: false,
			Error:   "report is incomplete or invalid",
			Code:    "invalid_report",
			Fields:  vErr.Fields,
		})
		return
	}
	if err != nil {
		config.ErrorStatus("failed to submit report", http.StatusInternalServerError, w, err)
		return
	}

	if rh.Sink != nil {
		go func(rep models.Report) {
			if err := rh.Sink.Publish(context.Background(), rep); err != nil {
				zap.S().Errorw("failed to export report", "reportId", rep.ID, "error", err)
			}
		}(rep)
	}
	writeJSON(w, http.StatusCreated, rep)
}

// ResetHandler clears the form and its photo
func (rh Report) ResetHandler(w http.ResponseWriter, r *http.Request) {
	comp, ok := rh.composer(w, r)
	if !ok {
		return
	}
	comp.Reset()
	writeJSON(w, http.StatusOK, rh.draft(comp))
}
