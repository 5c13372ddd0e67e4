package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linesmerrill/adr-report-api/capture"
	"github.com/linesmerrill/adr-report-api/models"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")

var fixedNow = time.Date(2025, 5, 20, 15, 44, 0, 0, time.UTC)

func newTestComposer(capturer ImageCapturer) *Composer {
	return NewComposer(capturer,
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string { return "report-1" }),
	)
}

func fillValid(c *Composer) {
	c.Apply(
		SetPatientID("P12345"),
		SetPatientAge("45"),
		SetPatientGender(models.GenderFemale),
		SetDrugName("Ibuprofen"),
		SetDrugDosage("200mg"),
		SetDrugRoute("Oral"),
		SetDrugStartDate("2025-05-01"),
		SetReactionDescription("Hives on both arms"),
		SetReactionOnsetDate("2025-05-03"),
		SetReactionOutcome(models.OutcomeRecovering),
		SetReactionSeverity(models.SeverityModerate),
		SetReporterName("Dr. John Doe"),
		SetReporterContact("john.doe@example.com"),
	)
}

func validationFields(t *testing.T, err error) *ValidationError {
	t.Helper()
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr), "expected *ValidationError, got %v", err)
	return vErr
}

func TestSubmitBuildsReportAndResets(t *testing.T) {
	c := newTestComposer(nil)
	require.NoError(t, c.UpdateField(SectionPatient, "age", "45"))
	fillValid(c)

	r, err := c.Submit("nurse.jane")
	require.NoError(t, err)

	assert.Equal(t, "report-1", r.ID)
	assert.Equal(t, 45, r.PatientDetails.Age)
	assert.Equal(t, models.GenderFemale, r.PatientDetails.Gender)
	assert.Equal(t, "Ibuprofen", r.DrugDetails.Name)
	assert.Equal(t, "2025-05-01", r.DrugDetails.StartDate.String())
	assert.Nil(t, r.DrugDetails.EndDate)
	assert.Equal(t, "2025-05-03", r.AdrDetails.OnsetDate.String())
	assert.Equal(t, fixedNow, r.SubmittedAt)
	assert.Equal(t, "nurse.jane", r.SubmittedBy)
	assert.Nil(t, r.Image)
	assert.Equal(t, "No image uploaded", r.ImageSummary())

	assert.Equal(t, models.ReportDraft{}, c.Draft())
	c.Reset()
	assert.Equal(t, models.ReportDraft{}, c.Draft())
}

func TestSubmitWithEmptyDrugNameKeepsState(t *testing.T) {
	c := newTestComposer(nil)
	fillValid(c)
	c.Apply(SetDrugName(""))
	before := c.Draft()

	_, err := c.Submit("nurse.jane")

	vErr := validationFields(t, err)
	assert.True(t, vErr.Has("drugDetails.name"))
	assert.Len(t, vErr.Fields, 1)
	assert.Equal(t, before, c.Draft())
}

func TestSubmitValidationRules(t *testing.T) {
	tests := []struct {
		name   string
		update Update
		field  string
		rule   string
	}{
		{"age missing", SetPatientAge(""), "patientDetails.age", RuleRequired},
		{"age not numeric", SetPatientAge("forty"), "patientDetails.age", RuleInteger},
		{"age zero", SetPatientAge("0"), "patientDetails.age", RulePositive},
		{"age negative", SetPatientAge("-3"), "patientDetails.age", RulePositive},
		{"age with plus sign", SetPatientAge("+45"), "patientDetails.age", RuleInteger},
		{"gender missing", SetPatientGender(""), "patientDetails.gender", RuleRequired},
		{"gender outside enum", SetPatientGender("Robot"), "patientDetails.gender", RuleEnum},
		{"dosage blank", SetDrugDosage("   "), "drugDetails.dosage", RuleRequired},
		{"start date malformed", SetDrugStartDate("05/01/2025"), "drugDetails.startDate", RuleDate},
		{"end date before start", SetDrugEndDate("2025-04-30"), "drugDetails.endDate", RuleOrder},
		{"end date malformed", SetDrugEndDate("soon"), "drugDetails.endDate", RuleDate},
		{"description missing", SetReactionDescription(""), "adrDetails.description", RuleRequired},
		{"onset missing", SetReactionOnsetDate(""), "adrDetails.onset_date", RuleRequired},
		{"outcome outside enum", SetReactionOutcome("Cured"), "adrDetails.outcome", RuleEnum},
		{"severity outside enum", SetReactionSeverity("Extreme"), "adrDetails.severity", RuleEnum},
		{"reporter name missing", SetReporterName(""), "reporterDetails.name", RuleRequired},
		{"contact missing", SetReporterContact(""), "reporterDetails.contact", RuleRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestComposer(nil)
			fillValid(c)
			c.Apply(tt.update)
			before := c.Draft()

			_, err := c.Submit("")

			vErr := validationFields(t, err)
			require.Len(t, vErr.Fields, 1)
			assert.Equal(t, tt.field, vErr.Fields[0].Field)
			assert.Equal(t, tt.rule, vErr.Fields[0].Rule)
			assert.Equal(t, before, c.Draft())
		})
	}
}

func TestSubmitReportsEveryMissingField(t *testing.T) {
	c := newTestComposer(nil)

	_, err := c.Submit("")

	vErr := validationFields(t, err)
	for _, field := range []string{
		"patientDetails.age", "patientDetails.gender",
		"drugDetails.name", "drugDetails.dosage", "drugDetails.startDate",
		"adrDetails.description", "adrDetails.onset_date", "adrDetails.outcome", "adrDetails.severity",
		"reporterDetails.name", "reporterDetails.contact",
	} {
		assert.True(t, vErr.Has(field), field)
	}
	assert.False(t, vErr.Has("patientDetails.patientId"))
	assert.False(t, vErr.Has("drugDetails.route"))
	assert.False(t, vErr.Has("drugDetails.endDate"))
}

func TestSubmitAcceptsEndDateOnStartDate(t *testing.T) {
	c := newTestComposer(nil)
	fillValid(c)
	c.Apply(SetDrugEndDate("2025-05-01"))

	r, err := c.Submit("")
	require.NoError(t, err)
	require.NotNil(t, r.DrugDetails.EndDate)
	assert.Equal(t, "2025-05-01", r.DrugDetails.EndDate.String())
}

func TestSubmitTrimsEnumFields(t *testing.T) {
	c := newTestComposer(nil)
	fillValid(c)
	c.Apply(
		SetPatientGender(" Male "),
		SetReactionOutcome("Not Recovered  "),
		SetReactionSeverity("\tSevere"),
	)

	r, err := c.Submit("")
	require.NoError(t, err)
	assert.Equal(t, models.GenderMale, r.PatientDetails.Gender)
	assert.Equal(t, models.OutcomeNotRecovered, r.AdrDetails.Outcome)
	assert.Equal(t, models.SeveritySevere, r.AdrDetails.Severity)
}

func TestSubmitTreatsBlankOptionalFieldsAsAbsent(t *testing.T) {
	c := newTestComposer(nil)
	fillValid(c)
	c.Apply(SetPatientID("  "), SetDrugRoute(""), SetDrugEndDate(" "))

	r, err := c.Submit("")
	require.NoError(t, err)
	assert.Empty(t, r.PatientDetails.PatientID)
	assert.Empty(t, r.DrugDetails.Route)
	assert.Nil(t, r.DrugDetails.EndDate)
}

func TestUpdateFieldRejectsUnknownField(t *testing.T) {
	c := newTestComposer(nil)

	err := c.UpdateField(SectionPatient, "bloodType", "O+")
	assert.ErrorIs(t, err, ErrUnknownField)

	err = c.UpdateField("pharmacyDetails", "name", "x")
	assert.ErrorIs(t, err, ErrUnknownField)
	assert.Equal(t, models.ReportDraft{}, c.Draft())
}

func TestUpdateFieldCoversEveryFormField(t *testing.T) {
	c := newTestComposer(nil)
	fields := [][3]string{
		{SectionPatient, "patientId", "P1"},
		{SectionPatient, "age", "30"},
		{SectionPatient, "gender", "Other"},
		{SectionDrug, "name", "Amoxicillin"},
		{SectionDrug, "dosage", "500mg"},
		{SectionDrug, "route", "Oral"},
		{SectionDrug, "startDate", "2025-01-01"},
		{SectionDrug, "endDate", "2025-01-10"},
		{SectionReaction, "description", "Rash"},
		{SectionReaction, "onset_date", "2025-01-05"},
		{SectionReaction, "outcome", "Recovered"},
		{SectionReaction, "severity", "Mild"},
		{SectionReporter, "name", "Dr. Ada"},
		{SectionReporter, "contact", "+1 555 0100"},
	}
	for _, f := range fields {
		require.NoError(t, c.UpdateField(f[0], f[1], f[2]), f[0]+"."+f[1])
	}

	d := c.Draft()
	assert.Equal(t, models.PatientForm{PatientID: "P1", Age: "30", Gender: models.GenderOther}, d.PatientDetails)
	assert.Equal(t, models.DrugForm{Name: "Amoxicillin", Dosage: "500mg", Route: "Oral", StartDate: "2025-01-01", EndDate: "2025-01-10"}, d.DrugDetails)
	assert.Equal(t, models.ReactionForm{Description: "Rash", OnsetDate: "2025-01-05", Outcome: models.OutcomeRecovered, Severity: models.SeverityMild}, d.AdrDetails)
	assert.Equal(t, models.ReporterForm{Name: "Dr. Ada", Contact: "+1 555 0100"}, d.ReporterDetails)

	_, err := c.Submit("")
	assert.NoError(t, err)
}

func TestAttachThenClearReturnsToNoAttachment(t *testing.T) {
	c := newTestComposer(capture.New())

	require.NoError(t, c.AttachImage(context.Background(), capture.FromBytes("scan.png", "image/png", pngBytes)))
	require.True(t, c.HasImage())
	assert.Equal(t, "image/png", c.Draft().Image.MimeType)

	require.NoError(t, c.AttachImage(context.Background(), nil))
	assert.False(t, c.HasImage())

	require.NoError(t, c.AttachImage(context.Background(), capture.FromBytes("scan.png", "image/png", pngBytes)))
	c.ClearImage()
	assert.Nil(t, c.Draft().Image)
}

func TestAttachReplacesPreviousImage(t *testing.T) {
	c := newTestComposer(capture.New())

	require.NoError(t, c.AttachImage(context.Background(), capture.FromBytes("first.png", "image/png", pngBytes)))
	require.NoError(t, c.AttachImage(context.Background(), capture.FromBytes("second.png", "image/png", pngBytes)))

	assert.Equal(t, "second.png", c.Draft().Image.FileName)
}

func TestFailedCaptureLeavesNoAttachment(t *testing.T) {
	c := newTestComposer(capture.New())
	require.NoError(t, c.AttachImage(context.Background(), capture.FromBytes("first.png", "image/png", pngBytes)))

	err := c.AttachImage(context.Background(), capture.FromBytes("notes.txt", "text/plain", []byte("hello")))

	var capErr *capture.Error
	require.True(t, errors.As(err, &capErr))
	assert.Equal(t, capture.KindNotImage, capErr.Kind)
	assert.False(t, c.HasImage())

	fillValid(c)
	r, err := c.Submit("")
	require.NoError(t, err)
	assert.Nil(t, r.Image)
}

func TestSubmitCarriesAttachmentAndClearsIt(t *testing.T) {
	c := newTestComposer(capture.New())
	fillValid(c)
	require.NoError(t, c.AttachImage(context.Background(), capture.FromBytes("scan.png", "image/png", pngBytes)))

	r, err := c.Submit("")
	require.NoError(t, err)
	require.NotNil(t, r.Image)
	assert.Equal(t, "Image uploaded (base64 data captured)", r.ImageSummary())
	assert.False(t, c.HasImage())
}

type gatedCapturer struct {
	started chan struct{}
	release chan struct{}
}

func (g gatedCapturer) Capture(ctx context.Context, file capture.File) (models.ImageAttachment, error) {
	close(g.started)
	<-g.release
	return models.ImageAttachment{EncodedData: "data:image/png;base64,AA==", MimeType: "image/png", FileName: file.Name()}, nil
}

func TestResetDiscardsInFlightCapture(t *testing.T) {
	g := gatedCapturer{started: make(chan struct{}), release: make(chan struct{})}
	c := newTestComposer(g)

	errc := make(chan error, 1)
	go func() {
		errc <- c.AttachImage(context.Background(), capture.FromBytes("slow.png", "image/png", pngBytes))
	}()

	<-g.started
	c.Reset()
	close(g.release)

	assert.ErrorIs(t, <-errc, ErrAttachmentSuperseded)
	assert.False(t, c.HasImage())
}
