package templates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/linesmerrill/adr-report-api/models"
)

func sampleReport() models.Report {
	return models.Report{
		ID:              "r-1",
		PatientDetails:  models.PatientDetails{PatientID: "P-001", Age: 45, Gender: models.GenderFemale},
		DrugDetails:     models.DrugDetails{Name: "Aspirin <b>", Dosage: "100mg", Route: "oral", StartDate: models.NewDate(time.Date(2025, time.May, 1, 0, 0, 0, 0, time.UTC))},
		AdrDetails:      models.AdrDetails{Description: "Rash\nitching", OnsetDate: models.NewDate(time.Date(2025, time.May, 3, 0, 0, 0, 0, time.UTC)), Outcome: models.OutcomeRecovering, Severity: models.SeverityMild},
		ReporterDetails: models.ReporterDetails{Name: "Dr. Lee", Contact: "lee@example.org"},
		SubmittedAt:     time.Date(2025, 5, 4, 9, 30, 0, 0, time.UTC),
	}
}

func TestRenderReportEmailEscapes(t *testing.T) {
	out := RenderReportEmail(sampleReport(), "")

	assert.Contains(t, out, "Aspirin &lt;b&gt;")
	assert.NotContains(t, out, "Aspirin <b>")
	assert.Contains(t, out, "Rash<br>itching")
	assert.Contains(t, out, "No image uploaded")
	assert.Contains(t, out, "2025-05-01")
}

func TestRenderReportEmailLinksHostedImage(t *testing.T) {
	out := RenderReportEmail(sampleReport(), "https://res.example.com/adr/r-1.png")
	assert.Contains(t, out, `<a href="https://res.example.com/adr/r-1.png">`)
}

func TestRenderReportPlain(t *testing.T) {
	out := RenderReportPlain(sampleReport(), "")
	assert.Contains(t, out, "Age: 45\n")
	assert.Contains(t, out, "End date: \n")
	assert.Contains(t, out, "Image: No image uploaded\n")
}
