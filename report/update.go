package report

import (
	"errors"
	"fmt"

	"github.com/linesmerrill/adr-report-api/models"
)

// ErrUnknownField is returned by UpdateField for a section/field pair the
// report form does not have
var ErrUnknownField = errors.New("unknown report field")

// Update is a single typed change to one draft field
type Update interface {
	apply(d *models.ReportDraft)
}

// Typed field updates, one per draft field. Values are stored as typed and
// only checked at submit.
type (
	SetPatientID           string
	SetPatientAge          string
	SetPatientGender       models.Gender
	SetDrugName            string
	SetDrugDosage          string
	SetDrugRoute           string
	SetDrugStartDate       string
	SetDrugEndDate         string
	SetReactionDescription string
	SetReactionOnsetDate   string
	SetReactionOutcome     models.Outcome
	SetReactionSeverity    models.Severity
	SetReporterName        string
	SetReporterContact     string
)

func (v SetPatientID) apply(d *models.ReportDraft)           { d.PatientDetails.PatientID = string(v) }
func (v SetPatientAge) apply(d *models.ReportDraft)          { d.PatientDetails.Age = string(v) }
func (v SetPatientGender) apply(d *models.ReportDraft)       { d.PatientDetails.Gender = models.Gender(v) }
func (v SetDrugName) apply(d *models.ReportDraft)            { d.DrugDetails.Name = string(v) }
func (v SetDrugDosage) apply(d *models.ReportDraft)          { d.DrugDetails.Dosage = string(v) }
func (v SetDrugRoute) apply(d *models.ReportDraft)           { d.DrugDetails.Route = string(v) }
func (v SetDrugStartDate) apply(d *models.ReportDraft)       { d.DrugDetails.StartDate = string(v) }
func (v SetDrugEndDate) apply(d *models.ReportDraft)         { d.DrugDetails.EndDate = string(v) }
func (v SetReactionDescription) apply(d *models.ReportDraft) { d.AdrDetails.Description = string(v) }
func (v SetReactionOnsetDate) apply(d *models.ReportDraft)   { d.AdrDetails.OnsetDate = string(v) }
func (v SetReactionOutcome) apply(d *models.ReportDraft)     { d.AdrDetails.Outcome = models.Outcome(v) }
func (v SetReactionSeverity) apply(d *models.ReportDraft)    { d.AdrDetails.Severity = models.Severity(v) }
func (v SetReporterName) apply(d *models.ReportDraft)        { d.ReporterDetails.Name = string(v) }
func (v SetReporterContact) apply(d *models.ReportDraft)     { d.ReporterDetails.Contact = string(v) }

// Section names as they appear on the wire
const (
	SectionPatient  = "patientDetails"
	SectionDrug     = "drugDetails"
	SectionReaction = "adrDetails"
	SectionReporter = "reporterDetails"
)

var fieldUpdates = map[string]func(string) Update{
	SectionPatient + ".patientId":    func(v string) Update { return SetPatientID(v) },
	SectionPatient + ".age":          func(v string) Update { return SetPatientAge(v) },
	SectionPatient + ".gender":       func(v string) Update { return SetPatientGender(v) },
	SectionDrug + ".name":            func(v string) Update { return SetDrugName(v) },
	SectionDrug + ".dosage":          func(v string) Update { return SetDrugDosage(v) },
	SectionDrug + ".route":           func(v string) Update { return SetDrugRoute(v) },
	SectionDrug + ".startDate":       func(v string) Update { return SetDrugStartDate(v) },
	SectionDrug + ".endDate":         func(v string) Update { return SetDrugEndDate(v) },
	SectionReaction + ".description": func(v string) Update { return SetReactionDescription(v) },
	SectionReaction + ".onset_date":  func(v string) Update { return SetReactionOnsetDate(v) },
	SectionReaction + ".outcome":     func(v string) Update { return SetReactionOutcome(v) },
	SectionReaction + ".severity":    func(v string) Update { return SetReactionSeverity(v) },
	SectionReporter + ".name":        func(v string) Update { return SetReporterName(v) },
	SectionReporter + ".contact":     func(v string) Update { return SetReporterContact(v) },
}

// ParseUpdate converts a wire-level section/field/value triple into a typed
// Update
func ParseUpdate(section, field, value string) (Update, error) {
	build, ok := fieldUpdates[section+"."+field]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, section, field)
	}
	return build(value), nil
}
