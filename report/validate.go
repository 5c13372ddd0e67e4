package report

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/linesmerrill/adr-report-api/models"
)

// Validation rule names
const (
	RuleRequired = "required"
	RuleInteger  = "integer"
	RulePositive = "positive"
	RuleDate     = "date"
	RuleEnum     = "enum"
	RuleOrder    = "not-before-start"
)

// ValidationError lists every rule a draft violates
type ValidationError struct {
	Fields []models.FieldError
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Field)
	}
	return fmt.Sprintf("report has %d invalid field(s): %s", len(e.Fields), strings.Join(names, ", "))
}

// Has reports whether field was flagged
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

type validator struct {
	errs []models.FieldError
}

func (v *validator) fail(field, rule, msg string) {
	v.errs = append(v.errs, models.FieldError{Field: field, Rule: rule, Message: msg})
}

func (v *validator) required(field, value, label string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		v.fail(field, RuleRequired, label+" is required")
		return "", false
	}
	return value, true
}

func (v *validator) date(field, value, label string) (models.Date, bool) {
	value, ok := v.required(field, value, label)
	if !ok {
		return models.Date{}, false
	}
	d, err := models.ParseDate(value)
	if err != nil {
		v.fail(field, RuleDate, label+" must be a date in YYYY-MM-DD form")
		return models.Date{}, false
	}
	return d, true
}

func optional(value string) string {
	return strings.TrimSpace(value)
}

// validate turns a draft into report sections, collecting every violation
// instead of stopping at the first one
func validate(d models.ReportDraft) (models.PatientDetails, models.DrugDetails, models.AdrDetails, models.ReporterDetails, error) {
	v := &validator{}

	patient := models.PatientDetails{PatientID: optional(d.PatientDetails.PatientID)}
	if raw, ok := v.required("patientDetails.age", d.PatientDetails.Age, "Age"); ok {
		age, err := strconv.Atoi(raw)
		switch {
		case err != nil, strings.HasPrefix(raw, "+"):
			v.fail("patientDetails.age", RuleInteger, "Age must be a whole number")
		case age <= 0:
			v.fail("patientDetails.age", RulePositive, "Age must be greater than zero")
		default:
			patient.Age = age
		}
	}
	if raw, ok := v.required("patientDetails.gender", string(d.PatientDetails.Gender), "Gender"); ok {
		gender := models.Gender(raw)
		if !gender.Valid() {
			v.fail("patientDetails.gender", RuleEnum, "Gender must be one of Male, Female, Other, Unknown")
		}
		patient.Gender = gender
	}

	drug := models.DrugDetails{Route: optional(d.DrugDetails.Route)}
	drug.Name, _ = v.required("drugDetails.name", d.DrugDetails.Name, "Drug name")
	drug.Dosage, _ = v.required("drugDetails.dosage", d.DrugDetails.Dosage, "Dosage")
	start, startOK := v.date("drugDetails.startDate", d.DrugDetails.StartDate, "Start date")
	drug.StartDate = start
	if raw := optional(d.DrugDetails.EndDate); raw != "" {
		end, err := models.ParseDate(raw)
		switch {
		case err != nil:
			v.fail("drugDetails.endDate", RuleDate, "End date must be a date in YYYY-MM-DD form")
		case startOK && end.Before(start.Time):
			v.fail("drugDetails.endDate", RuleOrder, "End date cannot be before the start date")
		default:
			drug.EndDate = &end
		}
	}

	adr := models.AdrDetails{}
	adr.Description, _ = v.required("adrDetails.description", d.AdrDetails.Description, "Description")
	adr.OnsetDate, _ = v.date("adrDetails.onset_date", d.AdrDetails.OnsetDate, "Onset date")
	if raw, ok := v.required("adrDetails.outcome", string(d.AdrDetails.Outcome), "Outcome"); ok {
		outcome := models.Outcome(raw)
		if !outcome.Valid() {
			v.fail("adrDetails.outcome", RuleEnum, "Outcome must be one of Recovered, Recovering, Not Recovered, Fatal, Unknown")
		}
		adr.Outcome = outcome
	}
	if raw, ok := v.required("adrDetails.severity", string(d.AdrDetails.Severity), "Severity"); ok {
		severity := models.Severity(raw)
		if !severity.Valid() {
			v.fail("adrDetails.severity", RuleEnum, "Severity must be one of Mild, Moderate, Severe")
		}
		adr.Severity = severity
	}

	reporter := models.ReporterDetails{}
	reporter.Name, _ = v.required("reporterDetails.name", d.ReporterDetails.Name, "Reporter name")
	reporter.Contact, _ = v.required("reporterDetails.contact", d.ReporterDetails.Contact, "Contact")

	if len(v.errs) > 0 {
		return models.PatientDetails{}, models.DrugDetails{}, models.AdrDetails{}, models.ReporterDetails{}, &ValidationError{Fields: v.errs}
	}
	return patient, drug, adr, reporter, nil
}
