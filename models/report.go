package models

import (
	"time"

	"github.com/samber/lo"
)

// Gender is the patient gender as picked from the report form
type Gender string

// Outcome is the reported outcome of the adverse reaction
type Outcome string

// Severity is the reported severity of the adverse reaction
type Severity string

const (
	GenderMale    Gender = "Male"
	GenderFemale  Gender = "Female"
	GenderOther   Gender = "Other"
	GenderUnknown Gender = "Unknown"

	OutcomeRecovered    Outcome = "Recovered"
	OutcomeRecovering   Outcome = "Recovering"
	OutcomeNotRecovered Outcome = "Not Recovered"
	OutcomeFatal        Outcome = "Fatal"
	OutcomeUnknown      Outcome = "Unknown"

	SeverityMild     Severity = "Mild"
	SeverityModerate Severity = "Moderate"
	SeveritySevere   Severity = "Severe"
)

// Genders lists every accepted Gender in form order
var Genders = []Gender{GenderMale, GenderFemale, GenderOther, GenderUnknown}

// Outcomes lists every accepted Outcome in form order
var Outcomes = []Outcome{OutcomeRecovered, OutcomeRecovering, OutcomeNotRecovered, OutcomeFatal, OutcomeUnknown}

// Severities lists every accepted Severity in form order
var Severities = []Severity{SeverityMild, SeverityModerate, SeveritySevere}

// Valid reports whether g is one of Genders
func (g Gender) Valid() bool { return lo.Contains(Genders, g) }

// Valid reports whether o is one of Outcomes
func (o Outcome) Valid() bool { return lo.Contains(Outcomes, o) }

// Valid reports whether s is one of Severities
func (s Severity) Valid() bool { return lo.Contains(Severities, s) }

// PatientForm holds the patient section exactly as typed
type PatientForm struct {
	PatientID string `json:"patientId"`
	Age       string `json:"age"`
	Gender    Gender `json:"gender"`
}

// DrugForm holds the drug section exactly as typed
type DrugForm struct {
	Name      string `json:"name"`
	Dosage    string `json:"dosage"`
	Route     string `json:"route"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// ReactionForm holds the adverse reaction section exactly as typed
type ReactionForm struct {
	Description string   `json:"description"`
	OnsetDate   string   `json:"onset_date"`
	Outcome     Outcome  `json:"outcome"`
	Severity    Severity `json:"severity"`
}

// ReporterForm holds the reporter section exactly as typed
type ReporterForm struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
}

// ReportDraft is the in-progress report owned by a composer. The zero value is
// the empty form.
type ReportDraft struct {
	PatientDetails  PatientForm      `json:"patientDetails"`
	DrugDetails     DrugForm         `json:"drugDetails"`
	AdrDetails      ReactionForm     `json:"adrDetails"`
	ReporterDetails ReporterForm     `json:"reporterDetails"`
	Image           *ImageAttachment `json:"uploadedImage,omitempty"`
}

// ImageAttachment is a captured document photo encoded as a data URI
type ImageAttachment struct {
	EncodedData string `json:"encodedData"`
	MimeType    string `json:"mimeType"`
	FileName    string `json:"fileName,omitempty"`
	SizeBytes   int64  `json:"sizeBytes"`
}

// PatientDetails is the validated patient section of a Report
type PatientDetails struct {
	PatientID string `json:"patientId,omitempty"`
	Age       int    `json:"age"`
	Gender    Gender `json:"gender"`
}

// DrugDetails is the validated drug section of a Report
type DrugDetails struct {
	Name      string `json:"name"`
	Dosage    string `json:"dosage"`
	Route     string `json:"route,omitempty"`
	StartDate Date   `json:"startDate"`
	EndDate   *Date  `json:"endDate,omitempty"`
}

// AdrDetails is the validated reaction section of a Report
type AdrDetails struct {
	Description string   `json:"description"`
	OnsetDate   Date     `json:"onset_date"`
	Outcome     Outcome  `json:"outcome"`
	Severity    Severity `json:"severity"`
}

// ReporterDetails is the validated reporter section of a Report
type ReporterDetails struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
}

// Report is a submitted adverse drug reaction report. It is built once at
// submit time and never mutated afterwards.
type Report struct {
	ID              string           `json:"id"`
	PatientDetails  PatientDetails   `json:"patientDetails"`
	DrugDetails     DrugDetails      `json:"drugDetails"`
	AdrDetails      AdrDetails       `json:"adrDetails"`
	ReporterDetails ReporterDetails  `json:"reporterDetails"`
	Image           *ImageAttachment `json:"uploadedImage,omitempty"`
	SubmittedAt     time.Time        `json:"submittedAt"`
	SubmittedBy     string           `json:"submittedBy,omitempty"`
}

// ImageSummary describes the attachment the way submission logs print it
func (r Report) ImageSummary() string {
	if r.Image == nil {
		return "No image uploaded"
	}
	return "Image uploaded (base64 data captured)"
}
