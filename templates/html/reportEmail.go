package templates

import (
	"fmt"
	"html"
	"strings"

	"github.com/linesmerrill/adr-report-api/models"
)

// ReportEmailSubject is the subject line for an exported report
func ReportEmailSubject(r models.Report) string {
	return fmt.Sprintf("ADR report %s: %s", r.ID, r.DrugDetails.Name)
}

// RenderReportPlain is the plain text body of an exported report
func RenderReportPlain(r models.Report, imageURL string) string {
	var b strings.Builder
	for _, row := range reportRows(r, imageURL) {
		fmt.Fprintf(&b, "%s: %s\n", row[0], row[1])
	}
	return b.String()
}

// RenderReportEmail generates the HTML body for an exported report. Every
// value is escaped; a hosted image is linked when imageURL is set.
func RenderReportEmail(r models.Report, imageURL string) string {
	var rows strings.Builder
	for _, row := range reportRows(r, imageURL) {
		value := html.EscapeString(row[1])
		if row[0] == "Image" && imageURL != "" {
			value = fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(imageURL), value)
		}
		value = strings.ReplaceAll(value, "\n", "<br>")
		fmt.Fprintf(&rows, "        <tr><th>%s</th><td>%s</td></tr>\n", html.EscapeString(row[0]), value)
	}

	safeSubject := html.EscapeString(ReportEmailSubject(r))

	return fmt.Sprintf(`<!DOCTYPE html PUBLIC "-//W3C//DTD XHTML 1.0 Strict//EN" "http://www.w3.org/TR/xhtml1/DTD/xhtml1-strict.dtd">
<html xmlns="http://www.w3.org/1999/xhtml">
<head>
  <meta http-equiv="Content-Type" content="text/html; charset=utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1, minimum-scale=1, maximum-scale=1">
  <title>%s</title>
  <style type="text/css">
    body { font-family: 'Segoe UI', Tahoma, Geneva, Verdana, sans-serif; margin: 0; padding: 0; background-color: #f4f6f8; }
    .container { max-width: 640px; margin: 0 auto; background-color: #ffffff; }
    .header { background: #0f766e; padding: 30px; text-align: center; }
    .header h1 { color: #fff; margin: 0; font-size: 22px; font-weight: 700; }
    .content { padding: 30px; color: #1f2937; font-size: 14px; }
    th { text-align: left; padding: 6px 12px 6px 0; color: #6b7280; vertical-align: top; white-space: nowrap; }
    td { padding: 6px 0; }
    .footer { padding: 20px; text-align: center; color: #6b7280; font-size: 12px; border-top: 1px solid #e5e7eb; }
  </style>
</head>
<body>
  <div class="container">
    <div class="header">
      <h1>%s</h1>
    </div>
    <div class="content">
      <table>
%s      </table>
    </div>
    <div class="footer">
      <p>Submitted %s</p>
    </div>
  </div>
</body>
</html>`, safeSubject, safeSubject, rows.String(), html.EscapeString(r.SubmittedAt.UTC().Format("2006-01-02 15:04 MST")))
}

func reportRows(r models.Report, imageURL string) [][2]string {
	endDate := ""
	if r.DrugDetails.EndDate != nil {
		endDate = r.DrugDetails.EndDate.String()
	}
	image := r.ImageSummary()
	if imageURL != "" {
		image = imageURL
	}
	return [][2]string{
		{"Report ID", r.ID},
		{"Submitted by", r.SubmittedBy},
		{"Patient ID", r.PatientDetails.PatientID},
		{"Age", fmt.Sprint(r.PatientDetails.Age)},
		{"Gender", string(r.PatientDetails.Gender)},
		{"Drug", r.DrugDetails.Name},
		{"Dosage", r.DrugDetails.Dosage},
		{"Route", r.DrugDetails.Route},
		{"Start date", r.DrugDetails.StartDate.String()},
		{"End date", endDate},
		{"Reaction", r.AdrDetails.Description},
		{"Onset date", r.AdrDetails.OnsetDate.String()},
		{"Outcome", string(r.AdrDetails.Outcome)},
		{"Severity", string(r.AdrDetails.Severity)},
		{"Reporter", r.ReporterDetails.Name},
		{"Contact", r.ReporterDetails.Contact},
		{"Image", image},
	}
}
