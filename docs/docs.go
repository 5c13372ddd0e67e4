// Package docs ADR Report API.
//
// Documentation of the ADR Report API: adverse drug reaction reporting and
// the assistant chat.
//
//     Schemes: https
//     BasePath: /
//     Version: 1.0.0
//
//     Consumes:
//     - application/json
//     - multipart/form-data
//
//     Produces:
//     - application/json
//
//     Security:
//     - bearer
//
//    SecurityDefinitions:
//    bearer:
//      type: apiKey
//      name: Authorization
//      in: header
//
// swagger:meta
package docs

import (
	"github.com/linesmerrill/adr-report-api/models"
)

// swagger:route GET /health health healthEndpointID
// Lists the healthchex of the web service api.
// responses:
//   200: healthResponse

// Shows the current health of the api. true means it is alive, false means it is not.
// swagger:response healthResponse
type healthResponseWrapper struct {
	// in:body
	Body models.HealthCheckResponse
}

// swagger:route POST /api/v1/auth/login auth login
// Starts a session and returns a bearer token.
// responses:
//   200: loginResponse
//   401: errorResponse

// swagger:parameters login
type loginParamsWrapper struct {
	// in:body
	Body models.LoginRequest
}

// A bearer token for the new session
// swagger:response loginResponse
type loginResponseWrapper struct {
	// in:body
	Body models.LoginResponse
}

// swagger:route POST /api/v1/report/submit report submitReport
// Validates and submits the caller's report form.
// responses:
//   201: reportResponse
//   422: errorResponse

// The submitted report
// swagger:response reportResponse
type reportResponseWrapper struct {
	// in:body
	Body models.Report
}

// swagger:route GET /api/v1/chat/transcript chat chatTranscript
// Returns the chat transcript of the caller's workspace.
// responses:
//   200: chatStateResponse
//   409: errorResponse

// The transcript and whether a reply is pending
// swagger:response chatStateResponse
type chatStateResponseWrapper struct {
	// in:body
	Body models.ChatState
}

// A failed request. Field errors are listed for rejected reports.
// swagger:response errorResponse
type errorResponseWrapper struct {
	// in:body
	Body models.ErrorResponse
}
