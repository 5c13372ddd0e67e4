package models

// ErrorResponse is the JSON body written for failed API requests
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   string       `json:"error"`
	Code    string       `json:"code,omitempty"`
	Fields  []FieldError `json:"fields,omitempty"`
}

// FieldError names one violated report rule
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// HealthCheckResponse is the body of the /health endpoint
type HealthCheckResponse struct {
	Alive bool `json:"alive"`
}
