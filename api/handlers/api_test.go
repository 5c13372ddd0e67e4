package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/linesmerrill/adr-report-api/api"
	"github.com/linesmerrill/adr-report-api/chat"
	"github.com/linesmerrill/adr-report-api/completion"
	"github.com/linesmerrill/adr-report-api/config"
	"github.com/linesmerrill/adr-report-api/coordinator"
	"github.com/linesmerrill/adr-report-api/databases/mocks"
	"github.com/linesmerrill/adr-report-api/models"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0x01}, 64)...)

type fakeCompleter struct {
	reply string
	err   error
}

func (f fakeCompleter) Complete(_ context.Context, turns []completion.Turn) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.reply + ": " + turns[len(turns)-1].Text, nil
}

type recordingSink struct {
	mu      sync.Mutex
	reports []models.Report
}

func (s *recordingSink) Publish(_ context.Context, r models.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reports)
}

type testApp struct {
	App
	sessions *mocks.SessionDatabase
	sink     *recordingSink
}

func newTestApp(t *testing.T, completer completion.Completer) *testApp {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	sessions := &mocks.SessionDatabase{}
	sessions.On("Create", mock.Anything, mock.Anything).Return(nil)
	sessions.On("Revoke", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	ta := &testApp{sessions: sessions, sink: &recordingSink{}}
	ta.Config = config.Config{CaptureMaxBytes: 1 << 20, RequestTimeout: 5 * time.Second, CompletionProvider: "fake"}
	ta.Metrics = api.NewMetricsCollector(100, time.Hour)
	t.Cleanup(ta.Metrics.Close)
	ta.Workspaces = coordinator.NewRegistry(newFactory(ta.Config, completer))
	ta.Gate = api.NewGate(ctx, sessions, api.GateConfig{
		Secret:   []byte("test-secret"),
		TTL:      time.Hour,
		OnLogout: ta.Workspaces.Drop,
	})
	ta.Sink = ta.sink
	ta.Router = ta.New()
	return ta
}

func (ta *testApp) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	ta.Handler().ServeHTTP(rr, req)
	return rr
}

func (ta *testApp) login(t *testing.T, username string) string {
	t.Helper()
	rr := ta.do(t, http.MethodPost, "/api/v1/auth/login", "", models.LoginRequest{Username: username})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var resp models.LoginResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp.Token
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v), rr.Body.String())
}

func errorBody(t *testing.T, rr *httptest.ResponseRecorder) string {
	var body map[string]interface{}
	decode(t, rr, &body)
	msg, _ := body["error"].(string)
	return msg
}

func fillValidReport(t *testing.T, ta *testApp, token string) {
	fields := []fieldUpdate{
		{"patientDetails", "patientId", "P-100"},
		{"patientDetails", "age", "45"},
		{"patientDetails", "gender", "Female"},
		{"drugDetails", "name", "Amoxicillin"},
		{"drugDetails", "dosage", "500mg"},
		{"drugDetails", "startDate", "2025-05-01"},
		{"adrDetails", "description", "Rash on both arms"},
		{"adrDetails", "onset_date", "2025-05-03"},
		{"adrDetails", "outcome", "Recovering"},
		{"adrDetails", "severity", "Moderate"},
		{"reporterDetails", "name", "Dr. Rao"},
		{"reporterDetails", "contact", "rao@example.org"},
	}
	for _, f := range fields {
		rr := ta.do(t, http.MethodPatch, "/api/v1/report/fields", token, f)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	}
}

func uploadImage(t *testing.T, ta *testApp, token, contentType string, data []byte) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="label.png"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/report/attachment", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	ta.Handler().ServeHTTP(rr, req)
	return rr
}

func TestUnknownRoute(t *testing.T) {
	ta := newTestApp(t, fakeCompleter{reply: "ok"})
	rr := ta.do(t, http.MethodGet, "/asdf", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHealthCheckRoute(t *testing.T) {
	ta := newTestApp(t, fakeCompleter{reply: "ok"})
	rr := ta.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"alive": true}`, rr.Body.String())
}

func TestRoutesRequireToken(t *testing.T) {
	ta := newTestApp(t, fakeCompleter{reply: "ok"})
	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/me"},
		{http.MethodGet, "/api/v1/view"},
		{http.MethodGet, "/api/v1/report"},
		{http.MethodPost, "/api/v1/report/submit"},
		{http.MethodPost, "/api/v1/chat/messages"},
		{http.MethodGet, "/api/v1/metrics/summary"},
	}
	for _, p := range paths {
		t.Run(p.method+" "+p.path, func(t *testing.T) {
			rr := ta.do(t, p.method, p.path, "", nil)
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
		})
	}
}

func TestMeStartsOnReportForm(t *testing.T) {
	ta := newTestApp(t, fakeCompleter{reply: "ok"})
	token := ta.login(t, "nurse1")

	rr := ta.do(t, http.MethodGet, "/api/v1/me", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var me meResponse
	decode(t, rr, &me)
	assert.Equal(t, "nurse1", me.CurrentUser)
	assert.Equal(t, coordinator.ViewComposingReport, me.View)
}

func TestReportDraftAndCaptureHints(t *testing.T) {
	ta := newTestApp(t, fakeCompleter{reply: "ok"})
	token := ta.login(t, "nurse1")

	rr := ta.do(t, http.MethodPatch, "/api/v1/report/fields", token, fieldUpdate{"patientDetails", "age", "abc"})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = ta.do(t, http.MethodGet, "/api/v1/report", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var d draftResponse
	decode(t, rr, &d)
	assert.Equal(t, "abc", d.Draft.PatientDetails.Age)
	assert.False(t, d.HasImage)
	assert.Equal(t, "image/*", d.Capture.Accept)
	assert.Equal(t, "environment", d.Capture.Capture)
	assert.Equal(t, int64(1<<20), d.Capture.MaxBytes)
}

func TestUpdateUnknownField(t *testing.T) {
	ta := newTestApp(t, fakeCompleter{reply: "ok"})
	token := ta.login(t, "nurse1")

	rr := ta.do(t, http.MethodPatch, "/api/v1/report/fields", token, fieldUpdate{"patientDetails", "bloodType", "O"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "unknown report field", errorBody(t, rr))
}

func TestSubmitInvalidReport(t *testing.T) {
	ta := newTestApp(t, fakeCompleter{reply: "ok"})
	token := ta.login(t, "nurse1")
	fillValidReport(t, ta, token)
	ta.do(t, http.MethodPatch, "/api/v1/report/fields", token, fieldUpdate{"patientDetails", "age", "0"})

	rr := ta.do(t, http.MethodPost, "/api/v1/report/submit", token, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	var resp models.ErrorResponse
	decode(t, rr, &resp)
	require.Len(t, resp.Fields, 1)
	assert.Equal(t, "patientDetails.age", resp.Fields[0].Field)
	assert.Equal(t, "positive", resp.Fields[0].Rule)

	// the form keeps what was entered
	rr = ta.do(t, http.MethodGet, "/api/v1/report", token, nil)
	var d draftResponse
	decode(t, rr, &d)
	assert.Equal(t, "Amoxicillin", d.Draft.DrugDetails.Name)
	assert.Zero(t, ta.sink.count())
}

func TestSubmitWithImage(t *testing.T) {
	ta := newTestApp(t, fakeCompleter{reply: "ok"})
	token := ta.login(t, "nurse1")
	fillValidReport(t, ta, token)

	rr := uploadImage(t, ta, token, "image/png", pngBytes)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var att attachResponse
	decode(t, rr, &att)
	assert.True(t, att.Attached)

	rr = ta.do(t, http.MethodPost, "/api/v1/report/submit", token, nil)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var rep models.Report
	decode(t, rr, &rep)
	assert.NotEmpty(t, rep.ID)
	assert.Equal(t, 45, rep.PatientDetails.Age)
	assert.Equal(t, "nurse1", rep.SubmittedBy)
	require.NotNil(t, rep.Image)
	assert.True(t, strings.HasPrefix(rep.Image.EncodedData, "data:image/png;base64,"))

	assert.Eventually(t, func() bool { return ta.sink.count() == 1 }, time.Second, 10*time.Millisecond)

	// a successful submit clears the form
	rr = ta.do(t, http.MethodGet, "/api/v1/report", token, nil)
	var d draftResponse
	decode(t, rr, &d)
	assert.Equal(t, models.ReportDraft{}, d.Draft)
}

func TestAttachNonImageIsNotAttached(t *testing.T) {
	ta := newTestApp(t, fakeCompleter{reply: "ok"})
	token := ta.login(t, "nurse1")

	rr := uploadImage(t, ta, token, "text/plain", []byte("hello"))
	require.Equal(t, http.StatusOK, rr.Code)
	var att attachResponse
	decode(t, rr, &att)
	assert.False(t, att.Attached)
	assert.Equal(t, "not-image", att.Reason)

	rr = ta.do(t, http.MethodDelete, "/api/v1/report/attachment", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var d draftResponse
	decode(t, rr, &d)
	assert.False(t, d.HasImage)
}

func TestChatRoutesNeedChatView(t *testing.T) {
	ta := newTestApp(t, fakeCompleter{reply: "ok"})
	token := ta.login(t, "nurse1")

	rr := ta.do(t, http.MethodPost, "/api/v1/chat/messages", token, sendBody{Text: "hi"})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "view not active", errorBody(t, rr))
}

func TestTransitionRejectsUnknownView(t *testing.T) {
	ta := newTestApp(t, fakeCompleter{reply: "ok"})
	token := ta.login(t, "nurse1")

	rr := ta.do(t, http.MethodPut, "/api/v1/view", token, viewBody{View: "settings"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestChatConversation(t *testing.T) {
	ta := newTestApp(t, fakeCompleter{reply: "bot"})
	token := ta.login(t, "nurse1")

	rr := ta.do(t, http.MethodPut, "/api/v1/view", token, viewBody{View: coordinator.ViewChatting})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = ta.do(t, http.MethodGet, "/api/v1/report", token, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = ta.do(t, http.MethodPost, "/api/v1/chat/messages", token, sendBody{Text: "   "})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = ta.do(t, http.MethodPost, "/api/v1/chat/messages", token, sendBody{Text: "Is a rash common?"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var state models.ChatState
	decode(t, rr, &state)
	require.Len(t, state.Transcript, 2)
	assert.Equal(t, models.SenderUser, state.Transcript[0].Sender)
	assert.Equal(t, models.SenderBot, state.Transcript[1].Sender)
	assert.Equal(t, "bot: Is a rash common?", state.Transcript[1].Text)
	assert.False(t, state.Pending)

	rr = ta.do(t, http.MethodGet, "/api/v1/chat/transcript", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	decode(t, rr, &state)
	assert.Len(t, state.Transcript, 2)
}

func TestChatTransportFailureAppendsFallback(t *testing.T) {
	ta := newTestApp(t, fakeCompleter{err: &completion.TransportError{StatusCode: 503, Err: fmt.Errorf("unavailable")}})
	token := ta.login(t, "nurse1")
	ta.do(t, http.MethodPut, "/api/v1/view", token, viewBody{View: coordinator.ViewChatting})

	rr := ta.do(t, http.MethodPost, "/api/v1/chat/messages", token, sendBody{Text: "hello"})
	require.Equal(t, http.StatusOK, rr.Code)
	var state models.ChatState
	decode(t, rr, &state)
	require.Len(t, state.Transcript, 2)
	assert.Equal(t, chat.TransportFallback, state.Transcript[1].Text)
}

func TestLeavingChatDiscardsTranscript(t *testing.T) {
	ta := newTestApp(t, fakeCompleter{reply: "bot"})
	token := ta.login(t, "nurse1")
	ta.do(t, http.MethodPut, "/api/v1/view", token, viewBody{View: coordinator.ViewChatting})
	ta.do(t, http.MethodPost, "/api/v1/chat/messages", token, sendBody{Text: "hello"})

	ta.do(t, http.MethodPut, "/api/v1/view", token, viewBody{View: coordinator.ViewComposingReport})
	ta.do(t, http.MethodPut, "/api/v1/view", token, viewBody{View: coordinator.ViewChatting})

	rr := ta.do(t, http.MethodGet, "/api/v1/chat/transcript", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var state models.ChatState
	decode(t, rr, &state)
	assert.Empty(t, state.Transcript)
}

func TestWorkspacesAreIsolated(t *testing.T) {
	ta := newTestApp(t, fakeCompleter{reply: "bot"})
	first := ta.login(t, "nurse1")
	second := ta.login(t, "nurse2")

	ta.do(t, http.MethodPatch, "/api/v1/report/fields", first, fieldUpdate{"drugDetails", "name", "Ibuprofen"})

	rr := ta.do(t, http.MethodGet, "/api/v1/report", second, nil)
	var d draftResponse
	decode(t, rr, &d)
	assert.Empty(t, d.Draft.DrugDetails.Name)
	assert.Equal(t, 2, ta.Workspaces.Len())
}

func TestLogout(t *testing.T) {
	ta := newTestApp(t, fakeCompleter{reply: "bot"})
	token := ta.login(t, "nurse1")
	ta.do(t, http.MethodGet, "/api/v1/me", token, nil)
	require.Equal(t, 1, ta.Workspaces.Len())

	rr := ta.do(t, http.MethodDelete, "/api/v1/auth/logout", token, nil)
	require.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, 0, ta.Workspaces.Len())
	ta.sessions.AssertCalled(t, "Revoke", mock.Anything, mock.Anything, mock.Anything)
}

func TestMetricsRoutes(t *testing.T) {
	ta := newTestApp(t, fakeCompleter{reply: "bot"})
	token := ta.login(t, "nurse1")
	ta.do(t, http.MethodGet, "/api/v1/me", token, nil)

	assert.Eventually(t, func() bool {
		return ta.Metrics.GetSummary().TotalRequests >= 2
	}, time.Second, 10*time.Millisecond)

	rr := ta.do(t, http.MethodGet, "/api/v1/metrics/routes?sort=frequent&limit=5", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Routes []map[string]interface{} `json:"routes"`
		Limit  int                      `json:"limit"`
	}
	decode(t, rr, &body)
	assert.Equal(t, 5, body.Limit)
	assert.NotEmpty(t, body.Routes)

	rr = ta.do(t, http.MethodGet, "/api/v1/metrics/summary", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
}
