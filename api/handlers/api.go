package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/linesmerrill/adr-report-api/api"
	"github.com/linesmerrill/adr-report-api/api/scheduler"
	"github.com/linesmerrill/adr-report-api/capture"
	"github.com/linesmerrill/adr-report-api/chat"
	"github.com/linesmerrill/adr-report-api/completion"
	"github.com/linesmerrill/adr-report-api/config"
	"github.com/linesmerrill/adr-report-api/coordinator"
	"github.com/linesmerrill/adr-report-api/databases"
	"github.com/linesmerrill/adr-report-api/export"
	"github.com/linesmerrill/adr-report-api/logging"
	"github.com/linesmerrill/adr-report-api/models"
	"github.com/linesmerrill/adr-report-api/report"
)

const wsPath = "/api/v1/chat/ws"

// App stores the router and its collaborators, so it can be reused
type App struct {
	Router     *mux.Router
	Config     config.Config
	Gate       *api.Gate
	Workspaces *coordinator.Registry
	Sink       export.Sink
	Metrics    *api.MetricsCollector

	client    databases.ClientHelper
	scheduler *scheduler.Scheduler
	cancel    context.CancelFunc
}

// New creates a new mux router and all the routes
func (a *App) New() *mux.Router {
	ws := &Workspace{Registry: a.Workspaces, Gate: a.Gate}
	rep := Report{WS: ws, Sink: a.Sink, CaptureMaxBytes: a.Config.CaptureMaxBytes}
	ch := Chat{WS: ws}
	m := MetricsHandler{Metrics: a.Metrics}

	r := mux.NewRouter()
	r.Use(api.MetricsMiddleware(a.Metrics))

	// healthchex
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	apiCreate := r.PathPrefix("/api/v1").Subrouter()
	secured := func(h http.HandlerFunc) http.Handler {
		return a.Gate.Middleware(h)
	}

	apiCreate.HandleFunc("/auth/login", a.Gate.Login).Methods("POST")
	apiCreate.Handle("/auth/logout", secured(ws.LogoutHandler)).Methods("DELETE")
	apiCreate.Handle("/me", secured(ws.MeHandler)).Methods("GET")

	apiCreate.Handle("/view", secured(ws.ViewHandler)).Methods("GET")
	apiCreate.Handle("/view", secured(ws.TransitionHandler)).Methods("PUT")

	apiCreate.Handle("/report", secured(rep.DraftHandler)).Methods("GET")
	apiCreate.Handle("/report/fields", secured(rep.UpdateFieldHandler)).Methods("PATCH")
	apiCreate.Handle("/report/attachment", secured(rep.AttachImageHandler)).Methods("POST")
	apiCreate.Handle("/report/attachment", secured(rep.ClearImageHandler)).Methods("DELETE")
	apiCreate.Handle("/report/submit", secured(rep.SubmitHandler)).Methods("POST")
	apiCreate.Handle("/report/reset", secured(rep.ResetHandler)).Methods("POST")

	apiCreate.Handle("/chat/transcript", secured(ch.TranscriptHandler)).Methods("GET")
	apiCreate.Handle("/chat/messages", secured(ch.SendMessageHandler)).Methods("POST")
	apiCreate.Handle("/chat/ws", api.QueryToken(secured(ch.WebSocketHandler))).Methods("GET")

	apiCreate.Handle("/metrics/summary", secured(m.GetMetricsSummary)).Methods("GET")
	apiCreate.Handle("/metrics/routes", secured(m.GetRouteMetrics)).Methods("GET")

	return r
}

// Handler wraps the router with the request timeout. The websocket route
// is exempt.
func (a *App) Handler() http.Handler {
	return api.TimeoutMiddleware(a.Config.RequestTimeout, wsPath)(a.Router)
}

// Initialize is invoked by main to connect with the database and create a router
func (a *App) Initialize() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	client, err := databases.NewClient(&a.Config)
	if err != nil {
		// if we fail to create a new database client, then kill the pod
		zap.S().Errorw("failed to create new client", "error", err)
		return err
	}
	a.client = client

	connectCtx, connectCancel := context.WithTimeout(ctx, 10*time.Second)
	defer connectCancel()
	if err := client.Connect(connectCtx); err != nil {
		// if we fail to connect to the database, then kill the pod
		zap.S().Errorw("failed to connect to database", "error", err)
		return err
	}
	zap.S().Info("adr-report-api has connected to the database")
	sessions := databases.NewSessionDatabase(databases.NewDatabase(&a.Config, client))

	completer, err := newCompleter(a.Config)
	if err != nil {
		return err
	}

	a.Metrics = api.NewMetricsCollector(10000, time.Hour)
	a.Workspaces = coordinator.NewRegistry(newFactory(a.Config, api.InstrumentCompleter(a.Config.CompletionProvider, completer)))

	secret := []byte(a.Config.JWTSecret)
	if len(secret) == 0 {
		return errors.New("JWT_SECRET is not set")
	}
	a.Gate = api.NewGate(ctx, sessions, api.GateConfig{
		Secret:         secret,
		TTL:            a.Config.SessionTTL,
		PassphraseHash: a.Config.AccessPassphraseHash,
		OnLogout:       a.Workspaces.Drop,
	})

	a.Sink = newSink(a.Config)

	a.scheduler = scheduler.NewScheduler(a.Workspaces, sessions, a.Metrics, a.Config.WorkspaceIdleTTL)
	a.scheduler.Start()

	// initialize api router
	a.Router = a.New()
	return nil
}

// Close stops background work and disconnects from the database
func (a *App) Close(ctx context.Context) {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.Metrics != nil {
		a.Metrics.Close()
	}
	if a.client != nil {
		if err := a.client.Disconnect(ctx); err != nil {
			zap.S().Errorw("failed to disconnect from database", "error", err)
		}
	}
	if a.cancel != nil {
		a.cancel()
	}
}

func newCompleter(conf config.Config) (completion.Completer, error) {
	httpClient := &http.Client{Timeout: conf.CompletionTimeout}
	switch conf.CompletionProvider {
	case "gemini":
		return completion.NewGeminiClient(completion.GeminiConfig{
			BaseURL:    conf.GeminiBaseURL,
			Model:      conf.GeminiModel,
			APIKey:     conf.GeminiAPIKey,
			KeyInQuery: conf.GeminiKeyInQuery,
			HTTPClient: httpClient,
		}), nil
	case "openai":
		return completion.NewOpenAIClient(completion.OpenAIConfig{
			APIKey:     conf.OpenAIAPIKey,
			Model:      conf.OpenAIModel,
			HTTPClient: httpClient,
		}), nil
	}
	return nil, fmt.Errorf("unknown completion provider %q", conf.CompletionProvider)
}

func newFactory(conf config.Config, completer completion.Completer) coordinator.Factory {
	capturer := capture.New(capture.WithMaxBytes(conf.CaptureMaxBytes))
	return coordinator.FactoryFuncs{
		Composer: func() *report.Composer {
			return report.NewComposer(capturer)
		},
		Chat: func() *chat.Session {
			return chat.New(completer, chat.WithHistory(conf.ChatHistory), chat.WithLogger(logging.New("chat")))
		},
	}
}

func newSink(conf config.Config) export.Sink {
	sinks := export.Multi{export.LogSink{Logger: logging.New("export")}}
	if conf.SendgridAPIKey == "" || conf.ReportExportEmail == "" {
		return sinks
	}
	var opts []export.EmailOption
	if conf.CloudinaryURL != "" {
		uploader, err := export.NewCloudinaryUploader(conf.CloudinaryURL)
		if err != nil {
			zap.S().Errorw("cloudinary disabled, images will be attached", "error", err)
		} else {
			opts = append(opts, export.WithUploader(uploader))
		}
	}
	return append(sinks, export.NewEmailSink(conf.SendgridAPIKey, conf.ReportFromEmail, conf.ReportExportEmail, opts...))
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	b, _ := json.Marshal(models.HealthCheckResponse{
		Alive: true,
	})
	_, _ = io.WriteString(w, string(b))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.S().Errorw("failed to encode response", "error", err)
	}
}
