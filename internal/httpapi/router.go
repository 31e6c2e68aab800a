package httpapi

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/nbdundareddi/InterviewPrep-Bolt/internal/eventlog"
	"github.com/nbdundareddi/InterviewPrep-Bolt/internal/interview"
	"github.com/nbdundareddi/InterviewPrep-Bolt/internal/notifications"
	"github.com/nbdundareddi/InterviewPrep-Bolt/internal/store"
)

type RouterConfig struct {
	// Question generation
	OpenAIAPIKey  string
	QuestionCount int    // default questions per session
	Language      string // BCP 47 tag for generated questions

	// LiveKit room access
	LiveKitURL       string
	LiveKitAPIKey    string
	LiveKitAPISecret string

	// Session token authentication
	JWTSecret string
	JWTExpiry time.Duration

	// Notifications
	DiscordWebhookURL string
}

type Router struct {
	cfg       RouterConfig
	logger    *log.Logger
	store     *store.Store
	eventLog  *eventlog.Logger
	discord   *notifications.Discord
	questions interview.QuestionSource
	fallback  interview.QuestionSource
	registry  *SessionRegistry
	mux       *http.ServeMux
}

func NewRouter(cfg RouterConfig, logger *log.Logger, s *store.Store, eventLog *eventlog.Logger, registry *SessionRegistry) http.Handler {
	// OpenAI generates role-specific questions when configured. The static
	// bank always stands by as a fallback so a provider outage never blocks
	// session start.
	var source interview.QuestionSource = interview.StaticBank{}
	if cfg.OpenAIAPIKey != "" {
		source = interview.NewOpenAIGenerator(interview.OpenAIConfig{APIKey: cfg.OpenAIAPIKey})
	}

	r := &Router{
		cfg:       cfg,
		logger:    logger,
		store:     s,
		eventLog:  eventLog,
		discord:   notifications.NewDiscord(cfg.DiscordWebhookURL, logger),
		questions: source,
		fallback:  interview.StaticBank{},
		registry:  registry,
		mux:       http.NewServeMux(),
	}

	r.routes()
	return withSentryRecovery(withCORS(r.mux))
}

func (r *Router) routes() {
	// Health checks
	r.mux.HandleFunc("GET /healthz", r.handleHealthz)
	r.mux.HandleFunc("GET /readyz", r.handleReadyz)

	// Session creation (public, issues the session token)
	r.mux.HandleFunc("POST /api/sessions", r.handleStartSession)

	// Session lifecycle (requires the session token issued at start)
	r.mux.HandleFunc("GET /api/sessions/{id}", r.withSessionAuth(r.handleGetSession))
	r.mux.HandleFunc("POST /api/sessions/{id}/pause", r.withSessionAuth(r.handlePauseSession))
	r.mux.HandleFunc("POST /api/sessions/{id}/resume", r.withSessionAuth(r.handleResumeSession))
	r.mux.HandleFunc("POST /api/sessions/{id}/end", r.withSessionAuth(r.handleEndSession))
	r.mux.HandleFunc("POST /api/sessions/{id}/response", r.withSessionAuth(r.handleSubmitResponse))
	r.mux.HandleFunc("GET /api/sessions/{id}/responses", r.withSessionAuth(r.handleListResponses))
	r.mux.HandleFunc("GET /api/sessions/{id}/costs", r.withSessionAuth(r.handleSessionCosts))
}

func (r *Router) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Router) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if r.registry.IsDraining() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("draining"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withSentryRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(req)
				hub.RecoverWithContext(req.Context(), err)
				hub.Flush(2 * time.Second)
				http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, req)
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func nowUTC() time.Time { return time.Now().UTC() }

// captureError sends an error to Sentry with request context
func captureError(req *http.Request, err error, msg string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetRequest(req)
		scope.SetExtra("message", msg)
		sentry.CaptureException(err)
	})
}
