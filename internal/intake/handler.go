package intake

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/lead-intake/internal/notify"
	"github.com/sells-group/lead-intake/pkg/amocrm"
)

const defaultMaxBodyBytes = 64 << 10

// Response is the JSON body of both submission endpoints.
type Response struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	AmoSynced *bool     `json:"amoSynced,omitempty"`
	AmoError  string    `json:"amoError,omitempty"`
	GTMEvent  *GTMEvent `json:"gtmEvent,omitempty"`
}

// GTMEvent is the analytics event the landing page pushes after a
// successful submission.
type GTMEvent struct {
	Event         string `json:"event"`
	FormName      string `json:"formName"`
	ContactMethod string `json:"contactMethod,omitempty"`
	Category      string `json:"category,omitempty"`
}

const (
	msgMalformed  = "Error processing submission"
	msgSyncFailed = "Submission received but could not be saved to CRM"
	msgQuizOK     = "Quiz submitted successfully"
	msgLeadOK     = "Lead submitted successfully"
)

// Handler serves the submission endpoints.
type Handler struct {
	svc      *Service
	maxBytes int64
}

// NewHandler creates a Handler. maxBodyBytes <= 0 uses 64 KiB.
func NewHandler(svc *Service, maxBodyBytes int64) *Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	return &Handler{svc: svc, maxBytes: maxBodyBytes}
}

// SubmitQuiz handles POST /api/submit-quiz.
func (h *Handler) SubmitQuiz(w http.ResponseWriter, r *http.Request) {
	var p QuizPayload
	if err := decodePayload(w, r, h.maxBytes, &p); err != nil {
		h.malformed(w, r, string(notify.FormQuiz), err)
		return
	}

	res := h.svc.SubmitQuiz(r.Context(), p, OriginFromRequest(r, p.TrackingCookies))
	writeResult(w, res, msgQuizOK, &GTMEvent{
		Event:         "quiz_complete",
		FormName:      "quiz",
		ContactMethod: p.ContactMethodAnswer(),
	})
}

// SubmitLead handles POST /api/submit-lead.
func (h *Handler) SubmitLead(w http.ResponseWriter, r *http.Request) {
	var p PopupPayload
	if err := decodePayload(w, r, h.maxBytes, &p); err != nil {
		h.malformed(w, r, string(notify.FormPopup), err)
		return
	}

	res := h.svc.SubmitPopup(r.Context(), p, OriginFromRequest(r, p.TrackingCookies))
	writeResult(w, res, msgLeadOK, &GTMEvent{
		Event:    "lead_submit",
		FormName: "popup",
		Category: p.Category,
	})
}

func (h *Handler) malformed(w http.ResponseWriter, r *http.Request, form string, err error) {
	h.svc.recorder.RecordSubmission(form, OutcomeMalformed)
	zap.L().Warn("intake: malformed submission",
		zap.String("form", form),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	writeJSON(w, http.StatusInternalServerError, Response{Success: false, Message: msgMalformed})
}

func writeResult(w http.ResponseWriter, res Result, okMessage string, event *GTMEvent) {
	synced := res.Synced
	if !synced {
		writeJSON(w, http.StatusBadGateway, Response{
			Success:   false,
			Message:   msgSyncFailed,
			AmoSynced: &synced,
			AmoError:  amocrm.PublicMessage(res.Err),
		})
		return
	}
	writeJSON(w, http.StatusOK, Response{
		Success:   true,
		Message:   okMessage,
		AmoSynced: &synced,
		GTMEvent:  event,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// RouterConfig holds what NewRouter mounts besides the submission endpoints.
type RouterConfig struct {
	AllowedOrigins []string
	// Metrics, when set, wraps every route and serves GET /metrics.
	Metrics interface {
		Middleware(http.Handler) http.Handler
		Handler() http.Handler
	}
}

// NewRouter builds the service's HTTP routes.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/submit-quiz", h.SubmitQuiz)
		r.Post("/submit-lead", h.SubmitLead)
	})
	return r
}
