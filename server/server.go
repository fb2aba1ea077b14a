package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/flamefinish/inventory-agent/pkg/msglog"
)

const serviceName = "Flame & Finish Inventory Bot"

// ApologyReply is sent when the agent fails outright; end users never see
// internal errors.
const ApologyReply = "Sorry, something went wrong processing your message. Try again in a bit!"

// Responder turns one inbound message into a reply.
type Responder interface {
	HandleMessage(ctx context.Context, sender, text string) (string, error)
}

// Transport delivers replies and authenticates inbound webhook requests.
type Transport interface {
	SendMessage(ctx context.Context, to, body string) (string, error)
	ValidateSignature(requestURL string, params url.Values, signature string) bool
}

// Recorder persists handled messages for auditing. May be nil.
type Recorder interface {
	Record(ctx context.Context, entry msglog.Entry) error
}

type Config struct {
	Addr string `envconfig:"ADDR" default:":8000"`
	// PublicURL is the externally visible base URL; signature validation
	// needs the URL exactly as the sender signed it when running behind a
	// proxy or tunnel.
	PublicURL         string `envconfig:"PUBLIC_URL" split_words:"true"`
	AllowedNumbers    string `envconfig:"ALLOWED_NUMBERS" split_words:"true"`
	ValidateSignature bool   `envconfig:"VALIDATE_SIGNATURE" split_words:"true" default:"false"`
}

type webhookSnapshot struct {
	Hit    bool   `json:"hit"`
	From   string `json:"from"`
	Body   string `json:"body"`
	Detail string `json:"detail"`
}

// Server exposes the health, debug, and webhook endpoints.
type Server struct {
	responder Responder
	transport Transport
	recorder  Recorder

	publicURL         string
	allowed           map[string]struct{}
	validateSignature bool

	mu   sync.Mutex
	last webhookSnapshot
}

func New(cfg Config, responder Responder, transport Transport, recorder Recorder) *Server {
	allowed := make(map[string]struct{})
	for _, raw := range strings.Split(cfg.AllowedNumbers, ",") {
		if number := strings.TrimSpace(raw); number != "" {
			allowed[number] = struct{}{}
		}
	}
	return &Server{
		responder:         responder,
		transport:         transport,
		recorder:          recorder,
		publicURL:         strings.TrimRight(strings.TrimSpace(cfg.PublicURL), "/"),
		allowed:           allowed,
		validateSignature: cfg.ValidateSignature,
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleHealth)
	mux.HandleFunc("GET /debug", s.handleDebug)
	mux.HandleFunc("POST /webhook", s.handleWebhook)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": serviceName,
	})
}

func (s *Server) handleDebug(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"last_webhook":    last,
		"allowed_numbers": len(s.allowed),
	})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	from := r.PostFormValue("From")
	body := r.PostFormValue("Body")
	s.trackWebhook(from, body, "")

	if s.validateSignature {
		signature := r.Header.Get("X-Twilio-Signature")
		if !s.transport.ValidateSignature(s.requestURL(r), r.PostForm, signature) {
			log.Warn().Str("from", from).Msg("invalid webhook signature")
			http.Error(w, "Invalid signature", http.StatusForbidden)
			return
		}
	}

	if len(s.allowed) > 0 {
		if _, ok := s.allowed[from]; !ok {
			log.Warn().Str("from", from).Msg("unauthorized sender")
			http.Error(w, "Unauthorized", http.StatusForbidden)
			return
		}
	}

	started := time.Now()
	reply, err := s.responder.HandleMessage(r.Context(), from, body)
	if err != nil {
		log.Error().Err(err).Str("from", from).Msg("agent failed to handle message")
		reply = ApologyReply
	}

	if sid, sendErr := s.transport.SendMessage(r.Context(), from, reply); sendErr != nil {
		log.Error().Err(sendErr).Str("from", from).Msg("failed to send reply")
		s.trackWebhook(from, body, "send failed: "+sendErr.Error())
	} else {
		s.trackWebhook(from, body, "sent sid="+sid)
	}

	s.record(r.Context(), msglog.Entry{
		Sender:     from,
		Body:       body,
		Reply:      reply,
		Failed:     err != nil,
		DurationMS: time.Since(started).Milliseconds(),
	})

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) record(ctx context.Context, entry msglog.Entry) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(ctx, entry); err != nil {
		log.Warn().Err(err).Msg("failed to record message log entry")
	}
}

func (s *Server) trackWebhook(from, body, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = webhookSnapshot{Hit: true, From: from, Body: body, Detail: detail}
}

// requestURL reconstructs the URL the sender signed.
func (s *Server) requestURL(r *http.Request) string {
	if s.publicURL != "" {
		return s.publicURL + r.URL.RequestURI()
	}
	scheme := "https"
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	} else if r.TLS == nil {
		scheme = "http"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
