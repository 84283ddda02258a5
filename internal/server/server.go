package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	"github.com/ostiwe/vksaver/internal/config"
	"github.com/ostiwe/vksaver/internal/logutil"
	"github.com/ostiwe/vksaver/internal/saver"
)

// Event is the inbound callback payload, from either the social network's
// callback transport or the browser extension.
type Event struct {
	Type    string       `json:"type"`
	GroupID int64        `json:"group_id"`
	Secret  string       `json:"secret"`
	Object  *EventObject `json:"object,omitempty"`
	Photo   string       `json:"photo,omitempty"`
}

// EventObject wraps the message carried by a message_new event.
type EventObject struct {
	Message *saver.Message `json:"message"`
}

// Deps are the components the router dispatches into.
type Deps struct {
	Resolver *saver.Resolver
	Pipeline *saver.Pipeline
	Handlers map[int64]saver.Handler
}

// Server validates inbound events and runs the full pipeline: resolve,
// download, upload, schedule, notify. One event is processed end to end per request;
// there is no internal queueing.
type Server struct {
	cfg  *config.Config
	deps Deps
	http *http.Server
}

// New constructs the webhook server.
func New(cfg *config.Config, deps Deps) *Server {
	s := &Server{cfg: cfg, deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", s.handleHealth)
	r.Post("/callback", s.handleCallback)

	s.http = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     r,
		ReadTimeout: cfg.Server.Timeout,
	}
	return s
}

// Start blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	logutil.Infof("listening on %s", s.http.Addr)
	return s.http.ListenAndServe()
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	var event Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		s.reject(w, saver.ValidationError{Reason: "malformed payload"})
		return
	}

	if event.GroupID == 0 {
		s.reject(w, saver.ValidationError{Reason: `param "group_id" is required`})
		return
	}
	if event.Secret == "" {
		s.reject(w, saver.ValidationError{Reason: `param "secret" is required`})
		return
	}

	community, ok := s.cfg.Community(event.GroupID)
	if !ok {
		s.reject(w, saver.ValidationError{Reason: fmt.Sprintf("community %d is not registered", event.GroupID)})
		return
	}

	switch event.Type {
	case "confirmation":
		s.handleConfirmation(w, event, community)
	case "message_new":
		s.handleMessageNew(w, r, event, community)
	case "browser_plugin":
		s.handleBrowserPlugin(w, r, event, community)
	default:
		s.reject(w, saver.ValidationError{Reason: fmt.Sprintf("unhandled event type %q", event.Type)})
	}
}

func (s *Server) handleConfirmation(w http.ResponseWriter, event Event, community config.Community) {
	if community.Secret != event.Secret {
		s.reject(w, saver.ValidationError{Reason: "wrong secret key"})
		return
	}
	if community.ConfirmationCode == "" {
		s.reject(w, saver.ValidationError{Reason: fmt.Sprintf("no confirmation code configured for community %d", event.GroupID)})
		return
	}
	s.ack(w, community.ConfirmationCode)
}

func (s *Server) handleMessageNew(w http.ResponseWriter, r *http.Request, event Event, community config.Community) {
	if community.Secret != event.Secret {
		s.reject(w, saver.ValidationError{Reason: "wrong secret key"})
		return
	}
	if event.Object == nil || event.Object.Message == nil {
		s.reject(w, saver.ValidationError{Reason: "empty message object"})
		return
	}
	msg := event.Object.Message

	// Messages from anyone but the configured owner are acknowledged and
	// dropped: the bot relays its owner's photos only.
	if msg.FromID != s.cfg.User.ID {
		s.ack(w, "ok")
		return
	}

	// Ack first so the transport does not redeliver while the pipeline runs,
	// then keep processing past the client's disconnect.
	s.ack(w, "ok")
	ctx := context.WithoutCancel(r.Context())
	if err := s.processMessage(ctx, event.GroupID, community, msg); err != nil {
		logutil.Errorf("message_new for community %d: %v", event.GroupID, err)
	}
}

func (s *Server) handleBrowserPlugin(w http.ResponseWriter, r *http.Request, event Event, community config.Community) {
	if s.cfg.Plugin.Secret == "" || event.Secret != s.cfg.Plugin.Secret {
		s.reject(w, saver.ValidationError{Reason: "wrong plugin secret key"})
		return
	}
	if err := s.processPlugin(r.Context(), event.GroupID, community, event.Photo); err != nil {
		logutil.Errorf("browser_plugin for community %d: %v", event.GroupID, err)
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}
	s.ack(w, "ok")
}

func (s *Server) processMessage(ctx context.Context, communityID int64, community config.Community, msg *saver.Message) error {
	handler := s.deps.Handlers[communityID]

	tokens, err := s.deps.Resolver.Filter(ctx, msg.Attachments, community.LikedOnly)
	if err != nil {
		return err
	}

	paths, err := s.deps.Pipeline.DownloadPhotos(ctx, tokens)
	if err != nil {
		return err
	}

	uploaded, err := s.deps.Pipeline.UploadWallPhotos(ctx, communityID, paths)
	if err != nil {
		return err
	}

	return s.schedule(ctx, communityID, handler, msg.Text, uploaded)
}

func (s *Server) processPlugin(ctx context.Context, communityID int64, community config.Community, uri string) error {
	handler := s.deps.Handlers[communityID]

	paths, err := s.deps.Pipeline.DownloadURI(ctx, uri)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		notice := "Не удалось скачать выбранное вами изображение.\n" + uri
		if err := handler.NotifyUser(ctx, s.cfg.User.ID, notice, nil); err != nil {
			logutil.Errorf("%v", err)
		}
		return nil
	}

	uploaded, err := s.deps.Pipeline.UploadWallPhotos(ctx, communityID, paths)
	if err != nil {
		return err
	}

	return s.schedule(ctx, communityID, handler, "", uploaded)
}

func (s *Server) schedule(ctx context.Context, communityID int64, handler saver.Handler, text string, uploaded []saver.UploadedPhoto) error {
	attachments := make([]string, len(uploaded))
	for i, photo := range uploaded {
		attachments[i] = photo.Token()
	}

	post, err := handler.SchedulePost(ctx, text, attachments)
	if err != nil {
		return err
	}

	// Notification failure never rolls back the already-submitted post.
	if err := handler.NotifyUser(ctx, s.cfg.User.ID, post.ConfirmationMessage(communityID), nil); err != nil {
		logutil.Errorf("%v", err)
	}
	return nil
}

// ack writes a minimal plain-text response and closes the connection, the
// courtesy pattern the callback transport expects before redelivery stops.
func (s *Server) ack(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(text)))
	w.Header().Set("Connection", "close")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, text)
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (s *Server) reject(w http.ResponseWriter, err saver.ValidationError) {
	logutil.Debugf("%v", err)
	http.Error(w, err.Error(), http.StatusBadRequest)
}
