package saver

import (
	"context"
	"fmt"
)

// Handler is the per-community strategy invoked after photos have been
// uploaded. Custom behaviors register under a name; the community's
// configuration picks one at load time.
type Handler interface {
	SchedulePost(ctx context.Context, text string, attachments []string) (ScheduledPost, error)
	NotifyUser(ctx context.Context, userID int64, text string, attachments []string) error
}

// CommunitySettings is the slice of community configuration a handler needs.
type CommunitySettings struct {
	ID            int64
	IntervalHours int
	AccessToken   string
}

// HandlerDeps carries the shared components a handler builds on.
type HandlerDeps struct {
	Scheduler *Scheduler
	Notifier  *Notifier
	Community CommunitySettings
}

// HandlerConstructor builds a handler bound to one community.
type HandlerConstructor func(HandlerDeps) Handler

// DefaultHandlerName is used when a community does not name a handler.
const DefaultHandlerName = "default"

// Registrations happen from init functions, lookups at configuration load;
// the map is never written concurrently.
var handlerRegistry = map[string]HandlerConstructor{}

// RegisterHandler makes a handler constructor available under name.
func RegisterHandler(name string, fn HandlerConstructor) {
	handlerRegistry[name] = fn
}

// NewHandler resolves a registered handler by name.
func NewHandler(name string, deps HandlerDeps) (Handler, error) {
	if name == "" {
		name = DefaultHandlerName
	}
	fn, ok := handlerRegistry[name]
	if !ok {
		return nil, fmt.Errorf("unknown handler %q", name)
	}
	return fn(deps), nil
}

func init() {
	RegisterHandler(DefaultHandlerName, func(deps HandlerDeps) Handler {
		return &defaultHandler{deps: deps}
	})
}

// defaultHandler queues the post after the community's latest pending post
// plus the configured interval.
type defaultHandler struct {
	deps HandlerDeps
}

func (h *defaultHandler) SchedulePost(ctx context.Context, text string, attachments []string) (ScheduledPost, error) {
	community := h.deps.Community
	last, err := h.deps.Scheduler.NextPublishTime(ctx, community.ID)
	if err != nil {
		return ScheduledPost{}, err
	}
	publishAt := TargetPublishTime(last, community.IntervalHours)
	return h.deps.Scheduler.SubmitPost(ctx, community.ID, text, attachments, publishAt)
}

func (h *defaultHandler) NotifyUser(ctx context.Context, userID int64, text string, attachments []string) error {
	return h.deps.Notifier.Notify(ctx, h.deps.Community.AccessToken, userID, text, attachments)
}
