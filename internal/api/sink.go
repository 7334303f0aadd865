package api

import (
	"log/slog"

	"github.com/starford/echochamber/internal/sse"
	"github.com/starford/echochamber/internal/timeline"
)

// SSE event names.
const (
	EventTimelineReset = "timeline.reset"
	EventEntryPrepend  = "entry.prepend"
	EventEntryUpdate   = "entry.update"
	EventEntryRemove   = "entry.remove"
	EventNotice        = "notice"
)

// Publisher broadcasts events to connected pages.
type Publisher interface {
	Publish(event sse.Event)
}

// Sink turns timeline patches into SSE events carrying rendered HTML.
type Sink struct {
	pages  *Pages
	pub    Publisher
	logger *slog.Logger
}

// NewSink creates a Sink.
func NewSink(pages *Pages, pub Publisher, logger *slog.Logger) *Sink {
	return &Sink{pages: pages, pub: pub, logger: logger}
}

// Apply implements timeline.Sink.
func (s *Sink) Apply(p timeline.Patch) {
	switch p.Kind {
	case timeline.PatchReset:
		html, err := s.pages.List(p.View)
		if err != nil {
			s.logger.Error("sink: render list failed", slog.String("error", err.Error()))
			return
		}
		s.pub.Publish(sse.Event{Type: EventTimelineReset, Data: map[string]string{"html": html}})

	case timeline.PatchPrepend, timeline.PatchUpdate:
		html, err := s.pages.Entry(p.Entry)
		if err != nil {
			s.logger.Error("sink: render entry failed", slog.String("path", p.Path), slog.String("error", err.Error()))
			return
		}
		kind := EventEntryUpdate
		if p.Kind == timeline.PatchPrepend {
			kind = EventEntryPrepend
		}
		s.pub.Publish(sse.Event{Type: kind, Data: map[string]string{"path": p.Path, "html": html}})

	case timeline.PatchRemove:
		s.pub.Publish(sse.Event{Type: EventEntryRemove, Data: map[string]string{"path": p.Path}})

	case timeline.PatchNotice:
		s.pub.Publish(sse.Event{Type: EventNotice, Data: map[string]string{"message": p.Message}})
	}
}
