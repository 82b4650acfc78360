package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"
)

const StreamPath = "/api/v1/events/stream"

// Subscriber is satisfied by events.Fanout.
type Subscriber interface {
	Subscribe(buffer int) (<-chan model.Event, func())
}

// StreamHandler serves the event feed as server-sent events. Each event id is
// "<subject_id>:<version>" so clients can detect gaps the same way feed consumers do.
type StreamHandler struct {
	source    Subscriber
	buffer    int
	heartbeat time.Duration
	log       *logger.Logger

	done      chan struct{}
	closeOnce sync.Once
}

func NewStreamHandler(source Subscriber, heartbeat time.Duration, log *logger.Logger) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &StreamHandler{
		source:    source,
		buffer:    256,
		heartbeat: heartbeat,
		log:       log,
		done:      make(chan struct{}),
	}
}

// Close ends every open stream.
func (h *StreamHandler) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// ServeHTTP streams until the client leaves, the source closes or Close is called.
// The optional subject query parameter restricts the stream to one subject.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	subject := r.URL.Query().Get("subject")
	rc := http.NewResponseController(w)

	events, cancel := h.source.Subscribe(h.buffer)
	defer cancel()

	// Streams outlive the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.log.Warn("Response writer cannot stream", "error", err)
		return
	}

	h.log.Debug("Event stream opened", "subject", subject, "remote", r.RemoteAddr)
	defer h.log.Debug("Event stream closed", "subject", subject, "remote", r.RemoteAddr)

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
		case e, ok := <-events:
			if !ok {
				return
			}
			if subject != "" && e.SubjectID != subject {
				continue
			}
			if err := writeEvent(w, e); err != nil {
				h.log.Warn("Failed to write event to stream", "subject_id", e.SubjectID, "version", e.Version, "error", err)
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w io.Writer, e model.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s:%d\nevent: %s\ndata: %s\n\n", e.SubjectID, e.Version, e.Type, data)
	return err
}
