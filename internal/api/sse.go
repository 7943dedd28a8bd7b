package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/micro-nova/tinyi2c/internal/trace"
)

// eventJSON is the wire form of a trace event.
type eventJSON struct {
	Kind string    `json:"kind"`
	Addr *int      `json:"addr,omitempty"`
	Dir  string    `json:"dir,omitempty"`
	Byte *int      `json:"byte,omitempty"`
	Ack  bool      `json:"ack"`
	Time time.Time `json:"time"`
}

func toJSON(e trace.Event) eventJSON {
	out := eventJSON{Kind: e.Kind.String(), Ack: e.Ack, Time: e.Time}
	switch e.Kind {
	case trace.KindStart:
		addr := int(e.Addr)
		out.Addr = &addr
		out.Dir = e.Dir.String()
	case trace.KindWrite, trace.KindRead:
		b := int(e.Byte)
		out.Byte = &b
	}
	return out
}

// sseEvents streams bus events as Server-Sent Events until the client goes away.
func (h *Handlers) sseEvents(w http.ResponseWriter, r *http.Request) {
	// Verify the client supports streaming
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	id := uuid.New().String()
	ch := h.events.Subscribe(id)
	defer h.events.Unsubscribe(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return
			}
			sendSSE(w, flusher, toJSON(e))
		case <-r.Context().Done():
			return
		}
	}
}

func sendSSE(w http.ResponseWriter, flusher http.Flusher, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}
