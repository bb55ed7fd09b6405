package viewer

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/rendis/archflow/internal/streaming"
	"github.com/rendis/archflow/pkg/schema"
)

// sseKeepAlive is how often an idle stream gets a comment line, so proxies
// keep a paused session's connection open.
const sseKeepAlive = 15 * time.Second

// sseStream writes numbered Server-Sent Events.
type sseStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	seq     int
}

func (s *sseStream) send(event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.seq++
	fmt.Fprintf(s.w, "id: %d\nevent: %s\ndata: %s\n\n", s.seq, event, data)
	s.flusher.Flush()
	return nil
}

func (s *sseStream) ping() {
	fmt.Fprint(s.w, ": ping\n\n")
	s.flusher.Flush()
}

// handleSSESession streams one session. The current state goes first so a
// late subscriber can draw at once; the stream ends after session_closed.
// ?events=playback_step,playback_finished limits the stream to those event
// types (session_closed is always sent).
func (s *Server) handleSSESession(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Sessions.Get(r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	filter := streaming.FrameFilter{SessionID: p.ID()}
	if q := r.URL.Query().Get("events"); q != "" {
		filter.Types = strings.Split(q, ",")
		if !slices.Contains(filter.Types, schema.EventSessionClosed) {
			filter.Types = append(filter.Types, schema.EventSessionClosed)
		}
	}
	ch, cancel, err := s.deps.Hub.Subscribe(r.Context(), filter)
	if err != nil {
		s.deps.Logger.Error("SSE subscribe failed", "session_id", p.ID(), "error", err)
		http.Error(w, "subscribe failed", http.StatusInternalServerError)
		return
	}
	defer cancel()
	defer p.Attach()()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	stream := &sseStream{w: w, flusher: flusher}
	if err := stream.send("state", p.State()); err != nil {
		s.deps.Logger.Warn("SSE state encode failed", "session_id", p.ID(), "error", err)
	}

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			stream.ping()
		case fr, ok := <-ch:
			if !ok {
				return
			}
			if err := stream.send(fr.Type, fr); err != nil {
				continue
			}
			if fr.Type == schema.EventSessionClosed {
				return
			}
		}
	}
}
