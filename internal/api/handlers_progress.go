package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ignite/audience-core/internal/pkg/httputil"
)

const progressPing = 15 * time.Second

// StreamProgress relays the user's background job progress as server-sent
// events until the client disconnects.
func (h *Handlers) StreamProgress(w http.ResponseWriter, r *http.Request) {
	s := scopeFrom(r.Context())
	if !requireUser(w, s) {
		return
	}
	if h.progress == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "progress streaming is not configured")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.InternalError(w, fmt.Errorf("streaming unsupported"))
		return
	}

	ctx := r.Context()
	sub := h.progress.Subscribe(ctx, s.actor.UserID)
	defer sub.Close()
	// Wait for the subscription so nothing published after the headers is lost.
	if _, err := sub.Receive(ctx); err != nil {
		httputil.InternalError(w, fmt.Errorf("subscribe progress: %w", err))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := sub.Channel()
	ping := time.NewTicker(progressPing)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: progress\ndata: %s\n\n", msg.Payload)
			flusher.Flush()
		case <-ping.C:
			fmt.Fprintf(w, "event: ping\ndata: {}\n\n")
			flusher.Flush()
		}
	}
}
