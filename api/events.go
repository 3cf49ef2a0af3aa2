package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/xraph/drafter"
	"github.com/xraph/drafter/checkpoint"
	"github.com/xraph/drafter/stream"
)

// EventSnapshot names the first event of a stream. Its data is the
// engine.Outcome of the execution at subscription time.
const EventSnapshot = "snapshot"

// DefaultHeartbeat is the interval of SSE keep-alive comments.
const DefaultHeartbeat = 15 * time.Second

// streamExecution sends the lifecycle events of one execution as
// server-sent events until it completes or fails, or the client leaves.
// An execution that does not exist yet is waited for, so a client can
// subscribe before starting it with a chosen id.
func (a *API) streamExecution(w http.ResponseWriter, r *http.Request) {
	execID, err := executionID(r)
	if err != nil {
		a.writeError(w, r, err, nil)
		return
	}

	// Subscribe before the snapshot so no event falls in between.
	sub := a.broker.SubscribeNew(stream.ExecutionTopic(execID.String()))
	defer a.broker.RemoveSubscriber(sub.ID())

	out, err := a.eng.Inspect(r.Context(), execID)
	if err != nil && !errors.Is(err, drafter.ErrCheckpointNotFound) {
		a.writeError(w, r, err, nil)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	if out != nil {
		if err := writeEvent(w, EventSnapshot, out); err != nil {
			return
		}
		if !out.Suspended() && finished(out.Handle.Status) {
			_ = rc.Flush() //nolint:errcheck // stream ends here
			return
		}
	}
	if err := rc.Flush(); err != nil {
		a.logger.Debug("event stream not flushable", slog.String("error", err.Error()))
		return
	}

	heartbeat := time.NewTicker(a.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
		case evt, ok := <-sub.C():
			if !ok {
				return
			}
			sub.AddCredits(1)
			if err := writeEvent(w, string(evt.Type), evt); err != nil {
				return
			}
			if evt.Type.Terminal() {
				_ = rc.Flush() //nolint:errcheck // stream ends here
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w io.Writer, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}

func finished(s checkpoint.Status) bool {
	return s == checkpoint.StatusCompleted || s == checkpoint.StatusFailed
}
