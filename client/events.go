package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/xraph/drafter/api"
	"github.com/xraph/drafter/engine"
	"github.com/xraph/drafter/stream"
)

// maxEventBytes bounds one server-sent event line.
const maxEventBytes = 4 << 20

// ErrStopWatch can be returned by a WatchFunc to end Watch without error.
var ErrStopWatch = errors.New("client: stop watch")

// WatchEvent is one event of an execution stream. The first event carries
// Snapshot when the execution already existed; every other carries Event.
type WatchEvent struct {
	Snapshot *engine.Outcome
	Event    *stream.Event
}

// WatchFunc handles one event. A non-nil error ends the watch.
type WatchFunc func(WatchEvent) error

// Watch follows the lifecycle events of an execution until it completes
// or fails, fn returns an error, or ctx is done. Watching an id before
// starting it with WithExecutionID sees every event of the run.
func (c *Client) Watch(ctx context.Context, execID string, fn WatchFunc) error {
	path := "/v1/executions/" + url.PathEscape(execID) + "/events"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("client: new request: %w", err)
	}
	for k, vs := range c.headers {
		req.Header[k] = vs
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Method: http.MethodGet, Path: path, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}

	var name, data string
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64<<10), maxEventBytes)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && name != "":
			evt, err := decodeWatchEvent(name, data)
			if err != nil {
				return err
			}
			if err := fn(evt); err != nil {
				if errors.Is(err, ErrStopWatch) {
					return nil
				}
				return err
			}
			name, data = "", ""
		}
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil {
		return &TransportError{Method: http.MethodGet, Path: path, Err: err}
	}
	return ctx.Err()
}

func decodeWatchEvent(name, data string) (WatchEvent, error) {
	if name == api.EventSnapshot {
		var out engine.Outcome
		if err := json.Unmarshal([]byte(data), &out); err != nil {
			return WatchEvent{}, fmt.Errorf("client: decode snapshot: %w", err)
		}
		return WatchEvent{Snapshot: &out}, nil
	}
	var evt stream.Event
	if err := json.Unmarshal([]byte(data), &evt); err != nil {
		return WatchEvent{}, fmt.Errorf("client: decode %s event: %w", name, err)
	}
	return WatchEvent{Event: &evt}, nil
}
