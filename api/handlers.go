package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/drafter"
	"github.com/xraph/drafter/checkpoint"
	"github.com/xraph/drafter/engine"
	"github.com/xraph/drafter/id"
)

const defaultListLimit = 50

func (a *API) startExecution(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := a.decode(w, r, &req); err != nil {
		a.writeError(w, r, err, nil)
		return
	}
	if req.Graph == "" {
		a.writeError(w, r, badRequest("graph is required"), nil)
		return
	}

	var opts []engine.RunOption
	if req.ExecutionID != "" {
		execID, err := id.ParseExecutionID(req.ExecutionID)
		if err != nil {
			a.writeError(w, r, badRequest(fmt.Sprintf("invalid execution id: %v", err)), nil)
			return
		}
		opts = append(opts, engine.WithExecutionID(execID))
	}

	// A client that disconnects does not stop the execution; it can be
	// inspected or watched afterwards.
	out, err := a.eng.Run(context.WithoutCancel(r.Context()), req.Graph, req.Fields, opts...)
	if err != nil {
		a.writeError(w, r, err, out)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (a *API) resumeExecution(w http.ResponseWriter, r *http.Request) {
	execID, err := executionID(r)
	if err != nil {
		a.writeError(w, r, err, nil)
		return
	}
	var req ResumeRequest
	if err := a.decode(w, r, &req); err != nil {
		a.writeError(w, r, err, nil)
		return
	}

	out, err := a.eng.Resume(context.WithoutCancel(r.Context()), execID, req.Value)
	if err != nil {
		a.writeError(w, r, err, out)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) getExecution(w http.ResponseWriter, r *http.Request) {
	execID, err := executionID(r)
	if err != nil {
		a.writeError(w, r, err, nil)
		return
	}
	out, err := a.eng.Inspect(r.Context(), execID)
	if err != nil {
		a.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) dropExecution(w http.ResponseWriter, r *http.Request) {
	execID, err := executionID(r)
	if err != nil {
		a.writeError(w, r, err, nil)
		return
	}
	if err := a.eng.Drop(r.Context(), execID); err != nil {
		a.writeError(w, r, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listExecutions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := checkpoint.ListOpts{
		Status: checkpoint.Status(q.Get("status")),
		Graph:  q.Get("graph"),
		Limit:  defaultListLimit,
	}
	var err error
	if v := q.Get("limit"); v != "" {
		if opts.Limit, err = strconv.Atoi(v); err != nil || opts.Limit < 0 {
			a.writeError(w, r, badRequest("invalid limit"), nil)
			return
		}
	}
	if v := q.Get("offset"); v != "" {
		if opts.Offset, err = strconv.Atoi(v); err != nil || opts.Offset < 0 {
			a.writeError(w, r, badRequest("invalid offset"), nil)
			return
		}
	}
	switch opts.Status {
	case "", checkpoint.StatusRunning, checkpoint.StatusSuspended, checkpoint.StatusCompleted, checkpoint.StatusFailed:
	default:
		a.writeError(w, r, badRequest(fmt.Sprintf("invalid status %q", opts.Status)), nil)
		return
	}

	cps, err := a.eng.List(r.Context(), opts)
	if err != nil {
		a.writeError(w, r, fmt.Errorf("list executions: %w", err), nil)
		return
	}
	resp := ListExecutionsResponse{Executions: make([]ExecutionSummary, 0, len(cps))}
	for _, cp := range cps {
		resp.Executions = append(resp.Executions, summaryOf(cp))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) listGraphs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.eng.Topologies())
}

func (a *API) getGraph(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	g, ok := a.eng.Graphs().Get(name)
	if !ok {
		a.writeError(w, r, fmt.Errorf("%w: %s", drafter.ErrGraphNotFound, name), nil)
		return
	}
	writeJSON(w, http.StatusOK, g.Describe())
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), a.pingTimeout)
	defer cancel()
	if err := a.eng.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// decode reads a JSON body into v, rejecting unknown top-level keys.
func (a *API) decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, a.maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("empty request body")
		}
		return badRequest(fmt.Sprintf("invalid request body: %v", err))
	}
	return nil
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error, out *engine.Outcome) {
	var reqErr *requestError
	status, code := http.StatusBadRequest, CodeInvalidRequest
	if !errors.As(err, &reqErr) {
		status, code = statusOf(err)
	}
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("code", code),
			slog.String("error", err.Error()),
		)
	}
	writeJSON(w, status, ErrorResponse{Code: code, Message: err.Error(), Outcome: out})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // client went away
}

func executionID(r *http.Request) (id.ExecutionID, error) {
	execID, err := id.ParseExecutionID(mux.Vars(r)["id"])
	if err != nil {
		return id.Nil, badRequest(fmt.Sprintf("invalid execution id: %v", err))
	}
	return execID, nil
}

// logRequests logs every matched request and names the enclosing server
// span after the route template.
func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		if span := trace.SpanFromContext(r.Context()); span.SpanContext().IsValid() {
			span.SetName(r.Method + " " + route)
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		a.logger.Debug("request",
			slog.String("method", r.Method),
			slog.String("route", route),
			slog.Int("status", rec.status),
			slog.Duration("elapsed", time.Since(start)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }
