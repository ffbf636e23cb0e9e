package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/openclaw/clawd/store"
)

// registerAPIRoutes registers the authenticated API routes.
func (s *Server) registerAPIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/board", s.handleBoard)
	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /api/feed", s.handleFeed)
	mux.HandleFunc("GET /api/search", s.handleSearch)
	mux.HandleFunc("GET /api/next", s.handleNext)

	mux.HandleFunc("GET /api/tasks", s.handleListTasks)
	mux.HandleFunc("POST /api/tasks", s.handleCreateTask)
	mux.HandleFunc("GET /api/task/{id}", s.handleTaskDetail)
	mux.HandleFunc("GET /api/task/{id}/blockers", s.handleBlockers)

	mux.HandleFunc("POST /api/task/{id}/claim", s.taskAction(s.doClaim))
	mux.HandleFunc("POST /api/task/{id}/start", s.taskAction(s.doStart))
	mux.HandleFunc("POST /api/task/{id}/review", s.taskAction(s.doReview))
	mux.HandleFunc("POST /api/task/{id}/approve", s.taskAction(s.doApprove))
	mux.HandleFunc("POST /api/task/{id}/reject", s.taskAction(s.doReject))
	mux.HandleFunc("POST /api/task/{id}/complete", s.taskAction(s.doComplete))
	mux.HandleFunc("POST /api/task/{id}/cancel", s.taskAction(s.doCancel))
	mux.HandleFunc("POST /api/task/{id}/block", s.taskAction(s.doBlock))
	mux.HandleFunc("POST /api/task/{id}/reset", s.taskAction(s.doReset))
}

// errStatus maps store error kinds to HTTP status codes.
func errStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, store.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// --- Read handlers ---

func (s *Server) handleBoard(w http.ResponseWriter, _ *http.Request) {
	board, err := s.store.GetBoard()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	agents, err := s.store.Fleet()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if agents == nil {
		agents = []*store.Agent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"board":     board,
		"agents":    agents,
		"timestamp": time.Now().UnixMilli(),
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, _ *http.Request) {
	sum, err := s.store.GetSummary()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			limit = n
		}
	}
	entries, err := s.store.Feed(limit, r.URL.Query().Get("agent"))
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []*store.Activity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	result, err := s.store.Search(r.URL.Query().Get("q"))
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	t, err := s.store.Next(r.URL.Query().Get("agent"))
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": t})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.ListFilter{
		Status:     store.Status(q.Get("status")),
		Owner:      q.Get("owner"),
		IncludeAll: q.Get("all") == "true",
	}
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			filter.Limit = n
		}
	}
	tasks, err := s.store.ListTasks(filter)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if tasks == nil {
		tasks = []*store.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleTaskDetail(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	t, msgs, err := s.store.TaskDetail(id)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	var history []*store.Activity
	if t != nil {
		if history, err = s.store.TaskHistory(id); err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	if history == nil {
		history = []*store.Activity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"task":     t,
		"messages": msgs,
		"activity": history,
	})
}

func (s *Server) handleBlockers(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	blockers, err := s.store.Blockers(id)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if blockers == nil {
		blockers = []*store.Blocker{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"blockers": blockers})
}

// --- Mutation handlers ---

// actionRequest is the body accepted by the task action endpoints.
type actionRequest struct {
	Agent   string     `json:"agent"`
	Note    string     `json:"note,omitempty"`
	Reason  string     `json:"reason,omitempty"`
	Force   bool       `json:"force,omitempty"`
	Blocker int64      `json:"blocker,omitempty"`
	Meta    store.Meta `json:"meta,omitempty"`
}

type taskActionFunc func(id int64, req actionRequest) (*store.Task, error)

// taskAction adapts a lifecycle operation into an HTTP handler with
// uniform error mapping.
func (s *Server) taskAction(fn taskActionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		var req actionRequest
		if r.Body != nil {
			// An empty body is fine; the dashboard sends one for
			// parameterless actions.
			_ = json.NewDecoder(r.Body).Decode(&req)
		}
		if req.Agent == "" {
			req.Agent = "dashboard"
		}
		t, err := fn(id, req)
		if err != nil {
			writeJSON(w, errStatus(err), map[string]any{
				"success": false,
				"error":   err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "task": t})
	}
}

func (s *Server) doClaim(id int64, req actionRequest) (*store.Task, error) {
	return s.store.Claim(id, req.Agent, req.Force, req.Meta)
}

func (s *Server) doStart(id int64, req actionRequest) (*store.Task, error) {
	return s.store.Start(id, req.Agent, req.Meta)
}

func (s *Server) doReview(id int64, req actionRequest) (*store.Task, error) {
	return s.store.Review(id, req.Agent, req.Meta)
}

func (s *Server) doApprove(id int64, req actionRequest) (*store.Task, error) {
	t, _, err := s.store.Approve(id, req.Agent, req.Note, req.Meta)
	return t, err
}

func (s *Server) doReject(id int64, req actionRequest) (*store.Task, error) {
	return s.store.Reject(id, req.Agent, req.Reason, req.Meta)
}

func (s *Server) doComplete(id int64, req actionRequest) (*store.Task, error) {
	t, _, err := s.store.Complete(id, req.Agent, req.Note, req.Force, req.Meta)
	return t, err
}

func (s *Server) doCancel(id int64, req actionRequest) (*store.Task, error) {
	t, _, err := s.store.Cancel(id, req.Agent, req.Meta)
	return t, err
}

func (s *Server) doBlock(id int64, req actionRequest) (*store.Task, error) {
	return s.store.Block(id, req.Blocker, req.Agent, req.Meta)
}

func (s *Server) doReset(id int64, req actionRequest) (*store.Task, error) {
	return s.store.Reset(id, req.Agent, req.Force, req.Meta)
}

// createTaskRequest is the body accepted by POST /api/tasks.
type createTaskRequest struct {
	Subject     string     `json:"subject"`
	Description string     `json:"description,omitempty"`
	Priority    int        `json:"priority,omitempty"`
	ParentID    int64      `json:"parent_id,omitempty"`
	Assignee    string     `json:"assignee,omitempty"`
	CreatedBy   string     `json:"created_by,omitempty"`
	Meta        store.Meta `json:"meta,omitempty"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	t, err := s.store.AddTask(req.Subject, store.AddOptions{
		Description: req.Description,
		Priority:    req.Priority,
		ParentID:    req.ParentID,
		Assignee:    req.Assignee,
		CreatedBy:   req.CreatedBy,
		Meta:        req.Meta,
	})
	if err != nil {
		writeJSONError(w, errStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// pathID parses the {id} path segment, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid task id")
		return 0, false
	}
	return id, true
}
