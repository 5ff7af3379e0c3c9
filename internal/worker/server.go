package worker

import (
	"net/http"
	"strings"

	"github.com/hpcbench/fleet/internal/wire"
)

// Server is the thin HTTP adapter in front of a Supervisor and JobTable.
// It holds no business logic of its own: admission, job lifecycle and
// result collection all live in Supervisor, JobTable and the free
// functions in this package.
type Server struct {
	Supervisor *Supervisor
	Table      *JobTable
}

// Routes registers every handler on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/submit_competitive_benchmark", s.handleSubmitCompetitive)
	mux.HandleFunc("/submit_cooperative_benchmark", s.handleSubmitCooperative)
	mux.HandleFunc("/task_status/", s.handleTaskStatus)
	mux.HandleFunc("/get_results/", s.handleGetResults)
	mux.HandleFunc("/ping", s.handlePing)
	mux.Handle("/metrics", MetricsHandler())
}

func (s *Server) handleSubmitCompetitive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		wire.WriteError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req wire.SubmitCompetitiveRequest
	if err := decodeJSON(r, &req); err != nil {
		wire.WriteError(w, http.StatusBadRequest, "bad json")
		return
	}

	taskID, admitted, err := s.Supervisor.SubmitCompetitive(req)
	if err != nil {
		wire.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !admitted {
		wire.WriteError(w, http.StatusConflict, wire.ErrBusyMessage)
		return
	}
	_ = wire.WriteJSON(w, http.StatusOK, wire.SubmitResponse{TaskID: taskID})
}

func (s *Server) handleSubmitCooperative(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		wire.WriteError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req wire.SubmitCooperativeRequest
	if err := decodeJSON(r, &req); err != nil {
		wire.WriteError(w, http.StatusBadRequest, "bad json")
		return
	}

	taskID, admitted, err := s.Supervisor.SubmitCooperative(req)
	if err != nil {
		wire.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !admitted {
		wire.WriteError(w, http.StatusConflict, wire.ErrBusyMessage)
		return
	}
	_ = wire.WriteJSON(w, http.StatusOK, wire.SubmitResponse{TaskID: taskID})
}

func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID := strings.TrimPrefix(r.URL.Path, "/task_status/")
	job, ok := s.Table.Get(taskID)
	if !ok {
		wire.WriteError(w, http.StatusNotFound, "unknown task_id")
		return
	}
	_ = wire.WriteJSON(w, http.StatusOK, wire.TaskStatusResponse{TaskID: taskID, Status: job.Status()})
}

func (s *Server) handleGetResults(w http.ResponseWriter, r *http.Request) {
	taskID := strings.TrimPrefix(r.URL.Path, "/get_results/")
	job, ok := s.Table.Get(taskID)
	if !ok {
		wire.WriteError(w, http.StatusNotFound, "unknown task_id")
		return
	}
	if !job.Status().Terminal() {
		wire.WriteError(w, http.StatusNotFound, "task not yet terminal")
		return
	}

	envelope, err := collectArtifacts(taskID, job.ResultDir)
	if err != nil {
		wire.WriteError(w, http.StatusInternalServerError, "failed to read results")
		return
	}
	if len(envelope.Results) == 0 {
		wire.WriteError(w, http.StatusNotFound, "no artifacts for task_id")
		return
	}
	_ = wire.WriteJSON(w, http.StatusOK, envelope)
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	_ = wire.WriteJSON(w, http.StatusOK, wire.PingResponse{Message: "pong"})
}
