// Package coordinator implements the control-plane process: the node
// registry, the two dispatch disciplines, SSH key distribution, and the
// thin HTTP adapter that exposes them.
package coordinator

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/hpcbench/fleet/internal/obslog"
	"github.com/hpcbench/fleet/internal/sshkeys"
	"github.com/hpcbench/fleet/internal/wire"
)

// Server is the HTTP adapter in front of a Registry, a Dispatcher and the
// coordinator's SSH key pair. It holds no business logic of its own beyond
// translating requests into calls on those collaborators — the dispatch
// and registry packages are independently testable without an HTTP layer.
type Server struct {
	Registry   *Registry
	Dispatcher *Dispatcher
	Keys       sshkeys.KeyPair
}

// Routes registers every handler on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/register", s.handleRegister)
	mux.HandleFunc("/get_ssh_public_key", s.handleGetSSHPublicKey)
	mux.HandleFunc("/get_ssh_private_key", s.handleGetSSHPrivateKey)
	mux.HandleFunc("/ping", s.handlePing)
	mux.HandleFunc("/nodes", s.handleListNodes)
	mux.HandleFunc("/dispatch/competitive", s.handleDispatchCompetitive)
	mux.HandleFunc("/dispatch/cooperative", s.handleDispatchCooperative)
	mux.Handle("/metrics", MetricsHandler())
}

// handleDispatchCompetitive is the HTTP surface cmd/benchctl drives as its
// "thin driver of the coordinator API" — the dispatch session itself still
// runs entirely in-process via Dispatcher, this just exposes it to a
// separate CLI binary instead of an embedded menu.
func (s *Server) handleDispatchCompetitive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		wire.WriteError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var req wire.SubmitCompetitiveRequest
	if err := decodeJSON(r, &req); err != nil {
		wire.WriteError(w, http.StatusBadRequest, "bad json")
		return
	}
	sess, err := s.Dispatcher.DispatchCompetitive(r.Context(), req)
	if err != nil {
		wire.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	_ = wire.WriteJSON(w, http.StatusOK, sessionSummary(sess))
}

func (s *Server) handleDispatchCooperative(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		wire.WriteError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	var req CooperativeRequest
	if err := decodeJSON(r, &req); err != nil {
		wire.WriteError(w, http.StatusBadRequest, "bad json")
		return
	}
	sess, err := s.Dispatcher.DispatchCooperative(r.Context(), req)
	if err != nil {
		wire.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	_ = wire.WriteJSON(w, http.StatusOK, sessionSummary(sess))
}

type dispatchResult struct {
	ResultRoot string            `json:"result_root"`
	Kind       SessionKind       `json:"kind"`
	Outcomes   map[string]string `json:"outcomes"`
}

func sessionSummary(sess *Session) dispatchResult {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	outcomes := make(map[string]string, len(sess.outcomes))
	for ip, o := range sess.outcomes {
		outcomes[ip] = string(o)
	}
	return dispatchResult{ResultRoot: sess.ResultRoot, Kind: sess.Kind, Outcomes: outcomes}
}

// handleRegister records the worker at the request's observed remote IP;
// the IP is never taken from the request body.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		wire.WriteError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req wire.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		wire.WriteError(w, http.StatusBadRequest, "bad json")
		return
	}

	ip, err := remoteIP(r)
	if err != nil {
		wire.WriteError(w, http.StatusBadRequest, "could not determine remote address")
		return
	}

	node := s.Registry.Register(ip, req)
	obslog.WithComponent("coordinator").Info().
		Str("ip", ip).Int("port", req.Port).Str("hostname", req.Hostname).
		Msg("worker registered")

	_ = wire.WriteJSON(w, http.StatusOK, node.Info)
}

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	nodes := s.Registry.List()
	infos := make([]wire.WorkerInfo, 0, len(nodes))
	for _, n := range nodes {
		infos = append(infos, n.Info)
	}
	_ = wire.WriteJSON(w, http.StatusOK, infos)
}

func (s *Server) handleGetSSHPublicKey(w http.ResponseWriter, r *http.Request) {
	_ = wire.WriteJSON(w, http.StatusOK, s.Keys.PublicKeyLine)
}

func (s *Server) handleGetSSHPrivateKey(w http.ResponseWriter, r *http.Request) {
	_ = wire.WriteJSON(w, http.StatusOK, s.Keys.PrivateKeyPEM)
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	_ = wire.WriteJSON(w, http.StatusOK, wire.PingResponse{Message: "pong"})
}

// remoteIP extracts the host part of r.RemoteAddr, falling back to the raw
// value if it carries no port (as happens with some test transports).
func remoteIP(r *http.Request) (string, error) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr, nil
	}
	return host, nil
}

func decodeJSON(r *http.Request, out any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(out)
}
