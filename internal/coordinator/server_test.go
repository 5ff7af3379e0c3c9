package coordinator

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hpcbench/fleet/internal/sshkeys"
	"github.com/hpcbench/fleet/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	keys, err := sshkeys.Generate("test@coordinator")
	require.NoError(t, err)
	reg := NewRegistry()
	return &Server{
		Registry:   reg,
		Dispatcher: NewDispatcher(reg, t.TempDir()),
		Keys:       keys,
	}
}

func TestHandleRegisterUsesObservedRemoteAddr(t *testing.T) {
	s := newTestServer(t)
	mux := http.NewServeMux()
	s.Routes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	body, _ := json.Marshal(wire.RegisterRequest{Port: 5000, Hostname: "node-a", CPUCount: 4})
	resp, err := http.Post(srv.URL+"/register", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var info wire.WorkerInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, "node-a", info.Hostname)
	assert.Equal(t, 1, s.Registry.Len())
	assert.Equal(t, hostOf(t, srv.URL), s.Registry.List()[0].IP)
}

func TestHandlePingReturnsPong(t *testing.T) {
	s := newTestServer(t)
	mux := http.NewServeMux()
	s.Routes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ping")
	require.NoError(t, err)
	defer resp.Body.Close()

	var pong wire.PingResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pong))
	assert.Equal(t, "pong", pong.Message)
}

func TestHandleGetSSHPublicKeyReturnsMintedKey(t *testing.T) {
	s := newTestServer(t)
	mux := http.NewServeMux()
	s.Routes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/get_ssh_public_key")
	require.NoError(t, err)
	defer resp.Body.Close()

	var pub string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pub))
	assert.Equal(t, s.Keys.PublicKeyLine, pub)
}
