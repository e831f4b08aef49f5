package httptransport_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/next-trace/scg-stream-verifier/contract/discovery"
	serr "github.com/next-trace/scg-stream-verifier/contract/errors"
	"github.com/next-trace/scg-stream-verifier/discovery/httptransport"
)

// registry is a minimal in-memory registry server.
type registry struct {
	mu         sync.Mutex
	apps       map[string]map[string]discovery.InstanceInfo
	heartbeats []string
}

func newRegistry(t *testing.T) (*registry, *httptest.Server) {
	t.Helper()

	r := &registry{apps: map[string]map[string]discovery.InstanceInfo{}}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /eureka/apps/{app}", func(w http.ResponseWriter, req *http.Request) {
		var doc struct {
			Instance discovery.InstanceInfo `json:"instance"`
		}
		if err := json.NewDecoder(req.Body).Decode(&doc); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		r.mu.Lock()
		app := req.PathValue("app")
		if r.apps[app] == nil {
			r.apps[app] = map[string]discovery.InstanceInfo{}
		}
		r.apps[app][doc.Instance.InstanceID] = doc.Instance
		r.mu.Unlock()

		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("PUT /eureka/apps/{app}/{id}", func(w http.ResponseWriter, req *http.Request) {
		r.mu.Lock()
		defer r.mu.Unlock()

		if _, ok := r.apps[req.PathValue("app")][req.PathValue("id")]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		r.heartbeats = append(r.heartbeats, req.URL.Query().Get("status"))
	})

	mux.HandleFunc("DELETE /eureka/apps/{app}/{id}", func(w http.ResponseWriter, req *http.Request) {
		r.mu.Lock()
		defer r.mu.Unlock()

		delete(r.apps[req.PathValue("app")], req.PathValue("id"))
	})

	mux.HandleFunc("GET /eureka/apps/{app}", func(w http.ResponseWriter, req *http.Request) {
		r.mu.Lock()
		defer r.mu.Unlock()

		name := req.PathValue("app")
		insts, ok := r.apps[name]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		app := discovery.Application{Name: name}
		for _, in := range insts {
			app.Instances = append(app.Instances, in)
		}

		_ = json.NewEncoder(w).Encode(map[string]any{"application": app})
	})

	mux.HandleFunc("GET /eureka/apps", func(w http.ResponseWriter, _ *http.Request) {
		r.mu.Lock()
		defer r.mu.Unlock()

		var apps []discovery.Application
		for name, insts := range r.apps {
			app := discovery.Application{Name: name}
			for _, in := range insts {
				app.Instances = append(app.Instances, in)
			}
			apps = append(apps, app)
		}

		_ = json.NewEncoder(w).Encode(map[string]any{"applications": map[string]any{"application": apps}})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return r, srv
}

func TestClient_Lifecycle(t *testing.T) {
	reg, srv := newRegistry(t)

	rc, err := httptransport.NewFactories().NewRegistryClient(srv.URL + "/eureka/")
	require.NoError(t, err)
	t.Cleanup(rc.Close)

	info, err := rc.Register(t.Context(), discovery.InstanceInfo{App: "orders", Port: 8080})
	require.NoError(t, err)

	_, err = uuid.Parse(info.InstanceID)
	require.NoError(t, err, "generated instance id should be a uuid")
	assert.Equal(t, discovery.StatusUp, info.Status)
	assert.False(t, info.LastUpdated.IsZero())

	require.NoError(t, rc.SendHeartBeat(t.Context(), "orders", info.InstanceID, discovery.StatusUp))
	assert.Equal(t, []string{"UP"}, reg.heartbeats)

	app, err := rc.GetApplication(t.Context(), "orders")
	require.NoError(t, err)
	assert.Equal(t, "ORDERS", app.Name)
	require.Len(t, app.Instances, 1)
	assert.Equal(t, info.InstanceID, app.Instances[0].InstanceID)

	apps, err := rc.GetApplications(t.Context())
	require.NoError(t, err)
	assert.Len(t, apps, 1)

	require.NoError(t, rc.Cancel(t.Context(), "orders", info.InstanceID))

	err = rc.SendHeartBeat(t.Context(), "orders", info.InstanceID, discovery.StatusUp)
	require.ErrorIs(t, err, serr.ErrRegistryRequestFailed)

	var se *httptransport.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
}

func TestClient_KeepsGivenInstanceID(t *testing.T) {
	_, srv := newRegistry(t)

	rc, err := httptransport.NewFactories().NewRegistryClient(srv.URL + "/eureka")
	require.NoError(t, err)

	info, err := rc.Register(t.Context(), discovery.InstanceInfo{InstanceID: "host:orders:1", App: "orders"})
	require.NoError(t, err)
	assert.Equal(t, "host:orders:1", info.InstanceID)
}

func TestClient_UnknownApplication(t *testing.T) {
	_, srv := newRegistry(t)

	rc, err := httptransport.NewFactories().NewRegistryClient(srv.URL + "/eureka")
	require.NoError(t, err)

	_, err = rc.GetApplication(t.Context(), "missing")
	assert.ErrorIs(t, err, serr.ErrRegistryRequestFailed)
}

func TestClient_Unreachable(t *testing.T) {
	_, srv := newRegistry(t)
	base := srv.URL
	srv.Close()

	rc, err := httptransport.NewFactories().NewRegistryClient(base)
	require.NoError(t, err)

	_, err = rc.GetApplications(t.Context())
	assert.ErrorIs(t, err, serr.ErrRegistryRequestFailed)
}

func TestFactories_BadURL(t *testing.T) {
	_, err := httptransport.NewFactories().NewRegistryClient("not a url")
	assert.ErrorIs(t, err, serr.ErrTransportNotConfigured)
}

func TestNewHTTPClient_AppliesConfig(t *testing.T) {
	cfg := httptransport.DefaultClientConfig()
	hc := httptransport.NewHTTPClient(cfg)

	assert.Equal(t, cfg.Timeout, hc.Timeout)

	tr, ok := hc.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, cfg.MaxIdleConnsPerHost, tr.MaxIdleConnsPerHost)
	assert.Equal(t, cfg.MinTLSVersion, tr.TLSClientConfig.MinVersion)
}
