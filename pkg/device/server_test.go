package device

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"mesbridge/pkg/generic"
	"mesbridge/pkg/runtime"
	"mesbridge/pkg/storage"
	v1 "mesbridge/pkg/v1"
)

type stubAcquisition struct {
	mu      sync.Mutex
	changed int
	running map[string]uint
	starts  int
}

func newStubAcquisition() *stubAcquisition {
	return &stubAcquisition{running: map[string]uint{}}
}

func (s *stubAcquisition) DevicesChanged() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changed++
}

func (s *stubAcquisition) StartAccessor(d *runtime.Device) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.running[d.Info.DeviceName]; ok {
		return false
	}
	s.starts++
	s.running[d.Info.DeviceName] = uint(d.GetSamplingRate().Milliseconds())
	return true
}

func (s *stubAcquisition) StopAccessor(_ context.Context, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[name]
	delete(s.running, name)
	return ok
}

func (s *stubAcquisition) AccessorRunning(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[name]
	return ok
}

const createBody = `{
  "samplingRateMs": 500,
  "deviceInfo": {"manufacture": "JC", "ip": "10.0.0.7", "workshop": "2", "deviceName": "EQ-7"},
  "signals": [{"id": "ns=2;s=EQ-7.Trigger", "name": "trigger"}],
  "tags": [{"id": "ns=2;s=EQ-7.Temp", "name": "temp"}]
}`

func setup(t *testing.T, protocol runtime.Protocol) (*gin.Engine, *Manager, *stubAcquisition, *generic.Store) {
	gin.SetMode(gin.TestMode)
	client, err := storage.NewFsClient(t.TempDir(), storage.Devices)
	require.NoError(t, err)
	store := generic.NewStore(client, storage.Devices)
	acq := newStubAcquisition()

	opts := []Option{WithStore(store)}
	if protocol == runtime.ProtocolOpcUa {
		opts = append(opts, WithAcquisition(acq))
	}
	mgr := NewManager(protocol, NewRegistry(), opts...)
	r := gin.New()
	InstallHandler(r.Group("/api/v1"), mgr)
	return r, mgr, acq, store
}

func do(r http.Handler, method, path, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if len(contentType) > 0 {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateGetDeleteDevice(t *testing.T) {
	r, mgr, acq, store := setup(t, runtime.ProtocolOpcUa)

	w := do(r, http.MethodPost, "/api/v1/devices", "application/json", createBody)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("ETag"))
	assert.Equal(t, 1, mgr.Registry().Len())
	assert.Equal(t, 1, acq.changed)

	stored, err := store.LoadDevices()
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, uint(500), stored[0].SamplingRateMs)

	w = do(r, http.MethodPost, "/api/v1/devices", "application/json", createBody)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(r, http.MethodGet, "/api/v1/devices/EQ-7", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		Name       string        `json:"name"`
		DeviceInfo v1.DeviceInfo `json:"deviceInfo"`
		Accessing  bool          `json:"accessing"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "EQ-7", got.Name)
	assert.Equal(t, v1.Manufacture("JC"), got.DeviceInfo.Manufacture)
	assert.False(t, got.Accessing)

	w = do(r, http.MethodDelete, "/api/v1/devices/EQ-7", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, mgr.Registry().Len())
	assert.Equal(t, 2, acq.changed)
	stored, err = store.LoadDevices()
	require.NoError(t, err)
	assert.Empty(t, stored)

	w = do(r, http.MethodGet, "/api/v1/devices/EQ-7", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateDeviceValidation(t *testing.T) {
	r, _, _, _ := setup(t, runtime.ProtocolOpcUa)

	w := do(r, http.MethodPost, "/api/v1/devices", "application/json", `{"deviceInfo":{"manufacture":"JC"}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// a SECS manufacturer cannot join an OPC bridge
	body := strings.Replace(createBody, `"JC"`, `"HongTaiYang"`, 1)
	w = do(r, http.MethodPost, "/api/v1/devices", "application/json", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body = strings.Replace(createBody, `"signals": [{"id": "ns=2;s=EQ-7.Trigger", "name": "trigger"}],`, "", 1)
	w = do(r, http.MethodPost, "/api/v1/devices", "application/json", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSecsModeIsReadOnly(t *testing.T) {
	r, mgr, _, _ := setup(t, runtime.ProtocolSecsGem)
	require.NoError(t, mgr.LoadDevices([]*v1.Device{{
		DeviceInfo: &v1.DeviceInfo{Manufacture: "HongTaiYang", IP: "10.0.0.8", DeviceName: "EQ-8"},
		Tags:       []*v1.Tag{{ID: "1", DataType: "U2"}},
	}}))

	w := do(r, http.MethodPost, "/api/v1/devices", "application/json", createBody)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	w = do(r, http.MethodDelete, "/api/v1/devices/EQ-8", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	w = do(r, http.MethodPut, "/api/v1/devices/EQ-8/start", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)

	w = do(r, http.MethodGet, "/api/v1/devices", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "EQ-8")
}

func TestPatchDevice(t *testing.T) {
	r, mgr, acq, store := setup(t, runtime.ProtocolOpcUa)
	require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/api/v1/devices", "application/json", createBody).Code)
	require.Equal(t, http.StatusAccepted, do(r, http.MethodPut, "/api/v1/devices/EQ-7/start", "", "").Code)

	w := do(r, http.MethodPatch, "/api/v1/devices/EQ-7", "application/merge-patch+json", `{"samplingRateMs": 200}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	d, err := mgr.GetDevice("EQ-7")
	require.NoError(t, err)
	assert.Equal(t, uint(200), d.SamplingRateMs)
	assert.Equal(t, uint(200), acq.running["EQ-7"])
	assert.Equal(t, 2, acq.starts)

	stored, err := store.LoadDevices()
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, uint(200), stored[0].SamplingRateMs)

	w = do(r, http.MethodPatch, "/api/v1/devices/EQ-7", "application/json-patch+json",
		`[{"op":"replace","path":"/deviceInfo/ip","value":"10.0.0.99"}]`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "deviceInfo")

	w = do(r, http.MethodPatch, "/api/v1/devices/EQ-7", "application/merge-patch+json", `{"tags": []}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPatch, "/api/v1/devices/EQ-7", "text/plain", `{}`)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/devices/EQ-7", strings.NewReader(`{"samplingRateMs": 300}`))
	req.Header.Set("Content-Type", "application/merge-patch+json")
	req.Header.Set("If-Match", "stale")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
}

func TestSwitchDeviceStatus(t *testing.T) {
	r, _, acq, _ := setup(t, runtime.ProtocolOpcUa)
	require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/api/v1/devices", "application/json", createBody).Code)

	assert.Equal(t, http.StatusAccepted, do(r, http.MethodPut, "/api/v1/devices/EQ-7/start", "", "").Code)
	assert.True(t, acq.AccessorRunning("EQ-7"))
	assert.Equal(t, http.StatusConflict, do(r, http.MethodPut, "/api/v1/devices/EQ-7/start", "", "").Code)
	assert.Equal(t, http.StatusAccepted, do(r, http.MethodPut, "/api/v1/devices/EQ-7/stop", "", "").Code)
	assert.Equal(t, http.StatusConflict, do(r, http.MethodPut, "/api/v1/devices/EQ-7/stop", "", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPut, "/api/v1/devices/EQ-7/restart", "", "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPut, "/api/v1/devices/EQ-0/start", "", "").Code)
}

func TestListDevicesFilter(t *testing.T) {
	r, mgr, _, _ := setup(t, runtime.ProtocolOpcUa)
	require.NoError(t, mgr.LoadDevices([]*v1.Device{
		{DeviceInfo: &v1.DeviceInfo{Manufacture: "JC", IP: "10.0.0.1", DeviceName: "LAM-01"}},
		{DeviceInfo: &v1.DeviceInfo{Manufacture: "SC", IP: "10.0.0.2", DeviceName: "LAM-02"}},
		{DeviceInfo: &v1.DeviceInfo{Manufacture: "SC", IP: "10.0.0.3", DeviceName: "CVD-01"}},
	}))

	w := do(r, http.MethodGet, "/api/v1/devices?filter="+url.QueryEscape(`{"name":{"startsWith":"LAM"}}`), "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Devices []struct {
			Name string `json:"name"`
		} `json:"devices"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Devices, 2)
	assert.Equal(t, "LAM-01", body.Devices[0].Name)
	assert.Equal(t, "LAM-02", body.Devices[1].Name)

	w = do(r, http.MethodGet, "/api/v1/devices?filter="+url.QueryEscape(`{"manufacture":"SC"}`), "", "")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Devices, 2)

	w = do(r, http.MethodGet, "/api/v1/devices?filter="+url.QueryEscape(`{bad`), "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChangedImmutable(t *testing.T) {
	base := func() *v1.Device {
		return &v1.Device{
			SamplingRateMs: 100,
			DeviceInfo:     &v1.DeviceInfo{Manufacture: "JC", IP: "10.0.0.1", DeviceName: "EQ"},
			Signals:        []*v1.Tag{{ID: "s1"}, {ID: "s2"}},
			Tags:           []*v1.Tag{{ID: "t1", Value: "1"}, {ID: "t2"}},
		}
	}

	patched := base()
	patched.SamplingRateMs = 900
	patched.Tags[0].Value = "2"
	patched.Signals = []*v1.Tag{{ID: "s2"}, {ID: "s1"}}
	assert.Empty(t, changedImmutable(base(), patched))

	patched = base()
	patched.DeviceInfo.Line = "L2"
	assert.Equal(t, "deviceInfo", changedImmutable(base(), patched))

	patched = base()
	patched.Tags[0], patched.Tags[1] = patched.Tags[1], patched.Tags[0]
	assert.Equal(t, "tags", changedImmutable(base(), patched))

	patched = base()
	patched.Signals = patched.Signals[:1]
	assert.Equal(t, "signals", changedImmutable(base(), patched))
}
