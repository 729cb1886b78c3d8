package options

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/util/validation/field"
	"mesbridge/pkg/runtime"
	"mesbridge/pkg/storage"
)

func opcOptions() *Options {
	o := NewDefaultOptions()
	o.Protocol = string(runtime.ProtocolOpcUa)
	o.Opc.Endpoint = "opc.tcp://10.0.0.1:4840"
	o.Mes.URL = "http://mes.local/ws"
	o.Mes.SoapAction = "saveData"
	return o
}

func fields(errs field.ErrorList) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Field)
	}
	return out
}

func TestDefaults(t *testing.T) {
	o := NewDefaultOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	o.AddFlags(fs)
	require.NoError(t, fs.Parse([]string{"--protocol=secsGem", "--secs.host=10.0.0.2", "--secs.session-id=3", "--mqtt.topic=eq"}))

	assert.Equal(t, "32200", o.Port)
	assert.Equal(t, "./configuration", o.DeviceConfigDir)
	assert.Equal(t, "secsGem", o.Protocol)
	assert.Equal(t, uint16(3), o.Secs.SessionID)
	assert.True(t, o.Secs.Active)
	assert.Equal(t, "eq", o.Mqtt.Topic)
	assert.Equal(t, "none", o.EventSink)
}

func TestValidateOpc(t *testing.T) {
	assert.Empty(t, opcOptions().validate())

	o := opcOptions()
	o.Opc.Endpoint = "http://wrong"
	o.Opc.UseAuth = true
	o.Mes.URL = ""
	o.EventSink = "kafka"
	assert.ElementsMatch(t, []string{"opc.endpoint", "opc.username", "mes.url", "event-sink"}, fields(o.validate()))
}

func TestValidateSecs(t *testing.T) {
	o := NewDefaultOptions()
	o.Protocol = string(runtime.ProtocolSecsGem)
	o.EventSink = "mqtt"
	assert.ElementsMatch(t, []string{"secs.host", "main-device-config", "mqtt.broker"}, fields(o.validate()))

	o = NewDefaultOptions()
	assert.Equal(t, []string{"protocol"}, fields(o.validate()))
}

func TestConfigRejectsDuplicateDeviceNames(t *testing.T) {
	o := opcOptions()
	o.DeviceConfigDir = t.TempDir()
	dir := filepath.Join(o.DeviceConfigDir, storage.Devices)
	require.NoError(t, os.MkdirAll(dir, 0711))
	doc := []byte(`{"deviceInfo":{"manufacture":"JC","ip":"10.0.0.1","deviceName":"EQ-1"},"signals":[{"id":"s1"}],"tags":[]}`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), doc, 0640))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.json"), doc, 0640))

	_, err := o.Config(context.Background())
	assert.Error(t, err)
}

func TestConfigSecs(t *testing.T) {
	o := NewDefaultOptions()
	o.Protocol = string(runtime.ProtocolSecsGem)
	o.DeviceConfigDir = t.TempDir()
	o.Secs.Host = "127.0.0.1"
	o.MainDeviceConfig = filepath.Join(o.DeviceConfigDir, "main.json")
	require.NoError(t, os.WriteFile(o.MainDeviceConfig,
		[]byte(`{"deviceInfo":{"manufacture":"HongTaiYang","ip":"127.0.0.1","deviceName":"EQ-S"},"tags":[{"id":"1","dataType":"U2"}]}`), 0640))

	c, err := o.Config(context.Background())
	require.NoError(t, err)
	assert.Nil(t, c.CollectorMgr.Acquisition())
	assert.Equal(t, 1, c.CollectorMgr.Status().Devices)
	require.NoError(t, c.CollectorMgr.Shutdown(context.Background()))
}
