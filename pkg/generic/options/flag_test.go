package options

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testOptions struct {
	BaseOptions `json:",inline"`
	Endpoint    string `json:"endpoint"`
	Port        int    `json:"port"`
}

func (o *testOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Endpoint, "endpoint", o.Endpoint, "")
	fs.IntVar(&o.Port, "port", o.Port, "")
}

func TestParseAndApplyConfigFileFlagsWin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("endpoint: opc.tcp://plc:4840\nport: 9000\nLogging:\n  verbosity: 4\n"), 0o644))

	o := &testOptions{BaseOptions: NewDefaultBaseOptions(), Port: 8080}
	o.ConfigFile = path
	require.NoError(t, ParseAndApplyConfigFile(o, []string{"--port=9100"}))

	assert.Equal(t, "opc.tcp://plc:4840", o.Endpoint)
	assert.Equal(t, 9100, o.Port)
	assert.EqualValues(t, 4, o.Logging.Verbosity)
	assert.Equal(t, "text", o.Logging.Format)
}

func TestParseAndApplyConfigFileMissing(t *testing.T) {
	o := &testOptions{BaseOptions: NewDefaultBaseOptions()}
	require.NoError(t, ParseAndApplyConfigFile(o, nil))

	o.ConfigFile = filepath.Join(t.TempDir(), "absent.yaml")
	assert.Error(t, ParseAndApplyConfigFile(o, nil))
}
