package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/workerman/pkg/types"
	"github.com/cuemby/workerman/pkg/werrors"
)

const sample = `
name: echo
working_directory: ./run
std_error_path: ./run/stderr.log
listeners:
  - name: echo
    transport: tcp
    address: 127.0.0.1:8080
    protocol: frame
    worker_count: 4
    reuse_port: false
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workerman.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	return path
}

func TestLoadParsesTopLevelFields(t *testing.T) {
	f, err := Load(writeSample(t))
	require.NoError(t, err)

	assert.Equal(t, "echo", f.Name)
	assert.Equal(t, "./run", f.WorkingDirectory)
	assert.Equal(t, "./run/stderr.log", f.StdErrorPath)
	require.Len(t, f.Listeners, 1)
	assert.Equal(t, "127.0.0.1:8080", f.Listeners[0].Address)
}

func TestListenerConfigsTranslatesSpecs(t *testing.T) {
	f, err := Load(writeSample(t))
	require.NoError(t, err)

	cfgs := f.ListenerConfigs()
	require.Len(t, cfgs, 1)
	assert.Equal(t, "echo", cfgs[0].Name)
	assert.Equal(t, types.TransportTCP, cfgs[0].Transport)
	assert.Equal(t, types.ProtocolFrame, cfgs[0].Protocol)
	assert.Equal(t, 4, cfgs[0].WorkerCount)
	assert.False(t, cfgs[0].ReusePort)
}

func TestListenerConfigsDefaultsWorkerCountToOne(t *testing.T) {
	f := &File{Listeners: []ListenerSpec{{Name: "x", Transport: "tcp", Address: "127.0.0.1:0"}}}
	cfgs := f.ListenerConfigs()
	assert.Equal(t, 1, cfgs[0].WorkerCount)
}

func TestLoadReturnsFileIOErrorWhenMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
	var fe *werrors.FileIOError
	assert.ErrorAs(t, err, &fe)
}
