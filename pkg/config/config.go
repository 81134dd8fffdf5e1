// Package config loads workerman.yaml, the on-disk counterpart to the
// facade's programmatic Config: a listener set, working directory,
// process name, and stderr destination.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/workerman/pkg/types"
	"github.com/cuemby/workerman/pkg/werrors"
)

// ListenerSpec is one entry of the listeners: list in workerman.yaml.
type ListenerSpec struct {
	Name        string `yaml:"name"`
	Transport   string `yaml:"transport"`
	Address     string `yaml:"address"`
	Protocol    string `yaml:"protocol"`
	WorkerCount int    `yaml:"worker_count"`
	ReusePort   bool   `yaml:"reuse_port"`
	Backlog     int    `yaml:"backlog"`
}

// File is the parsed shape of workerman.yaml.
type File struct {
	Name             string         `yaml:"name"`
	WorkingDirectory string         `yaml:"working_directory"`
	StdErrorPath     string         `yaml:"std_error_path"`
	MetricsAddr      string         `yaml:"metrics_addr"`
	Listeners        []ListenerSpec `yaml:"listeners"`
}

// Load reads and parses path into a File.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &werrors.FileIOError{Path: path, Op: "read", Cause: err}
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, &werrors.FileIOError{Path: path, Op: "parse", Cause: err}
	}
	return &f, nil
}

// ListenerConfigs translates the YAML listener specs into the
// process-global registry type pkg/listener and pkg/master operate on.
func (f *File) ListenerConfigs() []*types.ListenerConfig {
	cfgs := make([]*types.ListenerConfig, len(f.Listeners))
	for i, spec := range f.Listeners {
		workerCount := spec.WorkerCount
		if workerCount <= 0 {
			workerCount = 1
		}
		cfgs[i] = &types.ListenerConfig{
			Name:        spec.Name,
			Transport:   types.Transport(spec.Transport),
			Address:     spec.Address,
			Protocol:    types.ProtocolTag(spec.Protocol),
			WorkerCount: workerCount,
			ReusePort:   spec.ReusePort,
			Backlog:     spec.Backlog,
		}
	}
	return cfgs
}
