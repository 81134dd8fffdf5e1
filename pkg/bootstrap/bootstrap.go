// Package bootstrap is the child side of workerman's self-reexec fork
// model (see SPEC_FULL.md "FORK MODEL TRANSLATION"). cmd/workerman
// checks IsWorker before any cobra command dispatch; when true, Run
// reconstructs this process's Worker state from environment variables
// and inherited file descriptors set up by pkg/master's spawner, and
// never returns.
package bootstrap

import (
	"encoding/json"
	"os"
	"strconv"

	"github.com/cuemby/workerman/pkg/listener"
	"github.com/cuemby/workerman/pkg/log"
	"github.com/cuemby/workerman/pkg/rendezvous"
	"github.com/cuemby/workerman/pkg/types"
	"github.com/cuemby/workerman/pkg/worker"
)

const (
	envWorker       = "WORKERMAN_WORKER"
	envWorkerID     = "WORKERMAN_WORKER_ID"
	envWorkerHash   = "WORKERMAN_WORKER_HASH"
	envRestartCount = "WORKERMAN_WORKER_RESTART_COUNT"
	envListenerIdx  = "WORKERMAN_LISTENER_INDEX"
	envWorkingDir   = "WORKERMAN_WORKING_DIR"
	envListeners    = "WORKERMAN_LISTENERS"
)

// IsWorker reports whether this process was re-exec'd by the master
// to run as a worker.
func IsWorker() bool {
	return os.Getenv(envWorker) == "1"
}

// Env returns the environment variables pkg/master sets on a forked
// worker process, so the master package doesn't need to know these
// key names directly.
func Env(id int, hash string, restartCount, listenerIndex int, workingDir, listenersJSON string) []string {
	return []string{
		envWorker + "=1",
		envWorkerID + "=" + strconv.Itoa(id),
		envWorkerHash + "=" + hash,
		envRestartCount + "=" + strconv.Itoa(restartCount),
		envListenerIdx + "=" + strconv.Itoa(listenerIndex),
		envWorkingDir + "=" + workingDir,
		envListeners + "=" + listenersJSON,
	}
}

// Run reconstructs and executes this process's Worker. It blocks
// until the worker exits the process itself (hard stop, graceful
// stop, or an uncaught panic); it never returns control to the
// caller under normal operation.
func Run() {
	id, err := strconv.Atoi(os.Getenv(envWorkerID))
	if err != nil {
		log.Fatal("workerman worker: invalid " + envWorkerID)
	}
	hash := os.Getenv(envWorkerHash)
	restartCount, _ := strconv.Atoi(os.Getenv(envRestartCount))
	listenerIndex, err := strconv.Atoi(os.Getenv(envListenerIdx))
	if err != nil {
		log.Fatal("workerman worker: invalid " + envListenerIdx)
	}
	workingDir := os.Getenv(envWorkingDir)

	var registry []*types.ListenerConfig
	if err := json.Unmarshal([]byte(os.Getenv(envListeners)), &registry); err != nil {
		log.Fatal("workerman worker: invalid " + envListeners)
	}

	dir, err := rendezvous.New(workingDir)
	if err != nil {
		log.Fatal("workerman worker: cannot open working directory")
	}

	listeners := make([]*listener.Listener, len(registry))
	fdPos := 0
	for i, cfg := range registry {
		l := listener.New(cfg)
		if !cfg.ReusePort {
			f := os.NewFile(uintptr(3+fdPos), "listener-"+cfg.Name)
			fdPos++
			if f != nil {
				if err := l.AdoptFile(f); err != nil {
					log.Errorf("workerman worker: adopt listener fd", err)
				}
			}
		}
		listeners[i] = l
	}

	if listenerIndex < 0 || listenerIndex >= len(listeners) {
		log.Fatal("workerman worker: listener index out of range")
	}

	var competing []*listener.Listener
	for i, l := range listeners {
		if i != listenerIndex {
			competing = append(competing, l)
		}
	}

	w := worker.New(worker.Config{
		ID:         id,
		Hash:       hash,
		Listener:   listeners[listenerIndex],
		Competing:  competing,
		RestartCnt: restartCount,
		Dir:        dir,
	})
	w.Run()
}
