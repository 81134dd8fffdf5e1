package rendezvous

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/cuemby/workerman/pkg/werrors"
)

// WritePID atomically writes pid as decimal text to name (used for
// process.pid).
func (d *Dir) WritePID(name string, pid int) error {
	return d.WriteBytes(name, []byte(strconv.Itoa(pid)))
}

func parsePID(data []byte) (int, error) {
	s := strings.TrimSpace(string(bytes.TrimSpace(data)))
	pid, err := strconv.Atoi(s)
	if err != nil {
		return 0, &werrors.FileIOError{Path: "", Op: "parse-pid", Cause: err}
	}
	return pid, nil
}
