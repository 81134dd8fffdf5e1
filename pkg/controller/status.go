package controller

import (
	"context"
	"fmt"
	"syscall"

	"github.com/cuemby/workerman/pkg/rendezvous"
	"github.com/cuemby/workerman/pkg/types"
	"github.com/cuemby/workerman/pkg/werrors"
)

// statusColumns describes the Status row schema for `status -i`: shown
// instead of contacting a live master.
var statusColumns = []struct {
	column, meaning string
}{
	{"id", `decimal worker id, or "M" for the master`},
	{"listen", "listener address this row reports on, or N/A for the master"},
	{"name", "process display name"},
	{"memory", "current resident memory, MB with two decimals"},
	{"peak_memory", "peak resident memory, MB with two decimals"},
	{"start_time", "(<restart_count>) <uptime since last start>"},
	{"connections", "<active>/<total> connections accepted"},
	{"timers", "event-loop timer count; always reported as 0, timers are not counted"},
}

// Status reports on a live master and its workers. When info is true
// it instead prints the column legend without touching process.pid or
// sending any signal.
func (c *Controller) Status(info bool) ([]types.StatusRow, error) {
	if info {
		c.printColumnLegend()
		return nil, nil
	}

	pid, err := c.readMasterPIDOr(werrors.NewLifecycleError("Cannot collect worker status, workerman is not running."))
	if err != nil {
		return nil, err
	}

	c.dir.Delete(rendezvous.StatusFile)
	if err := c.signal(pid, syscall.SIGIOT); err != nil {
		return nil, err
	}

	ctx := context.Background()
	if err := c.dir.WaitForCreate(ctx, rendezvous.StatusFile); err != nil {
		return nil, err
	}
	var hashes []string
	if err := c.dir.ReadJSON(rendezvous.StatusFile, &hashes); err != nil {
		return nil, err
	}

	rows := make([]types.StatusRow, 0, len(hashes))
	for _, h := range hashes {
		if err := c.dir.WaitForCreate(ctx, h); err != nil {
			return nil, err
		}
		var row types.StatusRow
		if err := c.dir.ReadJSON(h, &row); err != nil {
			return nil, err
		}
		rows = append(rows, row)
		c.dir.Delete(h)
	}
	c.dir.Delete(rendezvous.StatusFile)

	return rows, nil
}

func (c *Controller) printColumnLegend() {
	for _, col := range statusColumns {
		c.out.Info(fmt.Sprintf("%-12s %s", col.column, col.meaning))
	}
}
