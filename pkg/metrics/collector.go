package metrics

import (
	"fmt"

	"github.com/cuemby/workerman/pkg/types"
)

// SampleStatus updates the gauges from a freshly collected set of
// status rows (master row plus every worker row), the way the
// controller's status command gathers them.
func SampleStatus(rows []types.StatusRow) {
	workers := 0
	for _, row := range rows {
		if row.ID == "M" {
			continue
		}
		workers++
		ConnectionsTotal.WithLabelValues(row.ID).Set(parseActive(row.Connections))
	}
	WorkersTotal.Set(float64(workers))
}

func parseActive(connections string) float64 {
	var active, total int
	if _, err := fmt.Sscanf(connections, "%d/%d", &active, &total); err != nil {
		return 0
	}
	return float64(active)
}
