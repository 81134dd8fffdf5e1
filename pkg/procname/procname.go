// Package procname sets the process title workerman's master and
// worker processes show in ps/top, matching the naming scheme the
// controller and status table expect ("<name> master",
// "<listener-name> worker (<id>)"). No library in the dependency
// stack offers argv-rewriting process-title control, so this is one
// of the few stdlib-only corners of the codebase: true argv rewriting
// needs unsafe memory access this project avoids, so Set degrades to
// PR_SET_NAME, which only changes the short comm name (ps -o comm,
// /proc/<pid>/comm) rather than the full command line.
package procname

// Set applies title as the process's short name where the platform
// supports it. Best-effort; a failure is not fatal to workerman.
func Set(title string) {
	setProcessTitle(title)
}
