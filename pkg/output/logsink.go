package output

import "github.com/cuemby/workerman/pkg/log"

// LogSink routes events through pkg/log's global logger instead of a
// terminal. It is the natural post-daemonize sink: once the master has
// detached, stdout/stderr are no longer attached to an operator, but
// the configured stderr log file still is.
type LogSink struct{}

func (LogSink) Error(msg string)   { log.Error(msg) }
func (LogSink) Warning(msg string) { log.Warn(msg) }
func (LogSink) Info(msg string)    { log.Info(msg) }
func (LogSink) Debug(msg string)   { log.Debug(msg) }
func (LogSink) Success(msg string) { log.Info(msg) }
func (LogSink) Exception(err error) {
	log.Errorf("unhandled exception", err)
}
func (LogSink) ProgressBar(total, start int) Bar { return noopBar{} }
