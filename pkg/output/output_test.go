package output

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingSink struct {
	calls []string
}

func (r *recordingSink) Error(msg string)    { r.calls = append(r.calls, "error:"+msg) }
func (r *recordingSink) Warning(msg string)  { r.calls = append(r.calls, "warning:"+msg) }
func (r *recordingSink) Info(msg string)     { r.calls = append(r.calls, "info:"+msg) }
func (r *recordingSink) Debug(msg string)    { r.calls = append(r.calls, "debug:"+msg) }
func (r *recordingSink) Success(msg string)  { r.calls = append(r.calls, "success:"+msg) }
func (r *recordingSink) Exception(err error) { r.calls = append(r.calls, "exception:"+err.Error()) }
func (r *recordingSink) ProgressBar(total, start int) Bar {
	r.calls = append(r.calls, "bar")
	return noopBar{}
}

func TestOutputFansOutToGeneralSinksByDefault(t *testing.T) {
	general := &recordingSink{}
	o := New([]Sink{general}, nil)

	o.Info("starting")
	o.Error("boom")
	o.Debug("trace")

	assert.Equal(t, []string{"info:starting", "error:boom", "debug:trace"}, general.calls)
}

func TestDaemonizeSwitchesSinksAndSilencesDebug(t *testing.T) {
	general := &recordingSink{}
	daemon := &recordingSink{}
	o := New([]Sink{general}, []Sink{daemon})

	o.Daemonize()
	o.Info("after daemonize")
	o.Debug("should be dropped")

	assert.Equal(t, []string{"info:after daemonize"}, daemon.calls)
	assert.Empty(t, general.calls)
}

func TestExceptionReachesActiveSinks(t *testing.T) {
	general := &recordingSink{}
	o := New([]Sink{general}, nil)

	o.Exception(errors.New("kaboom"))

	assert.Equal(t, []string{"exception:kaboom"}, general.calls)
}

func TestProgressBarReturnsNoopWhenNoActiveSinks(t *testing.T) {
	o := New(nil, nil)
	bar := o.ProgressBar(10, 0)
	bar.Tick()
	bar.Finish()
}
