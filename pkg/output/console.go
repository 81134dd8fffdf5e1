package output

import (
	"fmt"
	"io"

	"github.com/cheggaaa/pb/v3"
	"github.com/fatih/color"
)

// Console is the operator-facing sink: colored lines on an io.Writer
// plus a real cheggaaa/pb bar for the stop/restart drain countdown.
type Console struct {
	Out io.Writer
}

// NewConsole wraps w as a Console sink.
func NewConsole(w io.Writer) *Console {
	return &Console{Out: w}
}

func (c *Console) Error(msg string)   { c.line(color.RedString("error"), msg) }
func (c *Console) Warning(msg string) { c.line(color.YellowString("warning"), msg) }
func (c *Console) Info(msg string)    { c.line(color.CyanString("info"), msg) }
func (c *Console) Debug(msg string)   { c.line(color.New(color.Faint).Sprint("debug"), msg) }
func (c *Console) Success(msg string) { c.line(color.GreenString("ok"), msg) }

func (c *Console) Exception(err error) {
	fmt.Fprintf(c.Out, "%s %v\n", color.RedString("error"), err)
}

// ProgressBar starts a cheggaaa/pb bar at start out of total steps.
func (c *Console) ProgressBar(total, start int) Bar {
	bar := pb.New(total)
	bar.SetCurrent(int64(start))
	bar.SetWriter(c.Out)
	bar.Start()
	return &pbBar{bar: bar}
}

func (c *Console) line(tag, msg string) {
	fmt.Fprintf(c.Out, "%s %s\n", tag, msg)
}

type pbBar struct {
	bar *pb.ProgressBar
}

func (p *pbBar) Tick()   { p.bar.Increment() }
func (p *pbBar) Finish() { p.bar.Finish() }
