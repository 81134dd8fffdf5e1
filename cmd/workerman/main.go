// Command workerman is the operator-facing CLI: start/stop/restart/
// status, plus the worker re-exec entry point. A worker never reaches
// cobra — bootstrap.IsWorker short-circuits dispatch before any flag
// parsing happens.
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/cuemby/workerman/pkg/bootstrap"
	"github.com/cuemby/workerman/pkg/config"
	"github.com/cuemby/workerman/pkg/log"
	"github.com/cuemby/workerman/pkg/output"
	"github.com/cuemby/workerman/pkg/werrors"
	"github.com/cuemby/workerman/pkg/workerman"
)

func main() {
	if bootstrap.IsWorker() {
		bootstrap.Run()
		return
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "workerman",
	Short:         "Multi-process TCP/UDP/UNIX socket server supervisor",
	Version:       "dev",
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "workerman.yaml", "path to the workerman config file")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(startCmd, stopCmd, restartCmd, statusCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOutput, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOutput})
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "start the master and its worker pool",
	RunE: func(cmd *cobra.Command, args []string) error {
		daemon, _ := cmd.Flags().GetBool("daemon")
		w, err := buildFacade(cmd, daemon)
		if err != nil {
			return reportAndExit(err)
		}
		if err := w.Start(); err != nil {
			return reportAndExit(err)
		}
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "stop the running master and its workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		graceful, _ := cmd.Flags().GetBool("graceful")
		w, err := buildFacade(cmd, false)
		if err != nil {
			return reportAndExit(err)
		}
		if err := w.Stop(graceful); err != nil {
			return reportAndExit(err)
		}
		return nil
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "restart the worker pool without dropping listening sockets",
	RunE: func(cmd *cobra.Command, args []string) error {
		graceful, _ := cmd.Flags().GetBool("graceful")
		w, err := buildFacade(cmd, false)
		if err != nil {
			return reportAndExit(err)
		}
		if err := w.Restart(graceful); err != nil {
			return reportAndExit(err)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "report master and worker status",
	RunE: func(cmd *cobra.Command, args []string) error {
		info, _ := cmd.Flags().GetBool("info")
		w, err := buildFacade(cmd, false)
		if err != nil {
			return reportAndExit(err)
		}
		rows, err := w.Status(info)
		if err != nil {
			return reportAndExit(err)
		}
		for _, row := range rows {
			fmt.Printf("%-4s %-22s %-10s %-8s %-8s %-18s %-10s %s\n",
				row.ID, row.Listen, row.Name, row.Memory, row.PeakMemory, row.StartTime, row.Connections, fmt.Sprint(row.Timers))
		}
		return nil
	},
}

func init() {
	startCmd.Flags().BoolP("daemon", "d", false, "detach into the background")
	stopCmd.Flags().BoolP("graceful", "g", false, "wait for connections to drain before exiting")
	restartCmd.Flags().BoolP("graceful", "g", false, "drain each worker before replacing it")
	statusCmd.Flags().BoolP("info", "i", false, "show the status column legend instead of querying a live master")
}

// buildFacade loads workerman.yaml and constructs the facade. daemon
// overrides the file's own notion of daemon mode (the config file
// format doesn't carry a daemon flag; it's CLI-only, matching `-d`).
func buildFacade(cmd *cobra.Command, daemon bool) (*workerman.Workerman, error) {
	path, _ := cmd.Flags().GetString("config")
	file, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	cfg := workerman.FromFile(file)
	cfg.Daemon = daemon
	cfg.OutputSinks = []output.Sink{output.NewConsole(os.Stdout)}
	cfg.PostDaemonizeSinks = []output.Sink{output.LogSink{}}

	return workerman.New(cfg)
}

// reportAndExit implements the CLI error-propagation split: a
// LifecycleError prints as a short operator message, everything else
// prints with its concrete type, message, and a stack trace before
// the process exits 1.
func reportAndExit(err error) error {
	if le, ok := err.(*werrors.LifecycleError); ok {
		fmt.Fprintln(os.Stderr, le.Message)
		return err
	}
	fmt.Fprintf(os.Stderr, "%T: %v\n%s\n", err, err, debug.Stack())
	return err
}
