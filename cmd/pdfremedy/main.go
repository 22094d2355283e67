// Command pdfremedy repairs and validates the accessibility structure of
// PDF documents.
//
// Exit codes: 0 when the document is accepted (or every check passes), 1
// when it is rejected, 2 on errors.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/wudi/pdfremedy/config"
	"github.com/wudi/pdfremedy/observability"
)

var version = "0.1.0"

// errRejected ends a command with exit code 1 without printing an error.
var errRejected = errors.New("rejected")

type app struct {
	configPath string
	logLevel   string

	cfg *config.Config
	log observability.Logger
	out io.Writer
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the command line and returns the process exit code.
func execute(args []string, stdout, stderr io.Writer) int {
	a := &app{out: stdout}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.Execute()
	if a.log != nil {
		_ = a.log.Sync()
	}
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errRejected):
		return 1
	}
	fmt.Fprintln(stderr, "pdfremedy:", err)
	return 2
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pdfremedy",
		Short: "Rebuild and validate the accessibility structure of PDF documents",
		Long: `pdfremedy rebuilds the tagged structure of a PDF document: it wraps every
drawn item in marked content, builds a structure tree in reading order,
applies remediation directives and sets language and title metadata. It then
validates the original and repaired documents against the same checklist.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "YAML configuration file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(a.repairCmd())
	root.AddCommand(a.validateCmd())
	root.AddCommand(a.compareCmd())
	root.AddCommand(a.batchCmd())
	root.AddCommand(a.serveCmd())
	return root
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log, err := observability.NewZap(cfg.Log)
	if err != nil {
		return err
	}
	a.cfg, a.log = cfg, log
	return nil
}
