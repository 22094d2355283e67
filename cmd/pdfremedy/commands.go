package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wudi/pdfremedy/compliance"
	"github.com/wudi/pdfremedy/compliance/pdfua"
	"github.com/wudi/pdfremedy/directive"
	"github.com/wudi/pdfremedy/pipeline"
	"github.com/wudi/pdfremedy/report"
	"github.com/wudi/pdfremedy/server"
)

func (a *app) engine() *pipeline.Engine {
	opts := pipeline.OptionsFromConfig(a.cfg, a.log)
	opts.Validator = a.validator()
	return pipeline.New(opts)
}

func (a *app) validator() *pdfua.Validator {
	return pdfua.New(pdfua.Options{Logger: a.log})
}

// outputPath derives "<name>.accessible.pdf" next to the input.
func outputPath(in string) string {
	ext := filepath.Ext(in)
	return strings.TrimSuffix(in, ext) + ".accessible.pdf"
}

func loadDirectives(path string) ([]directive.Directive, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	ds, err := directive.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func (a *app) repairCmd() *cobra.Command {
	var directivesPath, outPath, reportPath, htmlPath string
	cmd := &cobra.Command{
		Use:   "repair <in.pdf>",
		Short: "Rebuild the structure of a document and validate the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := args[0]
			data, err := os.ReadFile(in)
			if err != nil {
				return err
			}
			ds, err := loadDirectives(directivesPath)
			if err != nil {
				return err
			}
			res, err := a.engine().Run(cmd.Context(), pipeline.Input{Name: in, Data: data, Directives: ds})
			if err != nil {
				return err
			}
			if outPath == "" {
				outPath = outputPath(in)
			}
			if res.Status != pipeline.StatusCancelled {
				if err := os.WriteFile(outPath, res.Output, 0o644); err != nil {
					return err
				}
			}
			md := report.Run(res)
			if reportPath != "" {
				if err := writeJSON(reportPath, res); err != nil {
					return err
				}
			}
			if htmlPath != "" {
				page, err := report.HTML("Repair of "+filepath.Base(in), md)
				if err != nil {
					return err
				}
				if err := os.WriteFile(htmlPath, page, 0o644); err != nil {
					return err
				}
			}
			fmt.Fprint(cmd.OutOrStdout(), md)
			if res.Status != pipeline.StatusAccepted {
				return errRejected
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&directivesPath, "directives", "", "JSON directive list")
	cmd.Flags().StringVar(&outPath, "out", "", "repaired document (default <in>.accessible.pdf)")
	cmd.Flags().StringVar(&reportPath, "report", "", "write the run result as JSON")
	cmd.Flags().StringVar(&htmlPath, "html", "", "write the run report as HTML")
	return cmd
}

func (a *app) validateCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "validate <file.pdf>",
		Short: "Run the compliance checklist against a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			rep, err := a.validator().Validate(cmd.Context(), data)
			if err != nil {
				return err
			}
			if asJSON {
				out, err := rep.JSON()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
			} else {
				fmt.Fprint(cmd.OutOrStdout(), report.Validation(filepath.Base(args[0]), rep))
			}
			if !rep.Passed() {
				return errRejected
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func (a *app) compareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compare <original.pdf> <repaired.pdf>",
		Short: "Validate two versions of a document and compare the results",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v := a.validator()
			var reps [2]compliance.Report
			for i, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				if reps[i], err = v.Validate(cmd.Context(), data); err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
			}
			cmp := compliance.Compare(reps[0], reps[1])
			fmt.Fprint(cmd.OutOrStdout(), report.Comparison(cmp))
			if !cmp.Accepted {
				return errRejected
			}
			return nil
		},
	}
}

func (a *app) batchCmd() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "batch <dir>",
		Short: "Repair every PDF in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if outDir == "" {
				return fmt.Errorf("--out is required")
			}
			paths, err := filepath.Glob(filepath.Join(args[0], "*.pdf"))
			if err != nil {
				return err
			}
			sort.Strings(paths)
			inputs := make([]pipeline.Input, 0, len(paths))
			for _, p := range paths {
				data, err := os.ReadFile(p)
				if err != nil {
					return err
				}
				inputs = append(inputs, pipeline.Input{Name: p, Data: data})
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}

			pool := pipeline.NewPool(a.engine(), a.cfg.Engine.Workers)
			results := pool.RunAll(cmd.Context(), inputs)
			var failed, rejected int
			for _, res := range results {
				base := filepath.Base(res.Name)
				switch res.Status {
				case pipeline.StatusFailed:
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "%s\tfailed\t%v\n", base, res.Err)
					continue
				case pipeline.StatusAccepted:
				default:
					rejected++
				}
				if res.Status != pipeline.StatusCancelled {
					if err := os.WriteFile(filepath.Join(outDir, base), res.Output, 0o644); err != nil {
						return err
					}
				}
				passed, total := 0, 0
				if res.Report != nil {
					passed, total = res.Report.AfterPassed, res.Report.Total
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d/%d\n", base, res.Status, passed, total)
			}
			switch {
			case failed > 0:
				return fmt.Errorf("%d of %d documents failed", failed, len(results))
			case rejected > 0:
				return errRejected
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", "", "directory for repaired documents")
	return cmd
}

func (a *app) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the repair and validation API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg.Server
			if addr != "" {
				cfg.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return server.New(a.engine(), a.validator(), cfg, a.log).ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from configuration)")
	return cmd
}
