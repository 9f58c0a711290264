package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lemonberrylabs/calcd/pkg/render"
	"github.com/lemonberrylabs/calcd/pkg/runtime"
	"github.com/lemonberrylabs/calcd/pkg/types"
)

// source joins the arguments, or reads stdin when there are none.
func source(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	return strings.TrimRight(string(b), "\n"), nil
}

// cliEngine builds an engine for one-shot commands. Logs go to stderr
// only with --debug.
func cliEngine(cmd *cobra.Command) (*runtime.Engine, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	log := zap.NewNop()
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		if log, err = newLogger("debug"); err != nil {
			return nil, err
		}
	}
	return newEngine(cfg, log), nil
}

func printJSON(cmd *cobra.Command, v types.Value) error {
	b, err := v.MarshalJSON()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}

func newCalcCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calc [expression...]",
		Short: "Evaluate calculator statements (reads stdin without arguments)",
		Example: `  calcd calc "x = 2; sqrt(x) * pi"
  echo "factorial(20)" | calcd calc`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := source(cmd, args)
			if err != nil {
				return err
			}
			engine, err := cliEngine(cmd)
			if err != nil {
				return err
			}
			asJSON, _ := cmd.Flags().GetBool("json")

			report, err := engine.Calculate(cmd.Context(), text)
			if err != nil {
				if asJSON {
					_ = printJSON(cmd, runtime.ErrorValue(err))
				} else {
					fmt.Fprint(cmd.OutOrStdout(), render.Error(err))
				}
				return errFailed
			}

			if asJSON {
				if err := printJSON(cmd, runtime.ReportValue(report)); err != nil {
					return err
				}
			} else {
				fmt.Fprint(cmd.OutOrStdout(), render.Report(report))
			}
			if report.HasErrors() {
				return errFailed
			}
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "Print the report as JSON")
	return cmd
}

func newBrainfuckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "bf [program...]",
		Aliases: []string{"brainfuck"},
		Short:   "Run a Brainfuck program (reads stdin without arguments)",
		Example: `  calcd bf "++++++++[>++++++++<-]>+. &dump"
  calcd bf --input hi ",.,."`,
		RunE: func(cmd *cobra.Command, args []string) error {
			program, err := source(cmd, args)
			if err != nil {
				return err
			}
			engine, err := cliEngine(cmd)
			if err != nil {
				return err
			}

			var input *string
			if cmd.Flags().Changed("input") {
				v, _ := cmd.Flags().GetString("input")
				input = &v
			}

			res, err := engine.Brainfuck(cmd.Context(), program, input)
			if err != nil {
				fmt.Fprint(cmd.OutOrStdout(), render.Error(err))
				return errFailed
			}
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				if err := printJSON(cmd, runtime.ResultValue(res)); err != nil {
					return err
				}
			} else {
				fmt.Fprint(cmd.OutOrStdout(), render.Brainfuck(res))
			}
			if res.Err != nil {
				return errFailed
			}
			return nil
		},
	}
	cmd.Flags().String("input", "", "Input queue, overrides the &input= directive")
	cmd.Flags().Bool("json", false, "Print the result as JSON")
	return cmd
}

func newFunctionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "functions",
		Short: "List the calculator's functions and constants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := cliEngine(cmd)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), render.Functions(engine.Library()))
			return nil
		},
	}
}
