package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sunmao-dev/sunmao/pkg/expression"
	"github.com/sunmao-dev/sunmao/pkg/state"
)

func evalCmd(g *globalFlags) *cobra.Command {
	var (
		storePath    string
		scopeJSON    string
		slotKey      string
		ignoreErrors bool
		fallback     string
		quiet        bool
	)

	cmd := &cobra.Command{
		Use:   "eval <expression>",
		Short: "Evaluate an expression",
		Long: `Evaluate a property string against a state store and print the
result as JSON.

Text outside {{ }} is kept; a string that is a single {{ }} evaluates
to the raw value.

Examples:
  sunmao eval '{{ 1 + 2 }}'
  sunmao eval 'Hello {{ input1.value }}!' --store store.json
  sunmao eval '{{ $i * 2 }}' --scope '{"$i": 3}'
  sunmao eval '{{ dayjs().format("YYYY") }}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg, os.Stderr)
			if err != nil {
				return err
			}
			store, err := readStore(storePath)
			if err != nil {
				return err
			}
			scope, err := parseJSONFlag("scope", scopeJSON)
			if err != nil {
				return err
			}

			var mopts []state.Option
			if quiet {
				mopts = append(mopts, state.WithNoConsoleError())
			}
			mgr := newManager(cfg, logger, store, mopts...)

			opts := state.EvalOptions{
				ScopeObject:     scope,
				SlotKey:         slotKey,
				IgnoreEvalError: ignoreErrors,
			}
			if cmd.Flags().Changed("fallback") {
				opts.FallbackWhenError = func(string) any { return fallback }
			}

			v, err := mgr.MaskedEval(args[0], opts)
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(expression.JSONValue(v), "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	cmd.Flags().StringVar(&storePath, "store", "", "JSON or YAML file with the initial store")
	cmd.Flags().StringVar(&scopeJSON, "scope", "", "JSON object of extra names, such as $listItem")
	cmd.Flags().StringVar(&slotKey, "slot-key", "", "Slot store entry that $slot reads")
	cmd.Flags().BoolVar(&ignoreErrors, "ignore-errors", false, "Keep failing expressions as their source text")
	cmd.Flags().StringVar(&fallback, "fallback", "", "Result to print when evaluation fails")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not log evaluation errors")

	return cmd
}
