package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	serrors "github.com/sunmao-dev/sunmao/internal/errors"
	"github.com/sunmao-dev/sunmao/pkg/expression"
	"github.com/sunmao-dev/sunmao/pkg/runtime"
)

func renderCmd(g *globalFlags) *cobra.Command {
	var (
		storePath string
		slots     []string
		output    string
	)

	cmd := &cobra.Command{
		Use:   "render [app]",
		Short: "Print the evaluated components of an application",
		Long: `Evaluate every component and trait property of an application
and print the result.

The application is read from the argument, or from "app" in the config.
It may be a local JSON or YAML file or an s3://bucket/key URL.

Examples:
  sunmao render app.yaml
  sunmao render app.json --store store.json
  sunmao render app.json --slot 'list1_content={"title":"first"}'
  sunmao render s3://apps/hello.yaml -o yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg, os.Stderr)
			if err != nil {
				return err
			}
			var arg string
			if len(args) == 1 {
				arg = args[0]
			}
			app, err := newLoader(cfg).Load(cmd.Context(), appSource(cfg, arg))
			if err != nil {
				return err
			}
			store, err := readStore(storePath)
			if err != nil {
				return err
			}

			rt := runtime.New(app, newManager(cfg, logger, store), logger)
			for _, s := range slots {
				key, vars, err := parseSlot(s)
				if err != nil {
					return err
				}
				rt.SetSlot(key, vars)
			}
			if err := rt.Start(cmd.Context()); err != nil {
				return err
			}
			defer rt.Stop()

			return writeRender(cmd, rt.Render(), output)
		},
	}

	cmd.Flags().StringVar(&storePath, "store", "", "JSON or YAML file with the initial store")
	cmd.Flags().StringArrayVar(&slots, "slot", nil, "Slot variables as key=JSON (repeatable)")
	cmd.Flags().StringVarP(&output, "output", "o", "json", "Output format: json or yaml")

	return cmd
}

// parseSlot splits "key={...}".
func parseSlot(s string) (string, map[string]any, error) {
	key, value, ok := strings.Cut(s, "=")
	if !ok || key == "" {
		return "", nil, serrors.New("E400").WithDetail("--slot " + s).
			WithExample(`--slot 'list1_content={"title":"first"}'`)
	}
	vars, err := parseJSONFlag("slot", value)
	if err != nil {
		return "", nil, err
	}
	return key, vars, nil
}

func writeRender(cmd *cobra.Command, components []runtime.RenderedComponent, output string) error {
	for i := range components {
		components[i].Properties = expression.JSONValue(components[i].Properties)
		for j := range components[i].Traits {
			components[i].Traits[j].Properties = expression.JSONValue(components[i].Traits[j].Properties)
		}
	}

	out := cmd.OutOrStdout()
	switch output {
	case "json":
		data, err := json.MarshalIndent(components, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	case "yaml":
		// Round trip through JSON so YAML keys follow the json tags and
		// values with MarshalJSON keep their encoding.
		data, err := json.Marshal(components)
		if err != nil {
			return err
		}
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return err
		}
		return enc.Close()
	}
	return serrors.New("E400").WithDetail("--output " + output).WithSuggestion("Use json or yaml.")
}
