package main

import (
	"errors"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shashiranjanraj/serverkit/pkg/plugins"
	"github.com/shashiranjanraj/serverkit/pkg/schema"
	"github.com/shashiranjanraj/serverkit/pkg/server"
)

var reduced bool

// serverkit validate: check a settings file without starting anything.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the settings file and print the defaulted result",
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := loadSettings(configPath)
		if err != nil {
			return err
		}

		var opts []schema.Option
		if reduced {
			opts = append(opts, schema.WithMode(schema.ModeReduced))
		}
		raw, err = resolvePlugins(raw)
		if err != nil {
			return err
		}
		out, err := server.Validate(raw, opts...)
		if err != nil {
			var verrs *schema.ValidationErrors
			if errors.As(err, &verrs) {
				for _, e := range verrs.Errs {
					fmt.Fprintf(cmd.ErrOrStderr(), "✗ %s\n", e)
				}
			}
			return fmt.Errorf("%s is invalid", configPath)
		}

		keys := make([]string, 0, len(out))
		for k := range out {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		for _, k := range keys {
			fmt.Fprintf(w, "%s\t%v\n", k, out[k])
		}
		return w.Flush()
	},
}

// serverkit routes: print the routes plugins register.
var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "List the named routes registered by the configured plugins",
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := loadSettings(configPath)
		if err != nil {
			return err
		}
		raw, err = resolve(cmd.Context(), raw)
		if err != nil {
			return err
		}

		asm, err := server.Build(cmd.Context(), raw)
		if err != nil {
			return err
		}
		defer asm.Close()

		infos := asm.App.Router().Routes()
		if len(infos) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No named routes registered.")
			return nil
		}
		sort.Slice(infos, func(i, j int) bool {
			if infos[i].Path != infos[j].Path {
				return infos[i].Path < infos[j].Path
			}
			return infos[i].Method < infos[j].Method
		})

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "METHOD\tPATH\tNAME")
		fmt.Fprintln(w, "------\t----\t----")
		for _, ri := range infos {
			fmt.Fprintf(w, "%s\t%s\t%s\n", ri.Method, ri.Path, ri.Name)
		}
		return w.Flush()
	},
}

// serverkit plugins: list the built-in plugin names.
var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "List plugins that settings files can refer to by name",
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range plugins.Names() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
	},
}

func init() {
	validateCmd.Flags().BoolVar(&reduced, "reduced", false, "only check required fields and types, inject no defaults")
}
