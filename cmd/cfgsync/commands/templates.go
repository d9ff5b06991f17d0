// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raibid-labs/cfgsync/cmd/cfgsync/internal/clierr"
	"github.com/raibid-labs/cfgsync/internal/classifier"
	"github.com/raibid-labs/cfgsync/internal/compliance/finding"
	"github.com/raibid-labs/cfgsync/internal/reporter"
	"github.com/raibid-labs/cfgsync/internal/resolver"
	"github.com/raibid-labs/cfgsync/internal/templates"
)

// NewTemplatesCommand returns the `cfgsync templates` command group.
func NewTemplatesCommand(g *globalOptions) *cobra.Command {
	var store string
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Inspect the template store",
	}
	cmd.PersistentFlags().StringVar(&store, "templates", "", "template store location (overrides templates.store)")
	cmd.AddCommand(newTemplatesShowCommand(g, &store))
	cmd.AddCommand(newTemplatesCheckCommand(g, &store))
	return cmd
}

// loadStore reads the configuration and opens the template store.
func loadStore(cmd *cobra.Command, g *globalOptions, store string) (*templates.Store, context.Context, error) {
	cfg, ctx, err := g.load(cmd)
	if err != nil {
		return nil, nil, err
	}
	if store != "" {
		cfg.Templates.Store = store
	}
	if err := validate(cfg); err != nil {
		return nil, nil, err
	}
	s, err := openTemplates(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return s, ctx, nil
}

func newTemplatesShowCommand(g *globalOptions, store *string) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "show <type>",
		Short: "Print the effective template of a repository type with provenance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t := classifier.Type(args[0])
			if !t.Valid() {
				return clierr.Newf(clierr.ExitCannotStart, "unknown repository type %q (one of %s)", args[0], typeList())
			}
			format, err := reporter.ParseFormat(output)
			if err != nil {
				return clierr.CannotStart(err)
			}
			s, ctx, err := loadStore(cmd, g, *store)
			if err != nil {
				return err
			}

			res := resolver.New(s).Resolve(ctx, t, nil)
			w := cmd.OutOrStdout()
			if format == reporter.FormatJSON {
				if err := writeJSON(w, struct {
					Type      classifier.Type     `json:"type"`
					Effective *resolver.Effective `json:"effective"`
					Findings  []finding.Finding   `json:"findings"`
				}{t, res.Effective, res.Findings}); err != nil {
					return err
				}
			} else if err := renderEffective(w, t, res); err != nil {
				return err
			}
			if finding.NewReport(res.Findings).Has(finding.Error, resolver.CheckID) {
				return clierr.Newf(clierr.ExitFailures, "template for %s does not resolve cleanly", t)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", string(reporter.FormatText), "output format: text or json")
	return cmd
}

func renderEffective(w io.Writer, t classifier.Type, res resolver.Resolution) error {
	eff := res.Effective
	if _, err := fmt.Fprintf(w, "type %s\nchain %s\n\n", t, strings.Join(eff.Chain, " -> ")); err != nil {
		return err
	}
	rows := make([][]string, 0, len(eff.Provenance))
	for _, k := range eff.ProvenanceKeys() {
		rows = append(rows, []string{k, eff.Provenance[k]})
	}
	if err := reporter.WriteTable(w, []string{"KEY", "LAYER"}, rows); err != nil {
		return err
	}
	data, err := eff.MarshalIndent()
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "\n%s\n", data); err != nil {
		return err
	}
	for _, f := range res.Findings {
		if _, err := fmt.Fprintf(w, "%-7s %s\n", f.Severity, f.Message); err != nil {
			return err
		}
	}
	return nil
}

func newTemplatesCheckCommand(g *globalOptions, store *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify every type template resolves to the base template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, ctx, err := loadStore(cmd, g, *store)
			if err != nil {
				return err
			}
			r := resolver.New(s)

			var broken int
			rows := make([][]string, 0, len(classifier.AllTypes()))
			for _, t := range classifier.AllTypes() {
				res := r.Resolve(ctx, t, nil)
				status, detail := "ok", strings.Join(res.Effective.Chain, " -> ")
				var msgs []string
				for _, f := range res.Findings {
					if f.Severity == finding.Error {
						msgs = append(msgs, f.Message)
					}
				}
				if len(msgs) > 0 {
					broken++
					status, detail = "broken", strings.Join(msgs, "; ")
				}
				rows = append(rows, []string{string(t), s.TypeRef(t), status, detail})
			}
			if err := reporter.WriteTable(cmd.OutOrStdout(), []string{"TYPE", "TEMPLATE", "STATUS", "DETAIL"}, rows); err != nil {
				return err
			}
			if broken > 0 {
				return clierr.Newf(clierr.ExitFailures, "%d of %d type templates are broken", broken, len(rows))
			}
			return nil
		},
	}
}

func typeList() string {
	names := make([]string, 0, len(classifier.AllTypes()))
	for _, t := range classifier.AllTypes() {
		names = append(names, string(t))
	}
	return strings.Join(names, ", ")
}
