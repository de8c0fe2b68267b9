package cmd

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"skilltest/internal/skill"
)

func newListCmd() *cobra.Command {
	var (
		lf        logFlags
		skillsDir string
	)
	cmd := &cobra.Command{
		Use:   "list [skill ...]",
		Short: "List discovered skills and their tests",
		Long: `List the skills found under the skills directory with their test counts,
skipped tests, required credentials and any problems found while loading
their declarations.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := initCLILogging(&lf, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("skills-dir") {
				cfg.SkillsDir = skillsDir
			}

			suites, err := skill.LoadAll(cfg.SkillsDir, args)
			if err != nil {
				return err
			}
			renderSuites(cmd, suites)
			return nil
		},
	}
	lf.register(cmd)
	cmd.Flags().StringVar(&skillsDir, "skills-dir", "", "Directory holding <category>/<skill> folders (default from config: skills)")
	return cmd
}

func renderSuites(cmd *cobra.Command, suites []*skill.Suite) {
	if len(suites) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No skills found")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("SKILL"),
		text.FgHiCyan.Sprint("CATEGORY"),
		text.FgHiCyan.Sprint("TESTS"),
		text.FgHiCyan.Sprint("SKIP"),
		text.FgHiCyan.Sprint("PIPELINE"),
		text.FgHiCyan.Sprint("CREDENTIALS"),
		text.FgHiCyan.Sprint("PROBLEMS"),
	})

	total := 0
	for _, s := range suites {
		skipped := 0
		for _, tc := range s.Tests {
			if tc.Skip {
				skipped++
			}
		}
		total += len(s.Tests)

		pipeline := text.FgGreen.Sprint("✓")
		if s.SpecPath == "" {
			pipeline = text.FgYellow.Sprint("missing")
		}
		creds := strings.Join(s.Declaration.RequiredCredentials(), ", ")
		if s.Declaration.HasLocalBackend() && creds != "" {
			creds += " (local ok)"
		}

		t.AppendRow(table.Row{
			s.Name,
			s.Category,
			len(s.Tests),
			skipped,
			pipeline,
			creds,
			text.FgRed.Sprint(strings.Join(s.Problems(), "; ")),
		})
	}
	t.AppendFooter(table.Row{"TOTAL", len(suites), total, "", "", "", ""})
	t.Render()
}
