package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/danmuck/vimctl/internal/discovery"
	"github.com/danmuck/vimctl/internal/editor"
	"github.com/danmuck/vimctl/internal/tools"
	"github.com/spf13/cobra"
)

type listStyles struct {
	title  lipgloss.Style
	name   lipgloss.Style
	window lipgloss.Style
	cwd    lipgloss.Style
	stale  lipgloss.Style
	empty  lipgloss.Style
}

func newListStyles() listStyles {
	return listStyles{
		title:  lipgloss.NewStyle().Bold(true),
		name:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		window: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		cwd:    lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		stale:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		empty:  lipgloss.NewStyle().Faint(true),
	}
}

type serverRow struct {
	Name   string `json:"name"`
	Window string `json:"window"`
	Live   bool   `json:"live"`
	Cwd    string `json:"cwd,omitempty"`
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var (
		withCwd bool
		shell   bool
		asJSON  bool
		all     bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List vim servers registered on the display",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if shell {
				return listFromShell(cmd, cfg.ConsoleBinary, cfg.AdminExprTimeout)
			}

			a, err := connect(cfg, editor.Options{}, nil)
			if err != nil {
				return err
			}
			defer a.close()

			var entries []discovery.Entry
			if err := a.do(cmd.Context(), func(c *editor.Client) { entries = c.Registry() }); err != nil {
				return err
			}
			rows := make([]serverRow, 0, len(entries))
			for _, e := range entries {
				if !all && strings.HasPrefix(e.Name, cfg.HiddenPrefix) {
					continue
				}
				_, live := a.conn.ResolveWindow(e.Window)
				rows = append(rows, serverRow{Name: e.Name, Window: e.Window.String(), Live: live})
			}
			sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })

			if withCwd {
				fetchCwds(cmd.Context(), a, rows, cfg.AdminExprTimeout)
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderRows(rows))
			return err
		},
	}
	cmd.Flags().BoolVar(&withCwd, "cwd", false, "query each live server for its working directory")
	cmd.Flags().BoolVar(&shell, "shell", false, "ask the console editor for --serverlist instead of reading the registry")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.Flags().BoolVar(&all, "all", false, "include hidden sessions")
	return cmd
}

// fetchCwds asks every live server for getcwd() and fills in whatever
// answers before the deadline.
func fetchCwds(ctx context.Context, a *app, rows []serverRow, timeout time.Duration) {
	type answer struct {
		idx int
		cwd string
	}
	answers := make(chan answer, len(rows))
	want := 0
	_ = a.do(ctx, func(c *editor.Client) {
		for i, row := range rows {
			if !row.Live {
				continue
			}
			idx := i
			if _, ok := c.SendExpr(row.Name, discovery.ExprGetCwd, func(r string) {
				answers <- answer{idx: idx, cwd: strings.TrimSpace(r)}
			}); ok {
				want++
			}
		}
	})

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for got := 0; got < want; got++ {
		select {
		case ans := <-answers:
			rows[ans.idx].Cwd = ans.cwd
		case <-deadline.C:
			return
		case <-ctx.Done():
			return
		}
	}
}

func renderRows(rows []serverRow) string {
	st := newListStyles()
	if len(rows) == 0 {
		return st.empty.Render("no servers registered")
	}
	lines := []string{st.title.Render(fmt.Sprintf("%d server(s)", len(rows)))}
	for _, row := range rows {
		line := st.name.Render(row.Name) + " " + st.window.Render(row.Window)
		if !row.Live {
			line += " " + st.stale.Render("stale")
		}
		if row.Cwd != "" {
			line += " " + st.cwd.Render(row.Cwd)
		}
		lines = append(lines, line)
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func listFromShell(cmd *cobra.Command, binary string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	res, err := tools.ExecRunner{}.Run(ctx, binary, "--serverlist")
	if err != nil {
		return fmt.Errorf("%s --serverlist exited %d: %s: %w", binary, res.ExitCode, strings.TrimSpace(string(res.Stderr)), err)
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), string(res.Stdout))
	return err
}
