package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/gogpu/gfx"
	"github.com/gogpu/gfx/internal/graphfile"
	"github.com/gogpu/gfx/rendergraph"
)

var (
	planWatch   bool
	planNoColor bool
)

var planCmd = &cobra.Command{
	Use:   "plan FILE",
	Short: "Compile a graph description and print its plan",
	Long: `Compile a render graph description and print the schedule, the
dependency levels, culled passes and resources, resource lifetimes and
transient alias slots.

With --watch the file is re-planned every time it changes.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().BoolVar(&planWatch, "watch", false, "re-plan when the file changes")
	planCmd.Flags().BoolVar(&planNoColor, "no-color", false, "disable colored output")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	var opts []termenv.OutputOption
	if planNoColor {
		opts = append(opts, termenv.WithProfile(termenv.Ascii))
	}
	out := termenv.NewOutput(cmd.OutOrStdout(), opts...)

	path := args[0]
	if !planWatch {
		return planFile(out, path)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	return watch(ctx, path, func() {
		if err := planFile(out, path); err != nil {
			fmt.Fprintln(out, out.String("error: "+err.Error()).Foreground(out.Color("1")))
		}
	})
}

func planFile(out *termenv.Output, path string) error {
	f, err := graphfile.Load(path)
	if err != nil {
		return err
	}
	g, err := f.Build(nil)
	if err != nil {
		return err
	}
	p, err := g.Compile()
	if err != nil {
		return err
	}
	printPlan(out, path, g, p)
	return nil
}

func printPlan(out *termenv.Output, title string, g *rendergraph.Graph, p *rendergraph.Plan) {
	heading := func(s string) termenv.Style { return out.String(s).Bold() }
	faint := func(s string) termenv.Style { return out.String(s).Faint() }
	green := out.Color("2")
	yellow := out.Color("3")

	fmt.Fprintf(out, "%s %s\n", heading(title), faint(fmt.Sprintf("(%016x)", p.Hash())))
	fmt.Fprintf(out, "%d passes, %d culled, %d levels, %d alias slots, ~%s transient memory\n\n",
		len(p.Order()), len(p.Culled()), len(p.Levels()), p.SlotCount(), formatBytes(p.TransientBytes()))

	fmt.Fprintln(out, heading("Schedule"))
	for i, level := range p.Levels() {
		fmt.Fprintf(out, "  %s %s\n", faint(fmt.Sprintf("L%d", i)), out.String(strings.Join(level, "  ")).Foreground(green))
	}

	if culled := p.Culled(); len(culled) > 0 {
		fmt.Fprintln(out, heading("\nCulled passes"))
		fmt.Fprintf(out, "  %s\n", out.String(strings.Join(culled, ", ")).Foreground(yellow))
	}
	if culled := p.CulledResources(); len(culled) > 0 {
		fmt.Fprintln(out, heading("\nCulled resources"))
		fmt.Fprintf(out, "  %s\n", out.String(strings.Join(culled, ", ")).Foreground(yellow))
	}

	fmt.Fprintln(out, heading("\nLifetimes"))
	for id := range rendergraph.ResourceID(g.NumResources()) {
		first, last, ok := p.Lifetime(id)
		if !ok {
			continue
		}
		name, kind, _ := g.Resource(id)
		slot := faint("-")
		if s := p.Slot(id); s >= 0 {
			slot = out.String(fmt.Sprintf("slot %d", s))
		}
		fmt.Fprintf(out, "  %-20s %-8s [%d..%d]  %s\n", name, kind, first, last, slot)
	}
}

func formatBytes(n uint64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// watch calls fn now and after every change to path until ctx is done.
// The directory is watched so that editors replacing the file by rename
// are noticed.
func watch(ctx context.Context, path string, fn func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	fn()
	// Editors often emit several events per save.
	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				debounce = time.After(100 * time.Millisecond)
			}
		case <-debounce:
			debounce = nil
			gfx.Logger().Debug("rgplan: file changed", "path", path)
			fn()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			gfx.Logger().Warn("rgplan: watch error", "err", err)
		}
	}
}
