package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/spf13/cobra"

	"github.com/gogpu/gfx"
	"github.com/gogpu/gfx/internal/graphfile"
	"github.com/gogpu/gfx/rendergraph"
)

var (
	runFrames   int
	runParallel bool
)

var runCmd = &cobra.Command{
	Use:   "run FILE",
	Short: "Execute a graph description on a device",
	Long: `Execute a render graph description for a number of frames. Every
pass clears the color textures it writes; imported resources are created
by rgplan and bound before the first frame. Per-frame statistics and the
transient pool usage are printed.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().IntVar(&runFrames, "frames", 3, "number of frames to execute")
	runCmd.Flags().BoolVar(&runParallel, "parallel", false, "record passes of one level concurrently (overrides the config file)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	if runFrames <= 0 {
		return errors.New("--frames must be positive")
	}
	f, err := graphfile.Load(args[0])
	if err != nil {
		return err
	}

	dev, err := openDevice(nil)
	if err != nil {
		return err
	}
	defer dev.Destroy()

	opts := cfg.ExecutorOptions()
	if cmd.Flags().Changed("parallel") {
		opts = append(opts, rendergraph.WithParallel(runParallel))
	}
	exec := rendergraph.NewExecutor(dev, opts...)
	defer exec.Close()

	imports, err := createImports(dev, f)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	out := cmd.OutOrStdout()
	for range runFrames {
		g, err := f.Build(clearWrites())
		if err != nil {
			return err
		}
		for name, obj := range imports {
			id, _ := g.Lookup(name)
			switch obj := obj.(type) {
			case *gfx.Texture:
				g.BindTexture(id, obj)
			case *gfx.Buffer:
				g.BindBuffer(id, obj)
			}
		}

		res, err := exec.Execute(ctx, g)
		if err != nil {
			return err
		}
		if err := res.Fence.Wait(ctx); err != nil {
			return err
		}
		fmt.Fprintf(out, "frame %d: %d passes (%d culled), %d barriers, %d command buffers, cached plan %v\n",
			res.Frame, res.Passes, res.Culled, res.Barriers, res.CommandBuffers, res.PlanCached)
	}
	fmt.Fprintln(out, exec.PoolStats())
	return nil
}

// createImports makes device objects for every imported resource.
func createImports(dev *gfx.Device, f *graphfile.File) (map[string]any, error) {
	g, err := f.Build(nil)
	if err != nil {
		return nil, err
	}
	objs := make(map[string]any)
	for _, r := range f.Resources {
		if !strings.EqualFold(r.Lifetime, "imported") {
			continue
		}
		id, _ := g.Lookup(r.Name)
		_, kind, _ := g.Resource(id)
		if kind == rendergraph.KindBuffer {
			buf := dev.CreateBuffer(gfx.BufferInfo{
				Label: r.Name,
				Size:  r.Size,
				Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
			})
			if err := buf.Err(); err != nil {
				return nil, fmt.Errorf("import %q: %w", r.Name, err)
			}
			objs[r.Name] = buf
			continue
		}
		format, err := graphfile.ParseFormat(r.Format)
		if err != nil {
			return nil, err
		}
		tex := dev.CreateTexture(gfx.TextureInfo{
			Label:       r.Name,
			Width:       r.Width,
			Height:      r.Height,
			SampleCount: r.Samples,
			Format:      format,
			Usage:       gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopySrc,
		})
		if err := tex.Err(); err != nil {
			return nil, fmt.Errorf("import %q: %w", r.Name, err)
		}
		objs[r.Name] = tex
	}
	return objs, nil
}

// clearWrites gives every pass a callback that clears the color textures
// it writes. Depth textures and buffers are left alone.
func clearWrites() graphfile.ExecuteFunc {
	return func(p *graphfile.Pass, ids map[string]rendergraph.ResourceID) func(*rendergraph.PassContext) error {
		return func(pc *rendergraph.PassContext) error {
			info := gfx.RenderPassInfo{Label: p.Name}
			var targets []rendergraph.ResourceID
			var cv gfx.ClearValues
			for _, name := range p.Writes {
				tex := pc.Texture(ids[name])
				if tex == nil || tex.Format().IsDepthStencil() {
					continue
				}
				info.ColorAttachments = append(info.ColorAttachments, gfx.ColorAttachment{
					Format:      tex.Format(),
					LoadOp:      gputypes.LoadOpClear,
					StoreOp:     gputypes.StoreOpStore,
					SampleCount: tex.Info().SampleCount,
				})
				targets = append(targets, ids[name])
				cv.Colors = append(cv.Colors, gputypes.Color{R: 0.1, G: 0.1, B: 0.1, A: 1})
				if len(targets) == int(pc.Device().Capabilities().MaxColorAttachments) {
					break
				}
			}
			if len(targets) == 0 {
				return nil
			}
			fb, err := pc.Framebuffer(info, targets...)
			if err != nil {
				return err
			}
			cb := pc.CommandBuffer()
			if err := cb.BeginRenderPass(fb, cv); err != nil {
				return err
			}
			return cb.EndRenderPass()
		}
	}
}
