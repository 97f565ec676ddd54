package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gogpu/gfx"
)

var probeBackends []string

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Open a device and print its capabilities",
	Long: `Probe backends in priority order, open the first that works and
print the adapter and its limits. Failed probes are logged at warn level.`,
	Args: cobra.NoArgs,
	RunE: runProbe,
}

func init() {
	probeCmd.Flags().StringSliceVar(&probeBackends, "backends", nil,
		fmt.Sprintf("backend probe order (registered: %v)", gfx.Backends()))
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, _ []string) error {
	dev, err := openDevice(probeBackends)
	if err != nil {
		return err
	}
	defer dev.Destroy()

	caps := dev.Capabilities()
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "backend:               %s\n", caps.Backend)
	fmt.Fprintf(out, "adapter:               %s (%v)\n", caps.Adapter.Name, caps.Adapter.DeviceType)
	fmt.Fprintf(out, "max texture size:      %d\n", caps.MaxTextureSize)
	fmt.Fprintf(out, "max color attachments: %d\n", caps.MaxColorAttachments)
	fmt.Fprintf(out, "max vertex buffers:    %d\n", caps.MaxVertexBuffers)
	fmt.Fprintf(out, "max buffer size:       %d\n", caps.MaxBufferSize)
	fmt.Fprintf(out, "compute:               %v\n", caps.SupportsCompute)
	return nil
}
