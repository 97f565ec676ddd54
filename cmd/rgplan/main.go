// Command rgplan compiles, inspects and runs render graph descriptions.
//
// Usage:
//
//	rgplan plan frame.yaml [--watch] [--no-color]
//	rgplan probe [--backends vulkan,empty]
//	rgplan run frame.yaml [--frames 3] [--parallel]
//
// Global flags --config (TOML file) and --log-level apply to every command.
package main

import (
	"os"

	_ "github.com/gogpu/wgpu/hal/allbackends"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
