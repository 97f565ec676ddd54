//go:build !gfxdebug

package gfx

// DebugAssertions reports whether misuse panics instead of returning errors.
const DebugAssertions = false

func assertMisuse(err *MisuseError) {
	Logger().Warn("gfx: misuse", "op", err.Op, "reason", err.Reason)
}
