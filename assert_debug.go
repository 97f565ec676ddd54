//go:build gfxdebug

package gfx

// DebugAssertions reports whether misuse panics instead of returning errors.
const DebugAssertions = true

func assertMisuse(err *MisuseError) {
	panic(err)
}
