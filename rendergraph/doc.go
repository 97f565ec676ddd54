// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package rendergraph schedules a frame's GPU work from declared passes.
//
// A frame is described as a Graph of passes, each declaring the textures
// and buffers it reads and writes:
//
//	g := rendergraph.New()
//	target := g.ImportTexture("backbuffer", desc, rendergraph.Present)
//	color := g.CreateTexture("hdr", hdrDesc)
//	g.AddPass("scene", func(b *rendergraph.PassBuilder) {
//		b.Write(color).Execute(drawScene)
//	})
//	g.AddPass("tonemap", func(b *rendergraph.PassBuilder) {
//		b.Read(color).Write(target).Execute(tonemap)
//	})
//	g.BindTexture(target, swapchainTexture)
//
// Compile orders the passes so every writer of a resource runs before its
// readers, culls passes whose output nothing observable consumes,
// computes resource lifetimes, lets transient resources with disjoint
// lifetimes share memory and derives usage barriers.
//
// An Executor runs graphs on a gfx.Device: it caches plans by topology,
// recycles transient objects through a budgeted pool, double-buffers
// history textures and submits each frame as one batch.
package rendergraph
