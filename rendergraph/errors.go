// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package rendergraph

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidTopology is matched by every cycle and dangling-read error.
	ErrInvalidTopology = errors.New("rendergraph: invalid graph topology")

	// ErrInvalidGraph reports a malformed declaration (duplicate names,
	// unknown ids, history reads of non-history resources).
	ErrInvalidGraph = errors.New("rendergraph: invalid graph declaration")

	// ErrUnbound reports a live imported resource with no bound object.
	ErrUnbound = errors.New("rendergraph: imported resource not bound")

	// ErrExecutorClosed is returned by Execute after Close.
	ErrExecutorClosed = errors.New("rendergraph: executor closed")
)

// CycleError reports a dependency cycle. Passes lists the cycle in edge
// order with the first pass repeated at the end.
type CycleError struct {
	Passes []string
}

func (e *CycleError) Error() string {
	return "rendergraph: dependency cycle: " + strings.Join(e.Passes, " -> ")
}

func (e *CycleError) Unwrap() error { return ErrInvalidTopology }

// DanglingError reports a same-frame read with no writer.
type DanglingError struct {
	Pass     string
	Resource string
}

func (e *DanglingError) Error() string {
	return fmt.Sprintf("rendergraph: pass %q reads %q which no pass writes this frame", e.Pass, e.Resource)
}

func (e *DanglingError) Unwrap() error { return ErrInvalidTopology }

// PassError wraps an error returned by a pass's execute callback.
type PassError struct {
	Pass string
	Err  error
}

func (e *PassError) Error() string {
	return fmt.Sprintf("rendergraph: pass %q: %v", e.Pass, e.Err)
}

func (e *PassError) Unwrap() error { return e.Err }
