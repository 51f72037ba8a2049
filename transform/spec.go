// Package transform turns grid values from one vertical reference frame to
// another. A Spec names the frames, a Provider resolves it to a concrete
// point operation, and the workers apply that operation to refinement
// blocks either point-by-point or through an external raster warp.
package transform

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoOperation is returned by a Provider when no operation chain
	// exists between the requested frames.
	ErrNoOperation = errors.New("transform: no operation between frames")

	ErrBadSpec = errors.New("transform: invalid spec")
)

// Spec names a reference-frame conversion. From and To are frame
// identifiers (for example "mllw" and "navd88"); Steps optionally pins the
// intermediate frames the conversion must pass through, in order.
type Spec struct {
	From  string
	To    string
	Steps []string
}

// Validate checks that both endpoint frames are named and no step is blank.
func (s Spec) Validate() error {
	if s.From == "" || s.To == "" {
		return fmt.Errorf("%w: both frames must be named (from=%q, to=%q)", ErrBadSpec, s.From, s.To)
	}
	for i, step := range s.Steps {
		if step == "" {
			return fmt.Errorf("%w: step %d is empty", ErrBadSpec, i)
		}
	}
	return nil
}

// IsIdentity reports whether the spec maps a frame onto itself with no
// forced intermediate steps.
func (s Spec) IsIdentity() bool {
	return s.From == s.To && len(s.Steps) == 0
}

// Frames returns the full frame sequence the conversion passes through,
// endpoints included.
func (s Spec) Frames() []string {
	frames := make([]string, 0, len(s.Steps)+2)
	frames = append(frames, s.From)
	frames = append(frames, s.Steps...)
	return append(frames, s.To)
}

func (s Spec) String() string {
	return strings.Join(s.Frames(), " -> ")
}
