package vrbag

import (
	"fmt"
	"sort"

	"github.com/robert-malhotra/go-vrbag/grid"
)

// Subgrids scans the descriptor grid exhaustively and returns the sub-grid
// for every populated cell, in row-major cell order. Unpopulated cells are
// skipped; the sparse common case yields far fewer blocks than cells.
func (f *File) Subgrids() ([]grid.Subgrid, error) {
	descs, err := f.Descriptors()
	if err != nil {
		return nil, err
	}

	var out []grid.Subgrid
	for i := 0; i < f.rows; i++ {
		for j := 0; j < f.cols; j++ {
			d := descs[i*f.cols+j]
			if !d.Populated() {
				continue
			}
			out = append(out, d.Subgrid(i, j))
		}
	}
	return out, nil
}

// ValidateDisjoint checks that every block's flat-array range lies inside
// the refinement array and that no two blocks overlap. Each refinement
// record has exactly one owner, which is what lets blocks be patched back
// in any order.
func ValidateDisjoint(blocks []grid.Subgrid, total uint64) error {
	sorted := make([]grid.Subgrid, len(blocks))
	copy(sorted, blocks)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].Start < sorted[b].Start })

	var prev *grid.Subgrid
	for k := range sorted {
		sg := &sorted[k]
		if sg.End() > total {
			return fmt.Errorf("block (%d,%d) range [%d,%d) exceeds refinement array of %d",
				sg.I, sg.J, sg.Start, sg.End(), total)
		}
		if prev != nil && uint64(sg.Start) < prev.End() {
			return fmt.Errorf("block (%d,%d) range [%d,%d) overlaps block (%d,%d) range [%d,%d)",
				sg.I, sg.J, sg.Start, sg.End(), prev.I, prev.J, prev.Start, prev.End())
		}
		prev = sg
	}
	return nil
}
