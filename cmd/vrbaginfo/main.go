// Command vrbaginfo prints the structure and statistics of a
// variable-resolution grid file.
package main

import (
	"fmt"
	"os"

	"github.com/robert-malhotra/go-vrbag/vrbag"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "Usage: vrbaginfo <file>")
		os.Exit(1)
	}

	f, err := vrbag.Open(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "vrbaginfo: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	rows, cols := f.Shape()
	gt := f.GeoTransform()
	fmt.Printf("Grid:       %dx%d cells\n", rows, cols)
	fmt.Printf("Origin:     (%.3f, %.3f)\n", gt.OriginX, gt.OriginY)
	fmt.Printf("Resolution: (%.3f, %.3f)\n", gt.ResX, gt.ResY)
	fmt.Printf("Horizontal: %s\n", f.HorizontalCRS())
	fmt.Printf("Vertical:   %s\n", f.VerticalCRS())

	blocks, err := f.Subgrids()
	if err != nil {
		fmt.Fprintf(os.Stderr, "vrbaginfo: %v\n", err)
		os.Exit(1)
	}
	refs, err := f.Refinements()
	if err != nil {
		fmt.Fprintf(os.Stderr, "vrbaginfo: %v\n", err)
		os.Exit(1)
	}
	var points int
	for _, b := range blocks {
		points += b.Count()
	}
	fmt.Printf("Blocks:     %d populated (%d refinement points, array holds %d)\n",
		len(blocks), points, len(refs))
	if err := vrbag.ValidateDisjoint(blocks, uint64(len(refs))); err != nil {
		fmt.Printf("WARNING:    %v\n", err)
	}

	if min, max, err := f.ElevationStats(); err == nil {
		fmt.Printf("Elevation:  min %.3f  max %.3f\n", min, max)
	}
	if min, max, err := f.DepthStats(); err == nil {
		fmt.Printf("Depth:      min %.3f  max %.3f\n", min, max)
	}
	if min, max, err := f.UncertaintyStats(); err == nil {
		fmt.Printf("Uncrt:      min %.3f  max %.3f\n", min, max)
	}

	for _, b := range blocks {
		fmt.Printf("  block (%d,%d): %dx%d @ %.2fm, offset %d\n",
			b.I, b.J, b.Width, b.Height, b.ResX, b.Start)
	}
}
