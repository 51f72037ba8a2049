package transform

// Result is one successfully converted refinement block.
type Result struct {
	I, J   int
	Start  uint32
	Depths []float32
}

// Failure records a block the batch could not convert.
type Failure struct {
	I, J  int
	Start uint32
	Err   error
}

// BatchReport collects the outcome of dispatching one batch of blocks.
// Results carry their own flat-array offsets, so collection order never
// matters.
type BatchReport struct {
	Results  []Result
	Failures []Failure
}

// FailureRatio returns the fraction of blocks that failed, or 0 for an
// empty batch.
func (r *BatchReport) FailureRatio() float64 {
	total := len(r.Results) + len(r.Failures)
	if total == 0 {
		return 0
	}
	return float64(len(r.Failures)) / float64(total)
}

// Converted returns the number of blocks that produced new depth bands.
func (r *BatchReport) Converted() int { return len(r.Results) }
