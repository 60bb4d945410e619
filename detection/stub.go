package detection

import "gocv.io/x/gocv"

// StubProvider never detects anything. Used for bench runs without model
// files; the interface stays the same.
type StubProvider struct{}

// Detect reports no candidate.
func (StubProvider) Detect(frame gocv.Mat) (Candidate, bool, error) {
	return Candidate{}, false, nil
}

// Close is a no-op.
func (StubProvider) Close() error { return nil }
