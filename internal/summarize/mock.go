package summarize

import "context"

// Mock is a test double for the Summarizer interface. It can also back
// dry-run mode.
type Mock struct {
	Result *Result
	Err    error
	Calls  []string // records transcripts sent
}

func (m *Mock) Summarize(_ context.Context, transcript string) (*Result, error) {
	m.Calls = append(m.Calls, transcript)
	if m.Result == nil && m.Err == nil {
		return &Result{Summary: "mock summary"}, nil
	}
	return m.Result, m.Err
}
