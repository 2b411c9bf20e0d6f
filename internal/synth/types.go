package synth

// Request contains parameters to synthesize speech. Tokens take precedence
// over Text when both are set.
type Request struct {
	SessionID string
	Text      string
	Tokens    []int64
	Voice     string
	Speed     float64
	Target    string
}

// Result is one finished synthesis.
type Result struct {
	Audio      []float32
	Durations  []float32
	TokenCount int
	SampleRate int
}
