package protocol

import "time"

// SynthesisRequest asks the node to synthesize speech. Either Text or Tokens
// is set; Tokens wins when both are present.
type SynthesisRequest struct {
	SessionID string  `json:"session_id,omitempty"`
	Text      string  `json:"text,omitempty"`
	Tokens    []int64 `json:"tokens,omitempty"`
	Voice     string  `json:"voice,omitempty"`
	Speed     float64 `json:"speed,omitempty"`
	Target    string  `json:"target,omitempty"`
}

// AudioChunk carries a slice of synthesized PCM back over the bus.
type AudioChunk struct {
	SessionID  string `json:"session_id"`
	Target     string `json:"target,omitempty"`
	Sequence   int    `json:"sequence"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	PCM        []byte `json:"pcm"`
	Final      bool   `json:"final"`
}

// SynthesisStatus announces completion or failure of a request.
type SynthesisStatus struct {
	SessionID string    `json:"session_id"`
	Target    string    `json:"target,omitempty"`
	Completed bool      `json:"completed"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectSynthesize      = "tts.synthesize"
	SubjectSynthesisAudio  = "tts.audio"
	SubjectSynthesisStatus = "tts.done"
)
