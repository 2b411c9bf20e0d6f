package synth

import (
	"testing"

	"github.com/auralith/kokorod/internal/protocol"
)

func TestBuildChunksEmptyAudioStillPublishesFinal(t *testing.T) {
	req := protocol.SynthesisRequest{SessionID: "s1", Target: "speaker"}
	chunks := buildChunks(req, 24000, nil, 960)
	if len(chunks) != 1 {
		t.Fatalf("expected a single chunk for empty audio, got %d", len(chunks))
	}
	got := chunks[0]
	if !got.Final {
		t.Fatal("the only chunk must carry the final marker")
	}
	if len(got.PCM) != 0 {
		t.Fatalf("expected empty PCM, got %d bytes", len(got.PCM))
	}
	if got.SessionID != "s1" || got.Target != "speaker" || got.Sequence != 0 {
		t.Fatalf("unexpected chunk metadata: %+v", got)
	}
}

func TestBuildChunksSequencesAndFinalMarker(t *testing.T) {
	req := protocol.SynthesisRequest{SessionID: "s2"}
	pcm := make([]byte, 10)
	chunks := buildChunks(req, 24000, pcm, 4)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if chunk.Sequence != i {
			t.Fatalf("chunk %d has sequence %d", i, chunk.Sequence)
		}
		if chunk.Channels != 1 || chunk.SampleRate != 24000 {
			t.Fatalf("unexpected format on chunk %d: %+v", i, chunk)
		}
		wantFinal := i == len(chunks)-1
		if chunk.Final != wantFinal {
			t.Fatalf("chunk %d final=%v, want %v", i, chunk.Final, wantFinal)
		}
	}
}
