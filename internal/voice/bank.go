package voice

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
)

var (
	// ErrRowOutOfRange means a style row index exceeds the matrix. The
	// backend fails fast on this instead of reading a wrong row silently.
	ErrRowOutOfRange = errors.New("style row out of range")

	// ErrVoiceUnknown means the requested voice is not in the bank.
	ErrVoiceUnknown = errors.New("unknown voice")
)

// Embedding is one voice's style matrix: a row of width floats per sequence
// length. Read-only after load.
type Embedding struct {
	name  string
	width int
	data  []float32
}

func (e *Embedding) Name() string { return e.name }
func (e *Embedding) Width() int   { return e.width }
func (e *Embedding) Rows() int    { return len(e.data) / e.width }

// Row returns the style vector for the given sequence position.
func (e *Embedding) Row(index int) ([]float32, error) {
	if index < 0 || index >= e.Rows() {
		return nil, fmt.Errorf("%w: row %d of %d in voice %q", ErrRowOutOfRange, index, e.Rows(), e.name)
	}
	return e.data[index*e.width : (index+1)*e.width], nil
}

// Bank holds the voices loaded from one bundle.
type Bank struct {
	voices map[string]*Embedding
}

// Load reads a voices bundle: repeated entries of a little-endian uint32 name
// length, the name bytes, a uint32 float count, and that many float32 values.
// Each voice's float block must divide evenly into rows of width values.
func Load(path string, width int) (*Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read voices bundle: %w", err)
	}
	return Parse(data, width)
}

// Parse decodes a voices bundle from memory.
func Parse(data []byte, width int) (*Bank, error) {
	if width <= 0 {
		return nil, errors.New("style width must be positive")
	}

	voices := make(map[string]*Embedding)
	offset := 0
	for offset < len(data) {
		if offset+4 > len(data) {
			return nil, fmt.Errorf("truncated voices bundle at offset %d", offset)
		}
		nameLen := int(binary.LittleEndian.Uint32(data[offset:]))
		offset += 4
		if nameLen <= 0 || offset+nameLen > len(data) {
			return nil, fmt.Errorf("invalid voice name length %d at offset %d", nameLen, offset)
		}
		name := string(data[offset : offset+nameLen])
		offset += nameLen

		if offset+4 > len(data) {
			return nil, fmt.Errorf("truncated voice %q: missing float count", name)
		}
		count := int(binary.LittleEndian.Uint32(data[offset:]))
		offset += 4
		if count <= 0 || offset+count*4 > len(data) {
			return nil, fmt.Errorf("invalid float count %d for voice %q", count, name)
		}
		if count%width != 0 {
			return nil, fmt.Errorf("voice %q: %d floats do not divide into rows of %d", name, count, width)
		}

		values := make([]float32, count)
		for i := 0; i < count; i++ {
			bits := binary.LittleEndian.Uint32(data[offset:])
			values[i] = math.Float32frombits(bits)
			offset += 4
		}
		voices[name] = &Embedding{name: name, width: width, data: values}
	}

	if len(voices) == 0 {
		return nil, errors.New("no voices found in bundle")
	}
	return &Bank{voices: voices}, nil
}

// Get returns the named voice.
func (b *Bank) Get(name string) (*Embedding, error) {
	v, ok := b.voices[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrVoiceUnknown, name)
	}
	return v, nil
}

// Names lists the loaded voices in sorted order.
func (b *Bank) Names() []string {
	names := make([]string, 0, len(b.voices))
	for name := range b.voices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
