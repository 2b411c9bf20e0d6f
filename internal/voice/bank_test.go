package voice

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func encodeVoice(buf []byte, name string, values []float32) []byte {
	tmp := make([]byte, 4)
	binary.LittleEndian.PutUint32(tmp, uint32(len(name)))
	buf = append(buf, tmp...)
	buf = append(buf, name...)
	binary.LittleEndian.PutUint32(tmp, uint32(len(values)))
	buf = append(buf, tmp...)
	for _, v := range values {
		binary.LittleEndian.PutUint32(tmp, math.Float32bits(v))
		buf = append(buf, tmp...)
	}
	return buf
}

func TestParseBundle(t *testing.T) {
	// Two voices of width 2: one with 3 rows, one with 2 rows.
	data := encodeVoice(nil, "af_heart", []float32{0, 0, 1, 1, 2, 2})
	data = encodeVoice(data, "am_adam", []float32{5, 6, 7, 8})

	bank, err := Parse(data, 2)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	names := bank.Names()
	if len(names) != 2 || names[0] != "af_heart" || names[1] != "am_adam" {
		t.Fatalf("unexpected names: %v", names)
	}

	v, err := bank.Get("af_heart")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if v.Rows() != 3 || v.Width() != 2 {
		t.Fatalf("expected 3x2 matrix, got %dx%d", v.Rows(), v.Width())
	}
	row, err := v.Row(2)
	if err != nil {
		t.Fatalf("row: %v", err)
	}
	if row[0] != 2 || row[1] != 2 {
		t.Fatalf("unexpected row content: %v", row)
	}
}

func TestRowOutOfRange(t *testing.T) {
	data := encodeVoice(nil, "af_heart", []float32{0, 0, 1, 1})
	bank, err := Parse(data, 2)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	v, _ := bank.Get("af_heart")
	if _, err := v.Row(2); !errors.Is(err, ErrRowOutOfRange) {
		t.Fatalf("expected ErrRowOutOfRange, got %v", err)
	}
	if _, err := v.Row(-1); !errors.Is(err, ErrRowOutOfRange) {
		t.Fatalf("expected ErrRowOutOfRange for negative index, got %v", err)
	}
}

func TestGetUnknownVoice(t *testing.T) {
	data := encodeVoice(nil, "af_heart", []float32{0, 0})
	bank, err := Parse(data, 2)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := bank.Get("nobody"); !errors.Is(err, ErrVoiceUnknown) {
		t.Fatalf("expected ErrVoiceUnknown, got %v", err)
	}
}

func TestParseRejectsRaggedMatrix(t *testing.T) {
	data := encodeVoice(nil, "af_heart", []float32{0, 0, 1})
	if _, err := Parse(data, 2); err == nil {
		t.Fatal("expected error for float count not divisible by width")
	}
}

func TestParseRejectsTruncatedBundle(t *testing.T) {
	data := encodeVoice(nil, "af_heart", []float32{0, 0})
	if _, err := Parse(data[:len(data)-2], 2); err == nil {
		t.Fatal("expected error for truncated bundle")
	}
}
