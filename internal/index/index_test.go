package index

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func TestNew_RejectsNonPositiveDimension(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Fatal("expected error for dim=0")
	}
	if _, err := New(-3); err == nil {
		t.Fatal("expected error for negative dim")
	}
}

func TestFlat_Add_DimensionMismatch(t *testing.T) {
	idx, err := New(3)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	err = idx.Add([]float32{1, 0, 0}, []float32{1, 0})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestFlat_Search_OrdersByScoreDescending(t *testing.T) {
	idx, _ := New(2)
	if err := idx.Add(
		[]float32{0, 1}, // row 0, orthogonal to query
		[]float32{1, 0}, // row 1, exact match
		[]float32{0.6, 0.8},
	); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	got, err := idx.Search([]float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(got))
	}
	if got[0].Row != 1 || got[1].Row != 2 || got[2].Row != 0 {
		t.Errorf("unexpected order: %+v", got)
	}
	if got[0].Score < got[1].Score || got[1].Score < got[2].Score {
		t.Errorf("scores not descending: %+v", got)
	}
	if math.Abs(got[0].Score-1.0) > 1e-6 {
		t.Errorf("exact match score = %f, want 1.0", got[0].Score)
	}
}

func TestFlat_Search_TiesKeepInsertionOrder(t *testing.T) {
	idx, _ := New(2)
	v := []float32{1, 0}
	if err := idx.Add(v, v, v); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	got, err := idx.Search([]float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	for i, c := range got {
		if c.Row != i {
			t.Errorf("tie order broken at %d: %+v", i, got)
		}
	}
}

func TestFlat_Search_KLargerThanIndex(t *testing.T) {
	idx, _ := New(2)
	idx.Add([]float32{1, 0}, []float32{0, 1})

	got, err := idx.Search([]float32{1, 0}, 15)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected all 2 rows, got %d", len(got))
	}
}

func TestFlat_Search_EmptyIndex(t *testing.T) {
	idx, _ := New(4)

	got, err := idx.Search([]float32{1, 0, 0, 0}, 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no candidates, got %d", len(got))
	}
}

func TestFlat_Search_QueryDimensionMismatch(t *testing.T) {
	idx, _ := New(3)
	idx.Add([]float32{1, 0, 0})

	_, err := idx.Search([]float32{1, 0}, 5)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	Normalize(v)

	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("normalized = %v, want [0.6 0.8]", v)
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if math.Abs(norm-1.0) > 1e-6 {
		t.Errorf("norm = %f, want 1.0", norm)
	}
}

func TestNormalize_ZeroVector(t *testing.T) {
	v := []float32{0, 0, 0}
	Normalize(v)

	for i, x := range v {
		if x != 0 {
			t.Errorf("component %d changed: %v", i, v)
		}
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	idx, _ := New(3)
	if err := idx.Add(
		[]float32{1, 0, 0},
		[]float32{0, 0.6, 0.8},
		[]float32{-0.5, 0.5, 0.70710678},
	); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	var buf bytes.Buffer
	if err := idx.Encode(&buf); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if decoded.Dim() != 3 || decoded.Len() != 3 {
		t.Fatalf("decoded dim=%d len=%d", decoded.Dim(), decoded.Len())
	}

	orig, _ := idx.Search([]float32{0, 0.6, 0.8}, 3)
	got, err := decoded.Search([]float32{0, 0.6, 0.8}, 3)
	if err != nil {
		t.Fatalf("Search on decoded failed: %v", err)
	}
	for i := range orig {
		if got[i].Row != orig[i].Row || math.Abs(got[i].Score-orig[i].Score) > 1e-9 {
			t.Errorf("result %d differs: got %+v want %+v", i, got[i], orig[i])
		}
	}
}

func TestCodec_RoundTrip_EmptyIndex(t *testing.T) {
	idx, _ := New(8)

	var buf bytes.Buffer
	if err := idx.Encode(&buf); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := Decode(&buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.Dim() != 8 || decoded.Len() != 0 {
		t.Errorf("decoded dim=%d len=%d", decoded.Dim(), decoded.Len())
	}
}

func TestDecode_BadMagic(t *testing.T) {
	if _, err := Decode(bytes.NewReader([]byte("not an index file"))); err == nil {
		t.Fatal("expected error for bad magic")
	}
}

func TestDecode_Truncated(t *testing.T) {
	idx, _ := New(3)
	idx.Add([]float32{1, 2, 3}, []float32{4, 5, 6})

	var buf bytes.Buffer
	if err := idx.Encode(&buf); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	raw := buf.Bytes()
	if _, err := Decode(bytes.NewReader(raw[:len(raw)-5])); err == nil {
		t.Fatal("expected error for truncated file")
	}
}

// corruptHeader builds a file claiming dim x count rows but carrying only
// the given payload.
func corruptHeader(t *testing.T, dim, count uint32, payload []float32) *bytes.Reader {
	t.Helper()

	var buf bytes.Buffer
	buf.WriteString("SDXI")
	for _, v := range []any{uint16(1), dim, count, payload} {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			t.Fatalf("write header: %v", err)
		}
	}
	return bytes.NewReader(buf.Bytes())
}

func TestDecode_InflatedCount(t *testing.T) {
	// The header claims a billion rows over a three-float payload; the
	// decode must fail on the missing second row.
	r := corruptHeader(t, 3, 1<<30, []float32{1, 0, 0})

	if _, err := Decode(r); err == nil {
		t.Fatal("expected error for count exceeding the payload")
	}
}

func TestDecode_OversizedDimension(t *testing.T) {
	r := corruptHeader(t, 1<<20, 1, nil)

	if _, err := Decode(r); err == nil {
		t.Fatal("expected error for oversized dimension")
	}
}
