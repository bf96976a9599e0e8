package signal

import (
	"errors"
	"testing"
)

func TestAllocateZeroFills(t *testing.T) {
	b := NewBuffer(5)
	if b.Len() != 5 {
		t.Fatalf("expected len 5, got %d", b.Len())
	}
	for _, f := range Fields() {
		for i := 0; i < 5; i++ {
			v, err := b.Read(i, f)
			if err != nil {
				t.Fatalf("read %s[%d]: %v", f, i, err)
			}
			if v != 0 {
				t.Errorf("%s[%d] = %f, want 0", f, i, v)
			}
		}
	}
}

func TestWriteRead(t *testing.T) {
	b := NewBuffer(3)
	if err := b.Write(2, Output, 1.5); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	v, err := b.Read(2, Output)
	if err != nil || v != 1.5 {
		t.Errorf("Read = %f, %v; want 1.5, nil", v, err)
	}
}

func TestOutOfRange(t *testing.T) {
	b := NewBuffer(3)

	tests := []struct {
		name  string
		index int
	}{
		{"at len", 3},
		{"past len", 10},
		{"negative", -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := b.Write(tt.index, Error, 1)
			var oor *OutOfRangeError
			if !errors.As(err, &oor) {
				t.Fatalf("expected OutOfRangeError, got %v", err)
			}
			if oor.Len != 3 || oor.Index != tt.index {
				t.Errorf("unexpected error contents: %+v", oor)
			}
			if _, err := b.Read(tt.index, Error); !errors.As(err, &oor) {
				t.Errorf("read: expected OutOfRangeError, got %v", err)
			}
		})
	}
}

func TestReallocateReplaces(t *testing.T) {
	b := NewBuffer(4)
	b.Fill(Incoming, 10)
	old := b.View(4)

	b.Allocate(8)
	if b.Len() != 8 {
		t.Fatalf("expected len 8, got %d", b.Len())
	}
	if v, _ := b.Read(0, Incoming); v != 0 {
		t.Errorf("reallocated buffer not zeroed: %f", v)
	}
	if old.At(Incoming, 0) != 10 {
		t.Error("earlier view should keep old storage")
	}
}

func TestWriteRange(t *testing.T) {
	b := NewBuffer(6)
	if err := b.WriteRange(1, Perturbation, []float64{1, 2, 3}, false); err != nil {
		t.Fatal(err)
	}
	if err := b.WriteRange(2, Perturbation, []float64{10, 10}, true); err != nil {
		t.Fatal(err)
	}
	want := []float64{0, 1, 12, 13, 0, 0}
	got := b.View(6).Series(Perturbation)
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("P[%d] = %f, want %f", i, got[i], want[i])
		}
	}

	if err := b.WriteRange(4, Perturbation, []float64{1, 2, 3}, false); err == nil {
		t.Error("expected range error for overflowing write")
	}
	if v, _ := b.Read(4, Perturbation); v != 0 {
		t.Error("failed range write must not partially apply")
	}
}

func TestViewIsReadOnlyCopy(t *testing.T) {
	b := NewBuffer(4)
	_ = b.Write(0, Output, 1)
	_ = b.Write(1, Output, 2)
	_ = b.Write(2, Output, 3)

	v := b.View(2)
	if v.Len() != 2 || v.Last(Output) != 2 {
		t.Fatalf("unexpected view: len=%d last=%f", v.Len(), v.Last(Output))
	}
	s := v.Series(Output)
	s[0] = 99
	if got, _ := b.Read(0, Output); got != 1 {
		t.Error("Series must return a copy")
	}
	if v.At(Output, 2) != 0 {
		t.Error("samples past the view must not be visible")
	}
	if tail := v.Tail(Output, 5); len(tail) != 2 {
		t.Errorf("Tail should clamp to view length, got %d", len(tail))
	}
}

func TestTailBounds(t *testing.T) {
	b := NewBuffer(4)
	for i := 0; i < 4; i++ {
		_ = b.Write(i, Error, float64(i))
	}
	v := b.View(3)

	tests := []struct {
		name string
		k    int
		want []float64
	}{
		{"negative", -1, []float64{}},
		{"most negative", -1 << 62, []float64{}},
		{"zero", 0, []float64{}},
		{"partial", 2, []float64{1, 2}},
		{"past view", 10, []float64{0, 1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := v.Tail(Error, tt.k)
			if len(got) != len(tt.want) {
				t.Fatalf("Tail(%d) len = %d, want %d", tt.k, len(got), len(tt.want))
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Tail(%d)[%d] = %f, want %f", tt.k, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestFieldString(t *testing.T) {
	if Measured.String() != "measured" {
		t.Errorf("got %q", Measured.String())
	}
	if Field(42).String() != "field(42)" {
		t.Errorf("got %q", Field(42).String())
	}
}
