package bitfield

import "testing"

func TestBitFieldSetClearTest(t *testing.T) {
	v := New(10)
	if v.Hex() != "0000" {
		t.Errorf("invalid value: %s", v.Hex())
	}

	v.Set(0)
	if v.Hex() != "8000" {
		t.Errorf("invalid value: %s", v.Hex())
	}

	v.Set(9)
	if v.Hex() != "8040" {
		t.Errorf("invalid value: %s", v.Hex())
	}

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Error("expected panic but not found")
			}
		}()
		v.Set(10)
	}()

	v.Clear(0)
	if v.Hex() != "0040" {
		t.Errorf("invalid value: %s", v.Hex())
	}

	if v.Test(2) {
		t.Errorf("test is not correct: %s", v.Hex())
	}

	if !v.Test(9) {
		t.Errorf("test is not correct: %s", v.Hex())
	}
}

func TestBitFieldNewBytes(t *testing.T) {
	buf := []byte{0x0f}

	v := NewBytes(buf, 8)
	if v.Hex() != "0f" {
		t.Errorf("invalid value: %s", v.Hex())
	}

	v = NewBytes(append([]byte{}, buf...), 7)
	if v.Hex() != "0e" {
		t.Errorf("invalid value: %s", v.Hex())
	}

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Error("expected panic but not found")
			}
		}()
		NewBytes(buf, 9)
	}()
}

func TestBitFieldCountAndAll(t *testing.T) {
	v := New(5)
	if v.Count() != 0 {
		t.Errorf("expected 0, got %d", v.Count())
	}
	if v.All() {
		t.Error("empty bitfield should not report All")
	}

	for i := uint32(0); i < 5; i++ {
		v.Set(i)
	}
	if v.Count() != 5 {
		t.Errorf("expected 5, got %d", v.Count())
	}
	if !v.All() {
		t.Error("fully set bitfield should report All")
	}

	v.ClearAll()
	if v.Count() != 0 {
		t.Errorf("expected 0 after ClearAll, got %d", v.Count())
	}
}
