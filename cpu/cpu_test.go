package cpu

import "testing"

func TestFakeRecordsSatpWrites(t *testing.T) {
	f := &Fake{}
	w := f.Writer()
	w(0x8000000000123)
	w(0x8000000000456)

	if len(f.Writes) != 2 || f.Writes[0] != 0x8000000000123 {
		t.Fatalf("unexpected recorded writes: %#v", f.Writes)
	}
}
