package symlink

import (
	"testing"

	"dennix/ustr"
)

func TestGetLinkTargetReturnsOwnedCopy(t *testing.T) {
	s := New(ustr.Ustr("target/path"))
	got, err := s.GetLinkTarget()
	if err != 0 {
		t.Fatalf("GetLinkTarget: %v", err)
	}
	if got.String() != "target/path" {
		t.Fatalf("got %q, want %q", got, "target/path")
	}
	got[0] = 'X'
	again, _ := s.GetLinkTarget()
	if again.String() != "target/path" {
		t.Fatal("mutating a returned target must not affect the symlink's stored target")
	}
}

func TestStatReportsLinkModeAndSize(t *testing.T) {
	s := New(ustr.Ustr("abc"))
	st, err := s.Stat()
	if err != 0 {
		t.Fatalf("Stat: %v", err)
	}
	if st.Size != 3 {
		t.Fatalf("Size = %d, want 3", st.Size)
	}
}
