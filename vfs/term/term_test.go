package term

import (
	"testing"

	"golang.org/x/sys/unix"

	"dennix/devctl"
	"dennix/vfs"
)

type fakeSignaler struct {
	raised []int
}

func (f *fakeSignaler) RaiseForegroundSignal(sig int) { f.raised = append(f.raised, sig) }

func TestCanonicalReadBlocksUntilNewline(t *testing.T) {
	sig := &fakeSignaler{}
	tm := New(sig)
	done := make(chan string)
	go func() {
		dst := make([]byte, 16)
		n, _ := tm.Read(dst)
		done <- string(dst[:n])
	}()
	for _, b := range []byte("hi") {
		tm.KeyInput(b)
	}
	select {
	case <-done:
		t.Fatal("Read returned before a line was committed")
	default:
	}
	tm.KeyInput('\n')
	got := <-done
	if got != "hi\n" {
		t.Fatalf("got %q, want %q", got, "hi\n")
	}
}

func TestEraseRemovesUncommittedByte(t *testing.T) {
	sig := &fakeSignaler{}
	tm := New(sig)
	for _, b := range []byte("hit") {
		tm.KeyInput(b)
	}
	tm.KeyInput(0x7f) // erase the 't'
	tm.KeyInput('\n')
	dst := make([]byte, 16)
	n, _ := tm.Read(dst)
	if string(dst[:n]) != "hi\n" {
		t.Fatalf("got %q, want %q", dst[:n], "hi\n")
	}
}

func TestKillErasesEntireUncommittedLine(t *testing.T) {
	sig := &fakeSignaler{}
	tm := New(sig)
	for _, b := range []byte("garbage") {
		tm.KeyInput(b)
	}
	tm.KeyInput(0x15) // kill
	for _, b := range []byte("ok") {
		tm.KeyInput(b)
	}
	tm.KeyInput('\n')
	dst := make([]byte, 16)
	n, _ := tm.Read(dst)
	if string(dst[:n]) != "ok\n" {
		t.Fatalf("got %q, want %q", dst[:n], "ok\n")
	}
}

func TestRawModeCommitsEveryByte(t *testing.T) {
	sig := &fakeSignaler{}
	tm := New(sig)
	tm.Tcsetattr(false, true)
	tm.KeyInput('x')
	dst := make([]byte, 1)
	n, _ := tm.Read(dst)
	if n != 1 || dst[0] != 'x' {
		t.Fatalf("raw mode should commit immediately, got n=%d dst=%v", n, dst)
	}
}

func TestCtrlCRaisesSIGINTInCanonicalMode(t *testing.T) {
	sig := &fakeSignaler{}
	tm := New(sig)
	tm.KeyInput(0x03)
	if len(sig.raised) != 1 || sig.raised[0] != SIGINT {
		t.Fatalf("expected a single SIGINT, got %v", sig.raised)
	}
}

func TestCtrlCDoesNotRaiseInRawMode(t *testing.T) {
	sig := &fakeSignaler{}
	tm := New(sig)
	tm.Tcsetattr(false, true)
	tm.KeyInput(0x03)
	if len(sig.raised) != 0 {
		t.Fatalf("raw mode should pass ^C through as data, got signals %v", sig.raised)
	}
}

func TestDevctlWinsizeRoundTrip(t *testing.T) {
	tm := New(&fakeSignaler{})
	want := unix.Winsize{Row: 24, Col: 80}
	if _, err := tm.Devctl(devctl.TIOCSWINSZ, want); err != 0 {
		t.Fatalf("TIOCSWINSZ: %v", err)
	}
	got, err := tm.Devctl(devctl.TIOCGWINSZ, nil)
	if err != 0 {
		t.Fatalf("TIOCGWINSZ: %v", err)
	}
	ws, ok := got.(unix.Winsize)
	if !ok || ws != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestDevctlForegroupGroupRoundTrip(t *testing.T) {
	tm := New(&fakeSignaler{})
	if _, err := tm.Devctl(devctl.TIOCSPGRP, 42); err != 0 {
		t.Fatalf("TIOCSPGRP: %v", err)
	}
	got, err := tm.Devctl(devctl.TIOCGPGRP, nil)
	if err != 0 {
		t.Fatalf("TIOCGPGRP: %v", err)
	}
	if got.(int) != 42 {
		t.Fatalf("got %v, want 42", got)
	}
}

func TestDevctlUnknownCommandReturnsENOTTY(t *testing.T) {
	tm := New(&fakeSignaler{})
	if _, err := tm.Devctl(0xdeadbeef, nil); err == 0 {
		t.Fatal("expected ENOTTY for an unrecognized command")
	}
}

func TestTcsetattrTcgetattrRoundTrip(t *testing.T) {
	tm := New(&fakeSignaler{})
	tm.Tcsetattr(false, false)
	canonical, echo := tm.Tcgetattr()
	if canonical != false || echo != false {
		t.Fatalf("got (canonical=%v, echo=%v), want (false, false)", canonical, echo)
	}
	tm.Tcsetattr(true, true)
	canonical, echo = tm.Tcgetattr()
	if canonical != true || echo != true {
		t.Fatalf("got (canonical=%v, echo=%v), want (true, true)", canonical, echo)
	}
}

func TestReadOfZeroBytesReturnsImmediately(t *testing.T) {
	tm := New(&fakeSignaler{})
	n, err := tm.Read(nil)
	if n != 0 || err != 0 {
		t.Fatalf("Read(nil) = (%d, %v), want (0, 0)", n, err)
	}
}

func TestPollReportsReadableOnlyAfterLineCommit(t *testing.T) {
	tm := New(&fakeSignaler{})
	if r := tm.Poll(vfs.POLLIN | vfs.POLLOUT); r&vfs.POLLIN != 0 {
		t.Fatal("should not be readable before any line is committed")
	}
	for _, b := range []byte("hi\n") {
		tm.KeyInput(b)
	}
	r := tm.Poll(vfs.POLLIN | vfs.POLLOUT)
	if r&vfs.POLLIN == 0 {
		t.Fatal("should be readable once a line is committed")
	}
	if r&vfs.POLLOUT == 0 {
		t.Fatal("terminal should always be writable")
	}
}
