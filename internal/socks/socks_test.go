package socks

import (
	"errors"
	"testing"
)

func TestCursor(t *testing.T) {
	c := NewCursor([]byte{0x05, 0x01, 0xbb, 'a', 'b'})

	if got := c.Byte(); got != 0x05 {
		t.Fatalf("Byte() = %#x", got)
	}
	if got := c.Uint16(); got != 0x01bb {
		t.Fatalf("Uint16() = %#x", got)
	}
	if got := string(c.Bytes(2)); got != "ab" {
		t.Fatalf("Bytes(2) = %q", got)
	}
	if c.Short() || c.Offset() != 5 || c.Remaining() != 0 {
		t.Fatalf("short=%v offset=%d remaining=%d", c.Short(), c.Offset(), c.Remaining())
	}

	if got := c.Byte(); got != 0 || !c.Short() {
		t.Fatalf("read past end: %#x short=%v", got, c.Short())
	}
	// Short is sticky.
	if got := c.Bytes(0); got != nil {
		t.Fatalf("Bytes after short = %v", got)
	}
}

func TestCursorSkip(t *testing.T) {
	c := NewCursor([]byte{1, 2, 3})
	c.Skip(2)
	if c.Byte() != 3 {
		t.Fatal("Skip did not advance")
	}
	c.Skip(1)
	if !c.Short() {
		t.Fatal("Skip past end not short")
	}
}

func TestCursorIndexByte(t *testing.T) {
	tests := []struct {
		name      string
		in        []byte
		window    int
		want      int
		wantShort bool
	}{
		{name: "found", in: []byte("bob\x00rest"), window: 256, want: 3},
		{name: "found_at_window_edge", in: []byte("ab\x00"), window: 3, want: 2},
		{name: "need_more", in: []byte("bob"), window: 256, want: -1, wantShort: true},
		{name: "not_within_window", in: []byte("abcd\x00"), window: 4, want: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCursor(tt.in)
			if got := c.IndexByte(0, tt.window); got != tt.want {
				t.Fatalf("IndexByte = %d want %d", got, tt.want)
			}
			if c.Short() != tt.wantShort {
				t.Fatalf("short = %v", c.Short())
			}
		})
	}
}

func TestResult(t *testing.T) {
	cause := DecodeErrorf("unsupported version: %d", 6)

	tests := []struct {
		r        Result
		finished bool
		success  bool
		failure  bool
		str      string
	}{
		{Unfinished, false, false, false, "unfinished"},
		{Success, true, true, false, "success"},
		{Failure(cause), true, false, true, "failure(socks decode: unsupported version: 6)"},
	}
	for _, tt := range tests {
		if tt.r.IsFinished() != tt.finished || tt.r.IsSuccess() != tt.success || tt.r.IsFailure() != tt.failure {
			t.Errorf("%s: finished=%v success=%v failure=%v", tt.r, tt.r.IsFinished(), tt.r.IsSuccess(), tt.r.IsFailure())
		}
		if got := tt.r.String(); got != tt.str {
			t.Errorf("String() = %q want %q", got, tt.str)
		}
	}

	var de *DecodeError
	if !errors.As(Failure(cause).Cause(), &de) {
		t.Fatal("cause is not a *DecodeError")
	}
}

func TestFailureNilCausePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("no panic")
		}
	}()
	_ = Failure(nil)
}

func TestVersion(t *testing.T) {
	for v, want := range map[Version]string{
		Version4: "socks4",
		Version5: "socks5",
		0x47:     "UNKNOWN(71)",
	} {
		if got := v.String(); got != want {
			t.Errorf("%d: got %q want %q", byte(v), got, want)
		}
		if v.Known() != (want != "UNKNOWN(71)") {
			t.Errorf("%d: Known() = %v", byte(v), v.Known())
		}
	}

	if got := EnumString("", 0x80); got != "UNKNOWN(128)" {
		t.Errorf("EnumString = %q", got)
	}
}

func TestNormalizeHost(t *testing.T) {
	tests := []struct {
		in, want string
		wantErr  bool
	}{
		{in: "example.com", want: "example.com"},
		{in: "Example.COM", want: "Example.COM"},
		{in: "bücher.example", want: "xn--bcher-kva.example"},
		{in: "bad\xff.example", wantErr: true},
	}
	for _, tt := range tests {
		got, err := NormalizeHost(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("%q: err=%v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("%q: got %q want %q", tt.in, got, tt.want)
		}
	}
}
