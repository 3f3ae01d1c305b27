package transport

import (
	"errors"
	"io"
	"strings"
	"testing"

	"posrelay/protocol"
)

func TestFrameReader(t *testing.T) {
	long := strings.Repeat("x", protocol.MaxMessageSize*3)
	in := "Connected pos:1,2\n\r\n\nmoved to:3,4\r\n" + long + "\nDisconnected"
	fr := NewFrameReader(strings.NewReader(in))

	want := []string{"Connected pos:1,2", "moved to:3,4"}
	for _, w := range want {
		got, err := fr.Next()
		if err != nil || string(got) != w {
			t.Fatalf("got %q, %v; want %q", got, err, w)
		}
	}
	if _, err := fr.Next(); !errors.Is(err, protocol.ErrMalformed) {
		t.Fatalf("oversize frame: %v", err)
	}
	got, err := fr.Next()
	if err != nil || string(got) != "Disconnected" {
		t.Fatalf("unterminated tail: %q, %v", got, err)
	}
	if _, err := fr.Next(); err != io.EOF {
		t.Fatalf("want EOF, got %v", err)
	}
}

func TestFrameReaderMaxSize(t *testing.T) {
	exact := strings.Repeat("y", protocol.MaxMessageSize)
	fr := NewFrameReader(strings.NewReader(exact + "\n"))
	got, err := fr.Next()
	if err != nil || len(got) != protocol.MaxMessageSize {
		t.Fatalf("len=%d err=%v", len(got), err)
	}
}

func TestFrameReaderMaxSizeCRLF(t *testing.T) {
	exact := strings.Repeat("y", protocol.MaxMessageSize)
	fr := NewFrameReader(strings.NewReader(exact + "\r\n" + exact + "z\n"))
	got, err := fr.Next()
	if err != nil || len(got) != protocol.MaxMessageSize {
		t.Fatalf("len=%d err=%v", len(got), err)
	}
	// 多出的一个字节交给解码器判定
	got, err = fr.Next()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := protocol.DecodeClient(got); !errors.Is(err, protocol.ErrMalformed) {
		t.Fatalf("decode oversize: %v", err)
	}
}
