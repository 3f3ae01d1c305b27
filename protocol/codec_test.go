package protocol

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestClientRoundTrip(t *testing.T) {
	positions := []Position{
		{0, 0}, {10, 20}, {-5, 7}, {400, -300},
		{math.MaxInt32, math.MinInt32}, {math.MaxInt, math.MinInt},
	}
	for _, p := range positions {
		for _, m := range []ClientMessage{Join{Pos: p}, Move{Pos: p}, Leave{}} {
			got, err := DecodeClient(EncodeClient(m))
			if err != nil {
				t.Fatalf("decode %q: %v", EncodeClient(m), err)
			}
			if got != m {
				t.Fatalf("round trip %#v: got %#v", m, got)
			}
		}
	}
}

func TestServerRoundTrip(t *testing.T) {
	ids := []PlayerID{"a", "9c1f6a5e-2f7b-4c0e-9d55-1a2b3c4d5e6f", "玩家"}
	for _, id := range ids {
		for _, m := range []ServerMessage{Update{ID: id, Pos: Position{15, -20}}, Remove{ID: id}} {
			got, err := DecodeServer(EncodeServer(m))
			if err != nil {
				t.Fatalf("decode %q: %v", EncodeServer(m), err)
			}
			if got != m {
				t.Fatalf("round trip %#v: got %#v", m, got)
			}
		}
	}
}

func TestWireForms(t *testing.T) {
	cases := []struct {
		got  []byte
		want string
	}{
		{EncodeClient(Join{Pos: Position{10, 20}}), "Connected pos:10,20"},
		{EncodeClient(Move{Pos: Position{15, 20}}), "moved to:15,20"},
		{EncodeClient(Leave{}), "Disconnected"},
		{EncodeServer(Update{ID: "A", Pos: Position{10, 20}}), "UPDATE|A|10,20"},
		{EncodeServer(Remove{ID: "A"}), "REMOVE|A"},
	}
	for _, c := range cases {
		if string(c.got) != c.want {
			t.Errorf("got %q, want %q", c.got, c.want)
		}
	}
}

func TestDecodeToleratesLineTerminator(t *testing.T) {
	m, err := DecodeClient([]byte("moved to:1,2\r\n"))
	if err != nil {
		t.Fatal(err)
	}
	if m != (Move{Pos: Position{1, 2}}) {
		t.Fatalf("got %#v", m)
	}
}

func TestDecodeClientMalformed(t *testing.T) {
	inputs := []string{
		"",
		"Connected",
		"Connected pos:",
		"Connected pos:1",
		"Connected pos:1,2,3",
		"Connected pos:a,2",
		"Connected pos:1, 2",
		"moved to:1.5,2",
		"moved to:,",
		"moved to:99999999999999999999999,1",
		"Disconnected now",
		"disconnected",
		"UPDATE|A|1,2",
		"\xff\xfe",
		strings.Repeat("x", MaxMessageSize+1),
	}
	for _, in := range inputs {
		m, err := DecodeClient([]byte(in))
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("DecodeClient(%q) = %#v, %v; want ErrMalformed", truncate(in), m, err)
		}
	}
}

func TestDecodeServerMalformed(t *testing.T) {
	inputs := []string{
		"",
		"UPDATE",
		"UPDATE|A",
		"UPDATE|A|1",
		"UPDATE|A|1,2|extra",
		"UPDATE||1,2",
		"UPDATE|A|x,2",
		"REMOVE",
		"REMOVE|",
		"REMOVE|A|B",
		"update|A|1,2",
		"Connected pos:1,2",
	}
	for _, in := range inputs {
		m, err := DecodeServer([]byte(in))
		if !errors.Is(err, ErrMalformed) {
			t.Errorf("DecodeServer(%q) = %#v, %v; want ErrMalformed", in, m, err)
		}
	}
}

func TestValidID(t *testing.T) {
	if !ValidID("abc") {
		t.Error("abc should be valid")
	}
	for _, id := range []PlayerID{"", "a|b", "a\nb"} {
		if ValidID(id) {
			t.Errorf("%q should be invalid", id)
		}
	}
}

func TestAppendFrame(t *testing.T) {
	got := AppendFrame(nil, []byte("REMOVE|A"))
	if string(got) != "REMOVE|A\n" {
		t.Fatalf("got %q", got)
	}
}
