package frame_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/gaby/sparse-stream/internal/errs"
	"github.com/gaby/sparse-stream/internal/frame"
)

func TestWriteHeaderLength(t *testing.T) {
	cases := []struct {
		kind          frame.Kind
		start, length uint64
	}{
		{frame.Meta, 0, 0},
		{frame.Data, 0x40100000, 0x1000},
		{frame.Zero, 0, 0xffffffffffffffff},
		{frame.Stop, 0, 0},
	}
	for _, c := range cases {
		var buf bytes.Buffer
		if err := frame.WriteHeader(&buf, c.kind, c.start, c.length); err != nil {
			t.Fatalf("WriteHeader(%v): %v", c.kind, err)
		}
		if buf.Len() != 40 {
			t.Fatalf("header length = %d, want 40", buf.Len())
		}
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	cases := []struct {
		kind          frame.Kind
		start, length uint64
	}{
		{frame.Meta, 0, 90},
		{frame.Data, 0x40100000, 0x1000},
		{frame.Zero, 0x100000, 0x4000000},
		{frame.Stop, 0, 0},
	}
	for _, c := range cases {
		var buf bytes.Buffer
		if err := frame.WriteHeader(&buf, c.kind, c.start, c.length); err != nil {
			t.Fatalf("WriteHeader: %v", err)
		}
		k, s, l, err := frame.ReadHeader(&buf)
		if err != nil {
			t.Fatalf("ReadHeader: %v", err)
		}
		if k != c.kind || s != c.start || l != c.length {
			t.Fatalf("got (%v,%x,%x), want (%v,%x,%x)", k, s, l, c.kind, c.start, c.length)
		}
	}
}

func TestReferenceHeaderShape(t *testing.T) {
	var buf bytes.Buffer
	if err := frame.WriteHeader(&buf, frame.Data, 0x40100000, 0x1000); err != nil {
		t.Fatal(err)
	}
	got := buf.String()
	want := "data 0000000040100000 0000000000001000\r\n"
	if got != want {
		t.Fatalf("header = %q, want %q", got, want)
	}
}

func TestReadHeaderMalformed(t *testing.T) {
	cases := map[string]string{
		"short":              "data 0000000040100000 0000000000001000",
		"bad kind":           "xdat 0000000040100000 0000000000001000\r\n",
		"bad hex start":      "data 000000004010000z 0000000000001000\r\n",
		"bad hex length":     "data 0000000040100000 000000000000100z\r\n",
		"missing crlf":       "data 0000000040100000 0000000000001000XX",
		"missing separators": "dataX0000000040100000X0000000000001000\r\n",
	}
	for name, wire := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, _, err := frame.ReadHeader(strings.NewReader(wire))
			if !errors.Is(err, errs.ErrMalformedFrame) && !errors.Is(err, errs.ErrShortIO) {
				t.Fatalf("err = %v, want ErrMalformedFrame or ErrShortIO", err)
			}
		})
	}
}

func TestExpectCRLF(t *testing.T) {
	if err := frame.ExpectCRLF(strings.NewReader("\r\n")); err != nil {
		t.Fatalf("ExpectCRLF: %v", err)
	}
	err := frame.ExpectCRLF(strings.NewReader("XX"))
	if !errors.Is(err, errs.ErrMalformedFrame) {
		t.Fatalf("err = %v, want ErrMalformedFrame", err)
	}
	err = frame.ExpectCRLF(strings.NewReader("\r"))
	if !errors.Is(err, errs.ErrShortIO) {
		t.Fatalf("err = %v, want ErrShortIO", err)
	}
}

func TestWriteHeaderInvalidKindPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on invalid kind")
		}
	}()
	var buf bytes.Buffer
	_ = frame.WriteHeader(&buf, frame.Kind("nope"), 0, 0)
}
