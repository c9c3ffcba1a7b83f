package deb

import (
	"bytes"
	"testing"

	"github.com/blakesmith/ar"
)

func TestBumpVersion(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"1.0.0", "1.0.0-1"},
		{"1.0.0-1", "1.0.0-2"},
		{"1.0.0-9", "1.0.0-10"},
		{"1.0.0-1a", "1.0.0-1b"},
		{"1.0.0-19", "1.0.0-1a"},
		{"1.0.0-1z", "1.0.0-1z0"},
		{"1.0.0-", "1.0.0-1"},
	}
	for _, c := range cases {
		if got := BumpVersion(c.in); got != c.want {
			t.Errorf("BumpVersion(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestAddBufferToArDeterministic(t *testing.T) {
	body := []byte("2.0\n")

	var buf1, buf2 bytes.Buffer
	w1 := ar.NewWriter(&buf1)
	w2 := ar.NewWriter(&buf2)
	if err := w1.WriteGlobalHeader(); err != nil {
		t.Fatal(err)
	}
	if err := w2.WriteGlobalHeader(); err != nil {
		t.Fatal(err)
	}
	if err := addBufferToAr(w1, "debian-binary", body); err != nil {
		t.Fatal(err)
	}
	if err := addBufferToAr(w2, "debian-binary", body); err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(buf1.Bytes(), buf2.Bytes()) {
		t.Fatal("two writes of the same content produced different ar bytes; mtime/mode must be fixed")
	}
}

func TestNewGzipWriterDeterministic(t *testing.T) {
	payload := []byte("hello, deterministic world")

	compress := func() []byte {
		var buf bytes.Buffer
		gw := newGzipWriter(&buf, false)
		if _, err := gw.Write(payload); err != nil {
			t.Fatal(err)
		}
		if err := gw.Close(); err != nil {
			t.Fatal(err)
		}
		return buf.Bytes()
	}

	a := compress()
	b := compress()
	if !bytes.Equal(a, b) {
		t.Fatal("gzip output differs across runs of identical input")
	}
}

func TestParseControlFileRoundTrip(t *testing.T) {
	content := "Package: foo\n" +
		"Version: 1.0.0-1\n" +
		"Architecture: amd64\n" +
		"Description: short summary\n" +
		" a longer line\n" +
		" .\n" +
		" another paragraph\n"

	fields := parseControlFile(content)
	if len(fields) != 4 {
		t.Fatalf("got %d fields, want 4: %+v", len(fields), fields)
	}
	if fields[0].Field != FieldPackage || fields[0].Value != "foo" {
		t.Errorf("field[0] = %+v", fields[0])
	}
	if fields[3].Field != FieldDescription {
		t.Fatalf("field[3].Field = %q, want Description", fields[3].Field)
	}
	if !bytes.Contains([]byte(fields[3].Value), []byte("a longer line")) {
		t.Errorf("description continuation lines not reattached: %q", fields[3].Value)
	}
}

func TestNewXZWriterFastWritesOutput(t *testing.T) {
	var buf bytes.Buffer
	w, err := newXZWriter(&buf, true)
	if err != nil {
		t.Fatalf("newXZWriter: %v", err)
	}
	if _, err := w.Write([]byte("hello, fast xz world")); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if buf.Len() == 0 {
		t.Fatal("expected xz output")
	}
}

func TestSplitList(t *testing.T) {
	if got := splitList(""); got != nil {
		t.Errorf("splitList(\"\") = %v, want nil", got)
	}
	got := splitList("a, b,c")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("splitList = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("splitList[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
