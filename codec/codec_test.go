package codec

import (
	"errors"
	"strings"
	"testing"
)

func sampleDoc() Document {
	return Document{"field_0": strings.Repeat("a", 32), "field_1": "b", "field_2": ""}
}

func TestDocumentCodecsPreserveDocument(t *testing.T) {
	for _, name := range DocumentCodecs() {
		t.Run(name, func(t *testing.T) {
			cd, err := ForDocument(name, 0)
			if err != nil {
				t.Fatal(err)
			}
			b, err := cd.Encode(sampleDoc())
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			got, err := cd.Decode(b)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			want := sampleDoc()
			if len(got) != len(want) {
				t.Fatalf("len=%d want %d", len(got), len(want))
			}
			for k, v := range want {
				if got[k] != v {
					t.Fatalf("field %s=%q want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestForDocumentDefaultsToJSON(t *testing.T) {
	cd, err := ForDocument("", 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := cd.(JSON[Document]); !ok {
		t.Fatalf("got %T want JSON", cd)
	}
}

func TestForDocumentUnknown(t *testing.T) {
	if _, err := ForDocument("xml", 0); err == nil {
		t.Fatal("expected error for unknown codec")
	}
}

func TestLimitRejectsOversized(t *testing.T) {
	cd, err := ForDocument("msgpack", 8)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cd.Encode(sampleDoc()); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("encode err=%v want ErrTooLarge", err)
	}
	b, err := (Msgpack[Document]{}).Encode(sampleDoc())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cd.Decode(b); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("decode err=%v want ErrTooLarge", err)
	}
}

func TestMsgpackIsStableForEqualDocuments(t *testing.T) {
	a, err := (Msgpack[Document]{}).Encode(Document{"b": "2", "a": "1", "c": "3"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := (Msgpack[Document]{}).Encode(Document{"c": "3", "a": "1", "b": "2"})
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Fatal("equal documents encoded differently")
	}
}

func TestCBORRejectsDuplicateFields(t *testing.T) {
	cd, err := NewCBOR[Document](true)
	if err != nil {
		t.Fatal(err)
	}
	// map(2) {"a": "x", "a": "y"}
	b := []byte{0xa2, 0x61, 'a', 0x61, 'x', 0x61, 'a', 0x61, 'y'}
	if _, err := cd.Decode(b); err == nil {
		t.Fatal("expected duplicate key error")
	}
}

func TestStructRejectsNonStringField(t *testing.T) {
	// field "n" holding number_value 1: tag 1 (fields map entry) -> key "n", value {number_value: 1.0}
	b := []byte{0x0a, 0x0e, 0x0a, 0x01, 'n', 0x12, 0x09, 0x11, 0, 0, 0, 0, 0, 0, 0xf0, 0x3f}
	if _, err := (Struct{}).Decode(b); err == nil {
		t.Fatal("expected error for non-string field")
	}
}
