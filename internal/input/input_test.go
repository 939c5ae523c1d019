package input

import (
	"reflect"
	"strings"
	"testing"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "0200ABCD", "0200ABCD"},
		{"surrounding space", "  0200ABCD \n", "0200ABCD"},
		{"wrapped", "0200\n  4000000000000000\r\n\n03USD  ", "0200400000000000000003USD"},
		{"blank", " \n\t\n", ""},
		{"inner spaces kept", "02 00", "02 00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.in); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSplit(t *testing.T) {
	contents := "ISO0160000100200ABC\r\n?\n 0800DEF\nGHI ?  ? \n"
	want := []string{"ISO0160000100200ABC", "0800DEFGHI"}
	if got := Split(contents, ""); !reflect.DeepEqual(got, want) {
		t.Errorf("Split = %q, want %q", got, want)
	}

	if got := Split("a|b||c", "|"); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("Split with custom delimiter = %q", got)
	}
}

func TestReadAllPlain(t *testing.T) {
	msgs, st, err := ReadAll(strings.NewReader("0200AAA?\n0210BBB?\n"), "?")
	if err != nil {
		t.Fatalf("ReadAll error: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Raw != "0200AAA" || msgs[1].Raw != "0210BBB" {
		t.Errorf("messages = %+v", msgs)
	}
	if msgs[1].Line != 2 {
		t.Errorf("msgs[1].Line = %d, want 2", msgs[1].Line)
	}
	if st.PlainChunks != 2 || st.JSONLines != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestReadAllJSONL(t *testing.T) {
	data := strings.Join([]string{
		`{"isoMessage": "0200AAA\n  BBB", "source": "pos-1", "id": "42"}`,
		`{"payload": {"raw": "0210CCC", "id": 7}, "source": {"name": "switch"}}`,
		``,
		`{"unrelated": true}`,
		`not json`,
	}, "\n")

	msgs, st, err := ReadAll(strings.NewReader(data), "")
	if err != nil {
		t.Fatalf("ReadAll error: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("len(msgs) = %d, want 2", len(msgs))
	}

	if msgs[0].Raw != "0200AAABBB" || msgs[0].Source != "pos-1" || msgs[0].ID != 42 {
		t.Errorf("msgs[0] = %+v", msgs[0])
	}
	if msgs[1].Raw != "0210CCC" || msgs[1].Source != "switch" || msgs[1].ID != 7 || msgs[1].Line != 2 {
		t.Errorf("msgs[1] = %+v", msgs[1])
	}
	if st.JSONLines != 2 || st.Skipped != 2 || st.Lines != 5 {
		t.Errorf("stats = %+v", st)
	}
}

func TestFlexInt64(t *testing.T) {
	tests := []struct {
		in   string
		want FlexInt64
	}{
		{`{"isoMessage": "x", "id": 12}`, 12},
		{`{"isoMessage": "x", "id": "12"}`, 12},
		{`{"isoMessage": "x", "id": "abc"}`, 0},
		{`{"isoMessage": "x", "id": ""}`, 0},
	}
	for _, tt := range tests {
		msg, ok := DecodeEnvelope([]byte(tt.in))
		if !ok {
			t.Errorf("DecodeEnvelope(%s) not ok", tt.in)
			continue
		}
		if msg.ID != tt.want {
			t.Errorf("DecodeEnvelope(%s).ID = %d, want %d", tt.in, msg.ID, tt.want)
		}
	}
}
