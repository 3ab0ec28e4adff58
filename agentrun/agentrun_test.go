package agentrun

import (
	"bytes"
	"strings"
	"testing"
)

func TestRelayTagsProtocolLinesOnly(t *testing.T) {
	input := strings.NewReader("SET FOO=bar\nbuilding widget.o\nSTATUS \"working\"\nPUSH\nrandom output\n")
	var out bytes.Buffer

	if err := relay(input, &out, "PFX: "); err != nil {
		t.Fatal(err)
	}

	want := "PFX: SET FOO=bar\nbuilding widget.o\nPFX: STATUS \"working\"\nPFX: PUSH\nrandom output\n"
	if out.String() != want {
		t.Fatalf("got:\n%q\nwant:\n%q", out.String(), want)
	}
}

func TestLooksLikeProtocolLine(t *testing.T) {
	yes := []string{"SET FOO=bar", "SET_RO X=1", "STATUS \"hi\"", "ADD_DEPENDENCY name=x", "PUSH", "POP"}
	no := []string{"setting up", "a STATUS report follows", "", "pushed a tag"}
	for _, l := range yes {
		if !looksLikeProtocolLine(l) {
			t.Errorf("expected %q to look like a protocol line", l)
		}
	}
	for _, l := range no {
		if looksLikeProtocolLine(l) {
			t.Errorf("did not expect %q to look like a protocol line", l)
		}
	}
}
