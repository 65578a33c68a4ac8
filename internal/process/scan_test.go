package process

import (
	"bufio"
	"reflect"
	"strings"
	"testing"
)

func TestScanLineSplitsOnCarriageReturn(t *testing.T) {
	scanner := bufio.NewScanner(strings.NewReader("frame=1\rframe=2\r\nDuration: x\n\nlast"))
	scanner.Split(scanLine)

	var got []string
	for scanner.Scan() {
		got = append(got, scanner.Text())
	}
	want := []string{"frame=1", "frame=2", "Duration: x", "last"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("lines = %q", got)
	}
}
