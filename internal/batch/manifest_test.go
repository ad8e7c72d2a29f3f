package batch

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestReadManifest(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []Task
	}{
		{name: "header", in: "origin_seed,run_seed\n1,10\n2, 20\n", want: []Task{{1, 10}, {2, 20}}},
		{name: "no header", in: "5,6\n7,8\n", want: []Task{{5, 6}, {7, 8}}},
		{name: "comments and blanks", in: "# seeds\n\n3,4\n", want: []Task{{3, 4}}},
		{name: "empty", in: "", want: nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ReadManifest(strings.NewReader(tc.in))
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("tasks mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReadManifestErrors(t *testing.T) {
	for name, in := range map[string]string{
		"three columns":  "1,2,3\n",
		"bad second row": "1,2\nx,3\n",
		"half header":    "origin,3\n",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := ReadManifest(strings.NewReader(in)); !errors.Is(err, ErrManifest) {
				t.Fatalf("expected ErrManifest, got %v", err)
			}
		})
	}
}

func TestManifestRoundTrip(t *testing.T) {
	tasks := []Task{{1, 2}, {-3, 4}}
	buf := &bytes.Buffer{}
	if err := WriteManifest(buf, tasks); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := ReadManifest(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if diff := cmp.Diff(tasks, got); diff != "" {
		t.Fatalf("round trip mismatch:\n%s", diff)
	}
	if (Task{OriginSeed: 1, RunSeed: 2}).Key() != "idsm_1_2" {
		t.Fatalf("unexpected key %s", Task{OriginSeed: 1, RunSeed: 2}.Key())
	}
}
