package hostglob

import (
	"slices"
	"strings"
	"testing"
)

func TestSplitNodeList(t *testing.T) {
	xs, err := SplitNodeList("della-r1c[1-3,7],della-l01g4,tiger-h[12-13].princeton.edu")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(xs, []string{"della-r1c[1-3,7]", "della-l01g4", "tiger-h[12-13].princeton.edu"}) {
		t.Fatalf("Split: %v", xs)
	}
	for _, bad := range []string{"a[1,b", "a]", "a,,b", "a[[1]]", "a,"} {
		if _, err := SplitNodeList(bad); err == nil {
			t.Errorf("Expected failure for %q", bad)
		}
	}
}

func TestExpandNodeList(t *testing.T) {
	hosts, err := ExpandNodeList("della-r1c[1-3,7],della-l01g4")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"della-r1c1", "della-r1c2", "della-r1c3", "della-r1c7", "della-l01g4"}
	if !slices.Equal(hosts, want) {
		t.Fatalf("Expand: %v", hosts)
	}

	hosts, err = ExpandNodeList("stellar-m[08-10]n1")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(hosts, []string{"stellar-m08n1", "stellar-m09n1", "stellar-m10n1"}) {
		t.Fatalf("Zero padding lost: %v", hosts)
	}

	hosts, err = ExpandNodeList("c[1-2].d[3,4]")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(hosts, []string{"c1.d3", "c1.d4", "c2.d3", "c2.d4"}) {
		t.Fatalf("Multi-element: %v", hosts)
	}

	for _, empty := range []string{"", "None assigned", "(null)"} {
		hosts, err := ExpandNodeList(empty)
		if err != nil || len(hosts) != 0 {
			t.Errorf("Expected nothing for %q: %v %v", empty, hosts, err)
		}
	}

	for _, bad := range []string{"c[3-1]", "c[]", "c[x]", "c[1-]", ".c"} {
		if _, err := ExpandNodeList(bad); err == nil {
			t.Errorf("Expected failure for %q", bad)
		}
	}
}

func TestCompressHostnames(t *testing.T) {
	hosts := []string{"c3", "c1", "c2", "c7", "login", "c08.a", "c09.a", "c1"}
	s := CompressHostnames(hosts)
	if s != "c[08-09].a,c[1-3,7],login" {
		t.Fatalf("Compress: %s", s)
	}
	reversed := slices.Clone(hosts)
	slices.Reverse(reversed)
	if CompressHostnames(reversed) != s {
		t.Fatalf("Order dependent")
	}
	expanded, err := ExpandNodeList(s)
	if err != nil {
		t.Fatal(err)
	}
	slices.Sort(expanded)
	if strings.Join(expanded, ",") != "c08.a,c09.a,c1,c2,c3,c7,login" {
		t.Fatalf("Round trip: %v", expanded)
	}
}
