package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	if got := AtoiDefault("42", 0); got != 42 {
		t.Fatalf("got %d, want 42", got)
	}
	if got := AtoiDefault("", 10); got != 10 {
		t.Fatalf("got %d, want 10", got)
	}
	if got := AtoiDefault("x", 5); got != 5 {
		t.Fatalf("got %d, want 5", got)
	}
}

func TestClampPage(t *testing.T) {
	cases := []struct {
		page, pageSize, def, max int
		wantPage, wantSize       int
	}{
		{0, 0, 20, 100, 1, 20},
		{-3, -1, 20, 100, 1, 20},
		{2, 50, 20, 100, 2, 50},
		{1, 500, 20, 100, 1, 100},
		{1, 500, 20, 0, 1, 500}, // max 0 disables the cap
	}
	for _, tc := range cases {
		p, s := ClampPage(tc.page, tc.pageSize, tc.def, tc.max)
		if p != tc.wantPage || s != tc.wantSize {
			t.Fatalf("ClampPage(%d,%d,%d,%d) = (%d,%d), want (%d,%d)",
				tc.page, tc.pageSize, tc.def, tc.max, p, s, tc.wantPage, tc.wantSize)
		}
	}
}
