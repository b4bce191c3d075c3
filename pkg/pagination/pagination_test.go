package pagination

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   Params
		max  int
		want Params
	}{
		{name: "defaults", in: Params{}, max: 50, want: Params{Page: 1, Limit: DefaultLimit}},
		{name: "clamps limit", in: Params{Page: 2, Limit: 500}, max: 50, want: Params{Page: 2, Limit: 50}},
		{name: "falls back to max limit", in: Params{Page: 1, Limit: 500}, max: 0, want: Params{Page: 1, Limit: MaxLimit}},
		{name: "negative page", in: Params{Page: -3, Limit: 5}, max: 50, want: Params{Page: 1, Limit: 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.Normalize(tt.max); got != tt.want {
				t.Fatalf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestOffset(t *testing.T) {
	if got := (Params{Page: 1, Limit: 10}).Offset(); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if got := (Params{Page: 3, Limit: 10}).Offset(); got != 20 {
		t.Fatalf("expected 20, got %d", got)
	}
}
