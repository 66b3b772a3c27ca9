package optimize

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNearestNeighbour(t *testing.T) {
	tests := []struct {
		name      string
		distances [][]float64
		wantOrder []int
		wantTotal float64
	}{
		{
			name:      "two points",
			distances: [][]float64{{0, 7.5}, {7.5, 0}},
			wantOrder: []int{0, 1},
			wantTotal: 7.5,
		},
		{
			name: "greedy picks closest intermediate",
			distances: [][]float64{
				{0, 10, 2, 9},
				{10, 0, 3, 1},
				{2, 3, 0, 8},
				{9, 1, 8, 0},
			},
			wantOrder: []int{0, 2, 1, 3},
			wantTotal: 2 + 3 + 1,
		},
		{
			name: "ties resolve to lowest index",
			distances: [][]float64{
				{0, 4, 4, 1},
				{4, 0, 5, 1},
				{4, 5, 0, 1},
				{1, 1, 1, 0},
			},
			wantOrder: []int{0, 1, 2, 3},
			wantTotal: 4 + 5 + 1,
		},
		{
			name: "end stays last even when closest",
			distances: [][]float64{
				{0, 5, 0.5},
				{5, 0, 6},
				{0.5, 6, 0},
			},
			wantOrder: []int{0, 1, 2},
			wantTotal: 11,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, total, err := NearestNeighbour(tt.distances)
			if err != nil {
				t.Fatalf("NearestNeighbour: %v", err)
			}
			if diff := cmp.Diff(tt.wantOrder, order); diff != "" {
				t.Fatalf("order mismatch (-want +got):\n%s", diff)
			}
			if total != tt.wantTotal {
				t.Fatalf("total = %v, want %v", total, tt.wantTotal)
			}
		})
	}
}

func TestNearestNeighbourRejectsBadMatrix(t *testing.T) {
	if _, _, err := NearestNeighbour([][]float64{{0}}); err == nil {
		t.Fatalf("expected error for single point")
	}
	if _, _, err := NearestNeighbour([][]float64{{0, 1}, {1}}); err == nil {
		t.Fatalf("expected error for ragged matrix")
	}
}
