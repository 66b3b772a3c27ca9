package optimize

import "fmt"

// NearestNeighbour orders the points of a square distance matrix. The first
// point is the fixed start and the last the fixed end; intermediate points are
// visited greedily by shortest leg, ties going to the lowest index. It returns
// the visiting order and the summed distance along it.
func NearestNeighbour(distances [][]float64) ([]int, float64, error) {
	n := len(distances)
	if n < 2 {
		return nil, 0, fmt.Errorf("optimize: need at least two points, got %d", n)
	}
	for i, row := range distances {
		if len(row) != n {
			return nil, 0, fmt.Errorf("optimize: row %d has %d columns, want %d", i, len(row), n)
		}
	}

	end := n - 1
	visited := make([]bool, n)
	order := make([]int, 0, n)
	order = append(order, 0)
	visited[0] = true
	current := 0
	var total float64

	for len(order) < end {
		next := -1
		for j := 1; j < end; j++ {
			if visited[j] {
				continue
			}
			if next == -1 || distances[current][j] < distances[current][next] {
				next = j
			}
		}
		total += distances[current][next]
		visited[next] = true
		order = append(order, next)
		current = next
	}
	total += distances[current][end]
	order = append(order, end)
	return order, total, nil
}
