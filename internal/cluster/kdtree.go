package cluster

// kdTree is a static 2D index over points, packed into flat slices and sorted
// in place so leaf buckets of nodeSize points are scanned linearly.
type kdTree struct {
	ids      []int
	coords   []float64
	nodeSize int
}

func newKDTree(xs, ys []float64, nodeSize int) *kdTree {
	t := &kdTree{
		ids:      make([]int, len(xs)),
		coords:   make([]float64, 2*len(xs)),
		nodeSize: nodeSize,
	}
	for i := range xs {
		t.ids[i] = i
		t.coords[2*i] = xs[i]
		t.coords[2*i+1] = ys[i]
	}
	t.sort(0, len(t.ids)-1, 0)
	return t
}

func (t *kdTree) sort(left, right, axis int) {
	if right-left <= t.nodeSize {
		return
	}
	m := (left + right) >> 1
	t.selectK(m, left, right, axis)
	t.sort(left, m-1, 1-axis)
	t.sort(m+1, right, 1-axis)
}

// selectK rearranges [left, right] so the k-th element on axis is in place,
// with smaller values before it and larger ones after.
func (t *kdTree) selectK(k, left, right, axis int) {
	for right > left {
		pivot := t.coords[2*k+axis]
		i, j := left, right

		t.swap(left, k)
		if t.coords[2*right+axis] > pivot {
			t.swap(left, right)
		}

		for i < j {
			t.swap(i, j)
			i++
			j--
			for t.coords[2*i+axis] < pivot {
				i++
			}
			for t.coords[2*j+axis] > pivot {
				j--
			}
		}

		if t.coords[2*left+axis] == pivot {
			t.swap(left, j)
		} else {
			j++
			t.swap(j, right)
		}

		if j <= k {
			left = j + 1
		}
		if k <= j {
			right = j - 1
		}
	}
}

func (t *kdTree) swap(i, j int) {
	t.ids[i], t.ids[j] = t.ids[j], t.ids[i]
	t.coords[2*i], t.coords[2*j] = t.coords[2*j], t.coords[2*i]
	t.coords[2*i+1], t.coords[2*j+1] = t.coords[2*j+1], t.coords[2*i+1]
}

// rangeQuery returns the ids of points inside the box.
func (t *kdTree) rangeQuery(minX, minY, maxX, maxY float64) []int {
	var result []int
	stack := []int{0, len(t.ids) - 1, 0}

	for len(stack) > 0 {
		axis := stack[len(stack)-1]
		right := stack[len(stack)-2]
		left := stack[len(stack)-3]
		stack = stack[:len(stack)-3]

		if right-left <= t.nodeSize {
			for i := left; i <= right; i++ {
				x, y := t.coords[2*i], t.coords[2*i+1]
				if x >= minX && x <= maxX && y >= minY && y <= maxY {
					result = append(result, t.ids[i])
				}
			}
			continue
		}

		m := (left + right) >> 1
		x, y := t.coords[2*m], t.coords[2*m+1]
		if x >= minX && x <= maxX && y >= minY && y <= maxY {
			result = append(result, t.ids[m])
		}

		if (axis == 0 && minX <= x) || (axis == 1 && minY <= y) {
			stack = append(stack, left, m-1, 1-axis)
		}
		if (axis == 0 && maxX >= x) || (axis == 1 && maxY >= y) {
			stack = append(stack, m+1, right, 1-axis)
		}
	}
	return result
}

// within returns the ids of points at distance r or less from (qx, qy).
func (t *kdTree) within(qx, qy, r float64) []int {
	var result []int
	stack := []int{0, len(t.ids) - 1, 0}
	r2 := r * r

	for len(stack) > 0 {
		axis := stack[len(stack)-1]
		right := stack[len(stack)-2]
		left := stack[len(stack)-3]
		stack = stack[:len(stack)-3]

		if right-left <= t.nodeSize {
			for i := left; i <= right; i++ {
				if sqDist(t.coords[2*i], t.coords[2*i+1], qx, qy) <= r2 {
					result = append(result, t.ids[i])
				}
			}
			continue
		}

		m := (left + right) >> 1
		x, y := t.coords[2*m], t.coords[2*m+1]
		if sqDist(x, y, qx, qy) <= r2 {
			result = append(result, t.ids[m])
		}

		if (axis == 0 && qx-r <= x) || (axis == 1 && qy-r <= y) {
			stack = append(stack, left, m-1, 1-axis)
		}
		if (axis == 0 && qx+r >= x) || (axis == 1 && qy+r >= y) {
			stack = append(stack, m+1, right, 1-axis)
		}
	}
	return result
}

func sqDist(ax, ay, bx, by float64) float64 {
	dx, dy := ax-bx, ay-by
	return dx*dx + dy*dy
}
