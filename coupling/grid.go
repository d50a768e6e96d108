package coupling

import (
	"fmt"
	"slices"
	"time"
)

// Axis names of a gridded boundary plane.
const (
	AxisTime   = "datetime"
	AxisX      = "x"
	AxisY      = "y"
	AxisHeight = "height"
)

// spatialAxes is the canonical axis priority. In-plane axes are raveled in
// this order, for points and fields alike.
var spatialAxes = []string{AxisX, AxisY, AxisHeight}

func isAxis(name string) bool {
	return name == AxisTime || slices.Contains(spatialAxes, name)
}

// Variable is a numeric array over named axes, stored row-major in Dims
// order. NaN marks a missing value.
type Variable struct {
	Dims []string
	Data []float64
}

func (v Variable) clone() Variable {
	return Variable{Dims: slices.Clone(v.Dims), Data: slices.Clone(v.Data)}
}

// Dataset is a gridded boundary plane. Dims lists the axes the data varies
// along: datetime plus two of x, y and height. Coords holds the coordinate
// of every spatial axis; the third, normal axis has a single value giving
// the position of the plane.
type Dataset struct {
	Dims   []string
	Time   []time.Time
	Coords map[string][]float64
	Vars   map[string]Variable
}

// size returns the length of an axis.
func (ds *Dataset) size(axis string) int {
	if axis == AxisTime {
		return len(ds.Time)
	}
	return len(ds.Coords[axis])
}

func (ds *Dataset) sizes() map[string]int {
	m := make(map[string]int, len(ds.Dims))
	for _, d := range ds.Dims {
		m[d] = ds.size(d)
	}
	return m
}

func (ds *Dataset) clone() *Dataset {
	c := &Dataset{
		Dims:   slices.Clone(ds.Dims),
		Time:   slices.Clone(ds.Time),
		Coords: make(map[string][]float64, len(ds.Coords)),
		Vars:   make(map[string]Variable, len(ds.Vars)),
	}
	for k, v := range ds.Coords {
		c.Coords[k] = slices.Clone(v)
	}
	for k, v := range ds.Vars {
		c.Vars[k] = v.clone()
	}
	return c
}

// validate checks the axes of the dataset and returns the normal axis.
func (ds *Dataset) validate() (string, error) {
	seen := map[string]bool{}
	for _, d := range ds.Dims {
		if !isAxis(d) {
			return "", fmt.Errorf("%w: unexpected axis %q, want one of %s, %s, %s, %s",
				ErrInvalidInput, d, AxisTime, AxisX, AxisY, AxisHeight)
		}
		if seen[d] {
			return "", fmt.Errorf("%w: axis %q declared twice", ErrInvalidInput, d)
		}
		seen[d] = true
	}
	if !seen[AxisTime] {
		return "", fmt.Errorf("%w: no %s axis", ErrInvalidInput, AxisTime)
	}
	if !monotonic(len(ds.Time), func(i, j int) int { return ds.Time[i].Compare(ds.Time[j]) }) {
		return "", fmt.Errorf("%w: %s coordinate is not monotonic", ErrInvalidInput, AxisTime)
	}
	for name := range ds.Coords {
		if !slices.Contains(spatialAxes, name) {
			return "", fmt.Errorf("%w: unexpected coordinate %q", ErrInvalidInput, name)
		}
	}

	var missing []string
	for _, a := range spatialAxes {
		c := ds.Coords[a]
		if !seen[a] {
			missing = append(missing, a)
			continue
		}
		if len(c) == 0 {
			return "", fmt.Errorf("%w: axis %q has no coordinate", ErrInvalidInput, a)
		}
		if !monotonic(len(c), func(i, j int) int { return cmpFloat(c[i], c[j]) }) {
			return "", fmt.Errorf("%w: %s coordinate is not monotonic", ErrInvalidInput, a)
		}
	}
	if len(missing) != 1 {
		return "", fmt.Errorf("%w: a boundary plane needs exactly one of x, y and height to be constant, got %d",
			ErrInvalidInput, len(missing))
	}
	normal := missing[0]
	if len(ds.Coords[normal]) != 1 {
		return "", fmt.Errorf("%w: normal axis %q needs a single position, got %d values",
			ErrInvalidInput, normal, len(ds.Coords[normal]))
	}

	sizes := ds.sizes()
	for name, v := range ds.Vars {
		if err := checkShape(v, sizes); err != nil {
			return "", fmt.Errorf("%w: variable %q: %v", ErrInvalidInput, name, err)
		}
	}
	return normal, nil
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// monotonic reports whether a sequence of n elements is strictly increasing
// or strictly decreasing.
func monotonic(n int, cmp func(i, j int) int) bool {
	if n < 2 {
		return true
	}
	dir := cmp(1, 0)
	if dir == 0 {
		return false
	}
	for i := 2; i < n; i++ {
		if cmp(i, i-1) != dir {
			return false
		}
	}
	return true
}

// checkShape verifies that v only uses axes in sizes, each once, and that
// its data fills them.
func checkShape(v Variable, sizes map[string]int) error {
	n := 1
	for i, d := range v.Dims {
		s, ok := sizes[d]
		if !ok {
			return fmt.Errorf("axis %q is not an axis of the dataset", d)
		}
		if slices.Contains(v.Dims[:i], d) {
			return fmt.Errorf("axis %q repeated", d)
		}
		n *= s
	}
	if len(v.Data) != n {
		return fmt.Errorf("%d values do not fill axes %v", len(v.Data), v.Dims)
	}
	return nil
}

// Broadcast returns v laid out over the target axes, in target order. Axes
// of target that v lacks are filled by repeating v's values along them.
// Every axis of v must appear in target.
func Broadcast(v Variable, target []string, sizes map[string]int) (Variable, error) {
	if err := checkShape(v, sizes); err != nil {
		return Variable{}, err
	}
	srcStride := make(map[string]int, len(v.Dims))
	s := 1
	for i := len(v.Dims) - 1; i >= 0; i-- {
		srcStride[v.Dims[i]] = s
		s *= sizes[v.Dims[i]]
	}

	shape := make([]int, len(target))
	stride := make([]int, len(target))
	n := 1
	for i, d := range target {
		size, ok := sizes[d]
		if !ok {
			return Variable{}, fmt.Errorf("no size for axis %q", d)
		}
		shape[i] = size
		stride[i] = srcStride[d]
		n *= size
	}
	for _, d := range v.Dims {
		if !slices.Contains(target, d) {
			return Variable{}, fmt.Errorf("axis %q is not a target axis", d)
		}
	}

	out := make([]float64, n)
	idx := make([]int, len(target))
	off := 0
	for k := range out {
		out[k] = v.Data[off]
		for a := len(target) - 1; a >= 0; a-- {
			idx[a]++
			off += stride[a]
			if idx[a] < shape[a] {
				break
			}
			off -= stride[a] * idx[a]
			idx[a] = 0
		}
	}
	return Variable{Dims: slices.Clone(target), Data: out}, nil
}

// take keeps the entries idx along axis, in that order.
func take(v Variable, sizes map[string]int, axis string, idx []int) Variable {
	pos := slices.Index(v.Dims, axis)
	if pos < 0 {
		return v.clone()
	}
	outer, inner := 1, 1
	for _, d := range v.Dims[:pos] {
		outer *= sizes[d]
	}
	for _, d := range v.Dims[pos+1:] {
		inner *= sizes[d]
	}
	n := sizes[axis]
	out := make([]float64, 0, outer*len(idx)*inner)
	for o := 0; o < outer; o++ {
		for _, i := range idx {
			start := (o*n + i) * inner
			out = append(out, v.Data[start:start+inner]...)
		}
	}
	return Variable{Dims: slices.Clone(v.Dims), Data: out}
}

// selectTimes restricts the dataset to the timesteps idx.
func (ds *Dataset) selectTimes(idx []int) {
	sizes := ds.sizes()
	for name, v := range ds.Vars {
		ds.Vars[name] = take(v, sizes, AxisTime, idx)
	}
	times := make([]time.Time, len(idx))
	for k, i := range idx {
		times[k] = ds.Time[i]
	}
	ds.Time = times
}
