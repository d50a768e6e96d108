package coupling

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestBroadcastRepeatsAlongMissingAxis(t *testing.T) {
	sizes := map[string]int{AxisTime: 2, AxisX: 3, AxisHeight: 2}
	// theta(t, z) = 10t + z
	v := Variable{Dims: []string{AxisTime, AxisHeight}, Data: []float64{0, 1, 10, 11}}
	got, err := Broadcast(v, []string{AxisTime, AxisX, AxisHeight}, sizes)
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if diff := cmp.Diff([]string{AxisTime, AxisX, AxisHeight}, got.Dims); diff != "" {
		t.Errorf("dims mismatch (-want +got):\n%s", diff)
	}
	for ti := 0; ti < 2; ti++ {
		for x := 0; x < 3; x++ {
			for z := 0; z < 2; z++ {
				want := v.Data[ti*2+z]
				if g := got.Data[(ti*3+x)*2+z]; g != want {
					t.Errorf("t=%d x=%d z=%d: got %g, want %g", ti, x, z, g, want)
				}
			}
		}
	}
}

func TestBroadcastTransposes(t *testing.T) {
	sizes := map[string]int{AxisTime: 2, AxisX: 3, AxisY: 4}
	// stored as (y, t, x) with value 100y + 10t + x
	var data []float64
	for y := 0; y < 4; y++ {
		for ti := 0; ti < 2; ti++ {
			for x := 0; x < 3; x++ {
				data = append(data, float64(100*y+10*ti+x))
			}
		}
	}
	got, err := Broadcast(Variable{Dims: []string{AxisY, AxisTime, AxisX}, Data: data},
		[]string{AxisTime, AxisX, AxisY}, sizes)
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	k := 0
	for ti := 0; ti < 2; ti++ {
		for x := 0; x < 3; x++ {
			for y := 0; y < 4; y++ {
				if want := float64(100*y + 10*ti + x); got.Data[k] != want {
					t.Errorf("t=%d x=%d y=%d: got %g, want %g", ti, x, y, got.Data[k], want)
				}
				k++
			}
		}
	}
}

func TestBroadcastConstant(t *testing.T) {
	sizes := map[string]int{AxisTime: 2, AxisY: 2}
	got, err := Broadcast(Variable{Data: []float64{4}}, []string{AxisTime, AxisY}, sizes)
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if diff := cmp.Diff([]float64{4, 4, 4, 4}, got.Data); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestBroadcastErrors(t *testing.T) {
	sizes := map[string]int{AxisTime: 1, AxisX: 2, AxisY: 2}
	tests := []struct {
		name string
		v    Variable
	}{
		{"axis outside target", Variable{Dims: []string{AxisY}, Data: []float64{1, 2}}},
		{"short data", Variable{Dims: []string{AxisX}, Data: []float64{1}}},
		{"unknown axis", Variable{Dims: []string{"lat"}, Data: []float64{1}}},
	}
	for _, tt := range tests {
		if _, err := Broadcast(tt.v, []string{AxisTime, AxisX}, sizes); err == nil {
			t.Errorf("%s: expected an error", tt.name)
		}
	}
}

func TestTake(t *testing.T) {
	sizes := map[string]int{AxisX: 2, AxisTime: 3}
	v := Variable{Dims: []string{AxisX, AxisTime}, Data: []float64{0, 1, 2, 10, 11, 12}}
	got := take(v, sizes, AxisTime, []int{2, 0})
	if diff := cmp.Diff([]float64{2, 0, 12, 10}, got.Data); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func plane() *Dataset {
	return &Dataset{
		Dims: []string{AxisTime, AxisX, AxisHeight},
		Time: []time.Time{t0, t0.Add(time.Hour)},
		Coords: map[string][]float64{
			AxisX:      {0, 10},
			AxisY:      {0},
			AxisHeight: {5},
		},
		Vars: map[string]Variable{
			"theta": {Dims: []string{AxisTime, AxisX, AxisHeight}, Data: []float64{300, 301, 302, 303}},
		},
	}
}

func TestDatasetValidate(t *testing.T) {
	normal, err := plane().validate()
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if normal != AxisY {
		t.Errorf("normal = %q, want %q", normal, AxisY)
	}

	tests := []struct {
		name   string
		mutate func(*Dataset)
	}{
		{"unexpected axis", func(ds *Dataset) { ds.Dims = append(ds.Dims, "lat") }},
		{"no time", func(ds *Dataset) { ds.Dims = ds.Dims[1:] }},
		{"two normals", func(ds *Dataset) { ds.Dims = ds.Dims[:2] }},
		{"no normal", func(ds *Dataset) { ds.Dims = append(ds.Dims, AxisY) }},
		{"no position", func(ds *Dataset) { delete(ds.Coords, AxisY) }},
		{"not monotonic", func(ds *Dataset) { ds.Coords[AxisX] = []float64{10, 10} }},
		{"time not monotonic", func(ds *Dataset) { ds.Time[1] = t0 }},
		{"bad variable", func(ds *Dataset) { ds.Vars["u"] = Variable{Dims: []string{AxisY}, Data: []float64{1}} }},
		{"unexpected coordinate", func(ds *Dataset) { ds.Coords["lon"] = []float64{1} }},
	}
	for _, tt := range tests {
		ds := plane()
		tt.mutate(ds)
		if _, err := ds.validate(); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: want ErrInvalidInput, got %v", tt.name, err)
		}
	}
}
