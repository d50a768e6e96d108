package netcdfgrid

import (
	"math"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/batchatco/go-native-netcdf/netcdf/cdf"
	"github.com/batchatco/go-native-netcdf/netcdf/util"
	"github.com/google/go-cmp/cmp"
	"github.com/rtm0/sowfa/coupling"
)

type fixtureVar struct {
	name string
	v    api.Variable
}

func writeFixture(t *testing.T, vars []fixtureVar) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plane.nc")
	cw, err := cdf.OpenWriter(path)
	if err != nil {
		t.Fatalf("cdf.OpenWriter: %v", err)
	}
	for _, fv := range vars {
		if err := cw.AddVar(fv.name, fv.v); err != nil {
			t.Fatalf("AddVar(%s): %v", fv.name, err)
		}
	}
	if err := cw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return path
}

func attributes(t *testing.T, kv map[string]interface{}, keys ...string) api.AttributeMap {
	t.Helper()
	m, err := util.NewOrderedMap(keys, kv)
	if err != nil {
		t.Fatalf("NewOrderedMap: %v", err)
	}
	return m
}

// planeVars is a west boundary with a single y value, stored (time, height,
// y, x) the way WRF-derived files usually are.
func planeVars() []fixtureVar {
	return []fixtureVar{
		{"time", api.Variable{Values: []int32{1000000, 1000001}, Dimensions: []string{"time"}}},
		{"x", api.Variable{Values: []float64{0, 10}, Dimensions: []string{"x"}}},
		{"y", api.Variable{Values: []float64{250}, Dimensions: []string{"y"}}},
		{"height", api.Variable{Values: []float64{5, 15}, Dimensions: []string{"height"}}},
		{"theta", api.Variable{
			Values: [][][][]float64{
				{{{300, 301}}, {{302, 303}}},
				{{{304, 305}}, {{306, 307}}},
			},
			Dimensions: []string{"time", "height", "y", "x"},
		}},
	}
}

func TestDataset(t *testing.T) {
	r, err := Open(writeFixture(t, planeVars()), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	ds, err := r.Dataset([]string{"theta"})
	if err != nil {
		t.Fatalf("Dataset: %v", err)
	}
	want := &coupling.Dataset{
		Dims: []string{coupling.AxisTime, coupling.AxisHeight, coupling.AxisX},
		Time: []time.Time{
			epoch1900.Add(1000000 * time.Hour),
			epoch1900.Add(1000001 * time.Hour),
		},
		Coords: map[string][]float64{
			coupling.AxisX:      {0, 10},
			coupling.AxisY:      {250},
			coupling.AxisHeight: {5, 15},
		},
		Vars: map[string]coupling.Variable{
			"theta": {
				Dims: []string{coupling.AxisTime, coupling.AxisHeight, coupling.AxisX},
				Data: []float64{300, 301, 302, 303, 304, 305, 306, 307},
			},
		},
	}
	// dimension order follows the file's variable order
	slices.Sort(ds.Dims)
	if diff := cmp.Diff(want, ds); diff != "" {
		t.Errorf("dataset mismatch (-want +got):\n%s", diff)
	}

	bc, err := coupling.NewBoundaryCoupling(nil, t.TempDir(), "west", ds, coupling.Window{})
	if err != nil {
		t.Fatalf("dataset rejected by the boundary writer: %v", err)
	}
	if bc.Normal() != coupling.AxisY {
		t.Errorf("normal = %q, want %q", bc.Normal(), coupling.AxisY)
	}
}

func TestDatasetUnitsAndPacking(t *testing.T) {
	vars := planeVars()
	vars[0] = fixtureVar{"Time", api.Variable{
		Values:     []float64{0, 30},
		Dimensions: []string{"Time"},
		Attributes: attributes(t, map[string]interface{}{"units": "minutes since 2013-11-08 12:00:00"}, "units"),
	}}
	vars[4].v.Dimensions[0] = "Time"
	vars = append(vars, fixtureVar{"u", api.Variable{
		Values:     [][]int16{{2, -32767}, {4, 6}},
		Dimensions: []string{"Time", "x"},
		Attributes: attributes(t, map[string]interface{}{
			"scale_factor": 0.5,
			"add_offset":   1.0,
			"_FillValue":   int16(-32767),
		}, "scale_factor", "add_offset", "_FillValue"),
	}})

	r, err := Open(writeFixture(t, vars), map[string]string{"Time": coupling.AxisTime})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	ds, err := r.Dataset([]string{"u"})
	if err != nil {
		t.Fatalf("Dataset: %v", err)
	}

	start := time.Date(2013, 11, 8, 12, 0, 0, 0, time.UTC)
	if diff := cmp.Diff([]time.Time{start, start.Add(30 * time.Minute)}, ds.Time); diff != "" {
		t.Errorf("times mismatch (-want +got):\n%s", diff)
	}
	u := ds.Vars["u"]
	if diff := cmp.Diff([]string{coupling.AxisTime, coupling.AxisX}, u.Dims); diff != "" {
		t.Errorf("dims mismatch (-want +got):\n%s", diff)
	}
	if !math.IsNaN(u.Data[1]) {
		t.Errorf("fill value not mapped to NaN: %g", u.Data[1])
	}
	u.Data[1] = 0
	if diff := cmp.Diff([]float64{2, 0, 3, 4}, u.Data); diff != "" {
		t.Errorf("unpacked values mismatch (-want +got):\n%s", diff)
	}
}

func TestDatasetMissingVariable(t *testing.T) {
	r, err := Open(writeFixture(t, planeVars()), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	if _, err := r.Dataset([]string{"qv"}); err == nil {
		t.Errorf("expected an error for a missing variable")
	}
}

func TestParseTimeUnits(t *testing.T) {
	tests := []struct {
		units string
		unit  time.Duration
		epoch time.Time
	}{
		{"hours since 1900-01-01 00:00:00.0", time.Hour, epoch1900},
		{"seconds since 2013-11-08T00:00:00Z", time.Second, time.Date(2013, 11, 8, 0, 0, 0, 0, time.UTC)},
		{"days since 2000-01-01", 24 * time.Hour, time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"Minutes since 2013-11-08 12:00:00 UTC", time.Minute, time.Date(2013, 11, 8, 12, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		unit, epoch, err := parseTimeUnits(tt.units)
		if err != nil {
			t.Errorf("%q: %v", tt.units, err)
			continue
		}
		if unit != tt.unit || !epoch.Equal(tt.epoch) {
			t.Errorf("%q: got %v since %v, want %v since %v", tt.units, unit, epoch, tt.unit, tt.epoch)
		}
	}
	for _, bad := range []string{"hours", "fortnights since 2000-01-01", "hours since yesterday"} {
		if _, _, err := parseTimeUnits(bad); err == nil {
			t.Errorf("%q: expected an error", bad)
		}
	}
}
