// Package netcdfgrid reads a boundary plane of gridded model output from a
// NetCDF file.
package netcdfgrid

import (
	"fmt"
	"math"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/rtm0/sowfa/coupling"
)

// epoch1900 is the time origin of ERA5 files, used when the time variable
// has no units attribute.
var epoch1900 = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// defaultNames maps NetCDF dimension names to dataset axes.
var defaultNames = map[string]string{
	"time":     coupling.AxisTime,
	"datetime": coupling.AxisTime,
	"x":        coupling.AxisX,
	"y":        coupling.AxisY,
	"height":   coupling.AxisHeight,
	"z":        coupling.AxisHeight,
}

// Reader reads coordinates and variables of a boundary plane.
type Reader struct {
	nc     api.Group
	names  map[string]string
	times  []time.Time
	coords map[string][]float64
	dims   []string
}

// Open opens a NetCDF file and reads its coordinates. names maps NetCDF
// dimension names to axes (datetime, x, y, height) and adds to the default
// mapping of time, x, y, z and height.
func Open(filePath string, names map[string]string) (*Reader, error) {
	nc, err := netcdf.Open(filePath)
	if err != nil {
		return nil, err
	}
	r := &Reader{
		nc:     nc,
		names:  make(map[string]string, len(defaultNames)+len(names)),
		coords: map[string][]float64{},
	}
	for k, v := range defaultNames {
		r.names[k] = v
	}
	for k, v := range names {
		r.names[k] = v
	}
	if err := r.readCoords(); err != nil {
		nc.Close()
		return nil, err
	}
	return r, nil
}

// Close closes the file.
func (r *Reader) Close() {
	r.nc.Close()
}

func (r *Reader) axis(name string) string {
	if a, ok := r.names[name]; ok {
		return a
	}
	return name
}

func (r *Reader) readCoords() error {
	for _, name := range r.nc.ListVariables() {
		axis := r.axis(name)
		switch axis {
		case coupling.AxisTime, coupling.AxisX, coupling.AxisY, coupling.AxisHeight:
		default:
			continue
		}
		vg, err := r.nc.GetVarGetter(name)
		if err != nil {
			return err
		}
		dims := vg.Dimensions()
		if len(dims) > 1 || (len(dims) == 1 && r.axis(dims[0]) != axis) {
			continue
		}
		values, err := readValues(vg)
		if err != nil {
			return fmt.Errorf("cannot read coordinate %q: %w", name, err)
		}
		if axis == coupling.AxisTime {
			r.times, err = toTimes(values, vg.Attributes())
			if err != nil {
				return fmt.Errorf("cannot read coordinate %q: %w", name, err)
			}
		} else {
			r.coords[axis] = values
		}
		if len(dims) == 1 {
			r.dims = append(r.dims, axis)
		}
	}
	if r.times == nil {
		return fmt.Errorf("no time coordinate in file")
	}
	return nil
}

// squeezable returns the spatial axis to drop when all three spatial axes
// are dimensions and exactly one of them has a single point.
func (r *Reader) squeezable() string {
	var single []string
	for _, a := range []string{coupling.AxisX, coupling.AxisY, coupling.AxisHeight} {
		if !slices.Contains(r.dims, a) {
			return ""
		}
		if len(r.coords[a]) == 1 {
			single = append(single, a)
		}
	}
	if len(single) != 1 {
		return ""
	}
	return single[0]
}

// Summary returns information about the file suitable for logging.
func (r *Reader) Summary() []any {
	s := []any{"dims", r.dims, "variables", r.nc.ListVariables(), "timeCnt", len(r.times)}
	if len(r.times) > 0 {
		s = append(s, "from", r.times[0], "to", r.times[len(r.times)-1])
	}
	for _, a := range []string{coupling.AxisX, coupling.AxisY, coupling.AxisHeight} {
		s = append(s, a+"Cnt", len(r.coords[a]))
	}
	return s
}

// Dataset reads the named variables into a dataset. A length-one spatial
// dimension is treated as the constant axis of the plane.
func (r *Reader) Dataset(vars []string) (*coupling.Dataset, error) {
	ds := &coupling.Dataset{
		Dims:   slices.Clone(r.dims),
		Time:   slices.Clone(r.times),
		Coords: make(map[string][]float64, len(r.coords)),
		Vars:   make(map[string]coupling.Variable, len(vars)),
	}
	for a, c := range r.coords {
		ds.Coords[a] = slices.Clone(c)
	}
	squeeze := r.squeezable()
	if squeeze != "" {
		ds.Dims = slices.DeleteFunc(ds.Dims, func(d string) bool { return d == squeeze })
	}
	for _, name := range vars {
		if _, ok := ds.Vars[name]; ok {
			continue
		}
		vg, err := r.nc.GetVarGetter(name)
		if err != nil {
			return nil, fmt.Errorf("cannot find variable %q: %w", name, err)
		}
		values, err := readValues(vg)
		if err != nil {
			return nil, fmt.Errorf("cannot read variable %q: %w", name, err)
		}
		unpack(values, vg.Attributes())
		var dims []string
		for _, d := range vg.Dimensions() {
			if a := r.axis(d); a != squeeze {
				dims = append(dims, a)
			}
		}
		ds.Vars[name] = coupling.Variable{Dims: dims, Data: values}
	}
	return ds, nil
}

// readValues returns all values of a variable as float64, in row-major
// order.
func readValues(vg api.VarGetter) ([]float64, error) {
	v, err := vg.Values()
	if err != nil {
		return nil, err
	}
	return flatten(nil, reflect.ValueOf(v))
}

func flatten(dst []float64, v reflect.Value) ([]float64, error) {
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		var err error
		for i := 0; i < v.Len(); i++ {
			if dst, err = flatten(dst, v.Index(i)); err != nil {
				return nil, err
			}
		}
		return dst, nil
	case reflect.Float32, reflect.Float64:
		return append(dst, v.Float()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return append(dst, float64(v.Int())), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return append(dst, float64(v.Uint())), nil
	case reflect.Interface:
		return flatten(dst, v.Elem())
	}
	return nil, fmt.Errorf("unsupported value type %s", v.Type())
}

// attrFloat returns the first numeric value of an attribute.
func attrFloat(attrs api.AttributeMap, key string) (float64, bool) {
	if attrs == nil {
		return 0, false
	}
	v, ok := attrs.Get(key)
	if !ok {
		return 0, false
	}
	f, err := flatten(nil, reflect.ValueOf(v))
	if err != nil || len(f) == 0 {
		return 0, false
	}
	return f[0], true
}

// unpack applies the CF packing attributes: fill values become NaN and
// scale_factor / add_offset are applied to the rest.
func unpack(values []float64, attrs api.AttributeMap) {
	fill, hasFill := attrFloat(attrs, "_FillValue")
	missing, hasMissing := attrFloat(attrs, "missing_value")
	scale, hasScale := attrFloat(attrs, "scale_factor")
	offset, _ := attrFloat(attrs, "add_offset")
	if !hasScale {
		scale = 1
	}
	for i, v := range values {
		if (hasFill && v == fill) || (hasMissing && v == missing) {
			values[i] = math.NaN()
			continue
		}
		values[i] = v*scale + offset
	}
}

var timeUnits = map[string]time.Duration{
	"seconds": time.Second,
	"minutes": time.Minute,
	"hours":   time.Hour,
	"days":    24 * time.Hour,
}

var epochLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// toTimes converts time offsets to timestamps using a CF units attribute
// such as "hours since 1900-01-01 00:00:00.0".
func toTimes(values []float64, attrs api.AttributeMap) ([]time.Time, error) {
	unit, epoch := time.Hour, epoch1900
	if attrs != nil {
		if u, ok := attrs.Get("units"); ok {
			s, ok := u.(string)
			if !ok {
				return nil, fmt.Errorf("units attribute is %T, not a string", u)
			}
			var err error
			if unit, epoch, err = parseTimeUnits(s); err != nil {
				return nil, err
			}
		}
	}
	times := make([]time.Time, len(values))
	for i, v := range values {
		times[i] = epoch.Add(time.Duration(math.Round(v * float64(unit))))
	}
	return times, nil
}

func parseTimeUnits(s string) (time.Duration, time.Time, error) {
	name, since, ok := strings.Cut(strings.TrimSpace(s), " since ")
	if !ok {
		return 0, time.Time{}, fmt.Errorf("time units %q are not of the form \"<unit> since <date>\"", s)
	}
	unit, ok := timeUnits[strings.ToLower(name)]
	if !ok {
		return 0, time.Time{}, fmt.Errorf("unsupported time unit %q", name)
	}
	since = strings.TrimSuffix(strings.TrimSpace(since), " UTC")
	for _, layout := range epochLayouts {
		if epoch, err := time.Parse(layout, since); err == nil {
			return unit, epoch, nil
		}
	}
	return 0, time.Time{}, fmt.Errorf("cannot parse reference date %q", since)
}
