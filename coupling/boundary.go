package coupling

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"gonum.org/v1/gonum/floats"
)

// DefaultPatch is the patch name used when none is given.
const DefaultPatch = "patch"

// boundaryHeader returns the text that precedes a list of n boundaryData
// entries.
func boundaryHeader(n int) string {
	return `/*--------------------------------*- C++ -*----------------------------------*\
  =========                 |
  \\      /  F ield         | OpenFOAM: The Open Source CFD Toolbox
   \\    /   O peration     | Website:  https://openfoam.org
    \\  /    A nd           | Version:  6
     \\/     M anipulation  |
\*---------------------------------------------------------------------------*/

// generated by github.com/rtm0/sowfa

` + strconv.Itoa(n) + "\n("
}

// Field names a boundaryData file and the dataset variables it is built
// from: one variable for a scalar field, three for a vector field.
type Field struct {
	Name string
	Vars []string
}

// Vector reports whether the field has three components.
func (f Field) Vector() bool {
	return len(f.Vars) == 3
}

// BoundaryCoupling writes constant/boundaryData for one inflow/outflow
// patch.
type BoundaryCoupling struct {
	logger *slog.Logger
	dir    string
	ds     *Dataset
	tIndex []float64
	normal string
	// planeDims is fixed by the first Write.
	planeDims []string
}

// NewBoundaryCoupling prepares the boundary data of patch name, written
// under dir/name. ds is copied; the caller keeps ownership of it. Without a
// reference date in w, t = 0 is the first retained timestamp.
func NewBoundaryCoupling(logger *slog.Logger, dir, name string, ds *Dataset, w Window) (*BoundaryCoupling, error) {
	logger = loggerOrDefault(logger)
	if name == "" {
		name = DefaultPatch
	}
	normal, err := ds.validate()
	if err != nil {
		return nil, err
	}
	rows, _, err := w.selectRows(TimeAxis{Stamps: ds.Time})
	if err != nil {
		return nil, err
	}
	own := ds.clone()
	own.selectTimes(rows)

	ref := w.Ref
	if ref.IsZero() {
		ref = slices.MinFunc(own.Time, time.Time.Compare)
	}
	tIndex, err := Seconds(TimeAxis{Stamps: own.Time}, ref)
	if err != nil {
		return nil, err
	}
	logger.Info("plane orientation", "patch", name, "normal", normal, "position", own.Coords[normal][0])
	return &BoundaryCoupling{
		logger: logger.With("patch", name),
		dir:    filepath.Join(dir, name),
		ds:     own,
		tIndex: tIndex,
		normal: normal,
	}, nil
}

// Dir returns the patch directory.
func (bc *BoundaryCoupling) Dir() string {
	return bc.dir
}

// Normal returns the axis normal to the patch.
func (bc *BoundaryCoupling) Normal() string {
	return bc.normal
}

// TimeIndex returns the seconds since the reference date of every retained
// timestep, negative ones included.
func (bc *BoundaryCoupling) TimeIndex() []float64 {
	return slices.Clone(bc.tIndex)
}

// timeName formats a time index the way boundaryData directories are named.
func timeName(t float64) string {
	return strconv.FormatFloat(t, 'g', 6, 64)
}

// preparedField is a field broadcast to (datetime, plane axis 1, plane axis
// 2), one array per component.
type preparedField struct {
	Field
	comps [][]float64
}

// Write writes the points file and, for every timestep at or after the
// reference date, one file per field. Everything is validated before the
// first file is written.
func (bc *BoundaryCoupling) Write(fields []Field, enc Encoding) error {
	if enc.Binary && enc.Gzip {
		bc.logger.Warn("compressed binary is inefficient; uncompressed binary is fastest for OpenFOAM, compressed ascii is readable and small")
	}
	if bc.planeDims == nil {
		for _, a := range spatialAxes {
			if slices.Contains(bc.ds.Dims, a) {
				bc.planeDims = append(bc.planeDims, a)
			}
		}
	}
	if len(bc.planeDims) != 2 {
		return fmt.Errorf("%w: patch needs two in-plane axes, got %v", ErrInvalidInput, bc.planeDims)
	}

	var steps []int
	names := map[string]float64{}
	for i, t := range bc.tIndex {
		if t < 0 {
			continue
		}
		name := timeName(t)
		if prev, ok := names[name]; ok {
			return fmt.Errorf("%w: times %g and %g share the directory name %q", ErrInvalidInput, prev, t, name)
		}
		names[name] = t
		steps = append(steps, i)
	}

	prepared, err := bc.prepare(fields)
	if err != nil {
		return err
	}

	if err := bc.writePoints(enc); err != nil {
		return err
	}
	for i, t := range bc.tIndex {
		if t < 0 {
			bc.logger.Info("skipping timestep", "t", t, "datetime", bc.ds.Time[i])
		}
	}
	for _, f := range prepared {
		for _, i := range steps {
			if err := bc.writeField(f, i, enc); err != nil {
				return err
			}
		}
	}
	return nil
}

// prepare checks the requested fields and lays out their data in raveling
// order. Every retained timestep must be complete, including those before
// the reference date that are not written.
func (bc *BoundaryCoupling) prepare(fields []Field) ([]preparedField, error) {
	target := append([]string{AxisTime}, bc.planeDims...)
	sizes := bc.ds.sizes()
	n := sizes[bc.planeDims[0]] * sizes[bc.planeDims[1]]

	seen := map[string]bool{}
	out := make([]preparedField, 0, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("%w: field without a name", ErrInvalidInput)
		}
		if seen[f.Name] {
			return nil, fmt.Errorf("%w: field %q requested twice", ErrInvalidInput, f.Name)
		}
		seen[f.Name] = true
		if len(f.Vars) != 1 && len(f.Vars) != 3 {
			return nil, fmt.Errorf("%w: field %q needs 1 (scalar) or 3 (vector) variables, got %d",
				ErrInvalidInput, f.Name, len(f.Vars))
		}
		pf := preparedField{Field: f}
		for _, name := range f.Vars {
			v, ok := bc.ds.Vars[name]
			if !ok {
				return nil, fmt.Errorf("%w: dataset does not contain %q needed by field %q",
					ErrInvalidInput, name, f.Name)
			}
			b, err := Broadcast(v, target, sizes)
			if err != nil {
				return nil, fmt.Errorf("%w: variable %q: %v", ErrInvalidInput, name, err)
			}
			for i := range bc.ds.Time {
				if floats.HasNaN(b.Data[i*n : (i+1)*n]) {
					return nil, fmt.Errorf("%w: variable %q has missing values at %s",
						ErrIncomplete, name, bc.ds.Time[i].Format(time.RFC3339))
				}
			}
			pf.comps = append(pf.comps, b.Data)
		}
		out = append(out, pf)
	}
	return out, nil
}

// points returns the face centres of the patch as (x, y, height) triples,
// raveled with x outermost and height innermost.
func (bc *BoundaryCoupling) points() []float64 {
	xs, ys, zs := bc.ds.Coords[AxisX], bc.ds.Coords[AxisY], bc.ds.Coords[AxisHeight]
	pts := make([]float64, 0, 3*len(xs)*len(ys)*len(zs))
	for _, x := range xs {
		for _, y := range ys {
			for _, z := range zs {
				pts = append(pts, x, y, z)
			}
		}
	}
	return pts
}

func (bc *BoundaryCoupling) writePoints(enc Encoding) error {
	pts := bc.points()
	n := len(pts) / 3
	path, err := writeRecordFile(filepath.Join(bc.dir, "points"), enc, func(rf *RecordFile) error {
		return rf.WriteBlock(Block{
			Header: boundaryHeader(n),
			Footer: ")",
			Arity:  3,
			Values: pts,
			Format: vectorFormat,
		})
	})
	if err != nil {
		return err
	}
	bc.logger.Info("wrote points", "n", n, "path", path)
	return nil
}

// writeField writes timestep i of f into its time directory.
func (bc *BoundaryCoupling) writeField(f preparedField, i int, enc Encoding) error {
	n := len(f.comps[0]) / len(bc.ds.Time)
	arity := len(f.comps)
	values := make([]float64, n*arity)
	for c, comp := range f.comps {
		for k, v := range comp[i*n : (i+1)*n] {
			values[k*arity+c] = v
		}
	}

	format, average, kind := scalarFormat, "0", "scalars"
	if f.Vector() {
		format, average, kind = vectorFormat, "(0 0 0)", "vectors"
	}
	path := filepath.Join(bc.dir, timeName(bc.tIndex[i]), f.Name)
	path, err := writeRecordFile(path, enc, func(rf *RecordFile) error {
		err := rf.WriteBlock(Block{
			Header: boundaryHeader(n),
			Footer: ")",
			Arity:  arity,
			Values: values,
			Format: format,
		})
		if err != nil {
			return err
		}
		if enc.Binary {
			return rf.WriteString("\n" + average)
		}
		return rf.WriteString("\n" + average + " // average value")
	})
	if err != nil {
		return err
	}
	bc.logger.Info("wrote "+kind, "n", n, "path", path, "datetime", bc.ds.Time[i])
	return nil
}
