package coupling

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"time"

	"gonum.org/v1/gonum/floats"
)

// Table is tabular model output: one row per time, or per (time, height)
// pair when Height is set. Columns hold one value per row; NaN marks a
// missing value.
type Table struct {
	Time    TimeAxis
	Height  []float64
	Columns map[string][]float64
}

func (tbl *Table) validate() error {
	n := tbl.Time.Len()
	if tbl.Height != nil && len(tbl.Height) != n {
		return fmt.Errorf("%w: %d heights for %d rows", ErrInvalidInput, len(tbl.Height), n)
	}
	for name, col := range tbl.Columns {
		if len(col) != n {
			return fmt.Errorf("%w: column %q has %d values for %d rows", ErrInvalidInput, name, len(col), n)
		}
	}
	return nil
}

// InternalCoupling writes the source-term and initial-condition inputs of
// internal (mesoscale-to-microscale) coupling.
type InternalCoupling struct {
	logger  *slog.Logger
	dir     string
	times   TimeAxis
	tIndex  []float64
	height  []float64
	columns map[string][]float64
	start   time.Time
}

// NewInternalCoupling keeps the rows of tbl inside w and writes files to
// dir. tbl is copied; the caller keeps ownership of it.
func NewInternalCoupling(logger *slog.Logger, dir string, tbl *Table, w Window) (*InternalCoupling, error) {
	if err := tbl.validate(); err != nil {
		return nil, err
	}
	rows, start, err := w.selectRows(tbl.Time)
	if err != nil {
		return nil, err
	}
	ic := &InternalCoupling{
		logger:  loggerOrDefault(logger),
		dir:     dir,
		times:   tbl.Time.take(rows),
		columns: make(map[string][]float64, len(tbl.Columns)),
		start:   start,
	}
	if tbl.Height != nil {
		ic.height = pick(tbl.Height, rows)
	}
	for name, col := range tbl.Columns {
		ic.columns[name] = pick(col, rows)
	}
	ic.tIndex, err = Seconds(ic.times, w.Ref)
	if err != nil {
		return nil, err
	}
	return ic, nil
}

func pick(v []float64, rows []int) []float64 {
	out := make([]float64, len(rows))
	for k, i := range rows {
		out[k] = v[i]
	}
	return out
}

// TimeIndex returns the seconds index of every retained row.
func (ic *InternalCoupling) TimeIndex() []float64 {
	return slices.Clone(ic.tIndex)
}

// column returns a complete column, or ErrInvalidInput / ErrIncomplete.
func (ic *InternalCoupling) column(name string) ([]float64, error) {
	col, ok := ic.columns[name]
	if !ok {
		return nil, fmt.Errorf("%w: field %q not in data", ErrInvalidInput, name)
	}
	if floats.HasNaN(col) {
		return nil, fmt.Errorf("%w: field %q contains missing values", ErrIncomplete, name)
	}
	return col, nil
}

// WriteBCs writes the surface boundary condition series (t, scale*field),
// e.g. for $startTime/qwall. Scale -1 turns an upward heat flux into the
// outward-positive OpenFOAM convention.
func (ic *InternalCoupling) WriteBCs(fname, field string, scale float64) error {
	col, err := ic.column(field)
	if err != nil {
		return err
	}
	v := slices.Clone(col)
	floats.Scale(scale, v)
	values := make([]float64, 0, 2*len(v))
	for i := range v {
		values = append(values, ic.tIndex[i], v[i])
	}
	return ic.write(fname, len(v), func(rf *RecordFile) error {
		return rf.WriteBlock(Block{Arity: 2, Values: values, Format: tableFormat})
	})
}

// WriteICs writes the initial profile (height, xmom, ymom, temp) at the
// start date, for setFieldsABL. Fields that are unnamed or absent from the
// data are written as zero.
func (ic *InternalCoupling) WriteICs(fname, xmom, ymom, temp string) error {
	if ic.height == nil {
		return fmt.Errorf("%w: initial conditions need a height index", ErrInvalidInput)
	}
	var rows []int
	for i := 0; i < ic.times.Len(); i++ {
		if ic.times.instant(i).Equal(ic.start) {
			rows = append(rows, i)
		}
	}
	if len(rows) == 0 {
		return fmt.Errorf("%w: no data at start date %s", ErrInvalidInput, ic.start.Format(time.RFC3339))
	}

	cols := make([][]float64, 3)
	for c, name := range []string{xmom, ymom, temp} {
		col, ok := ic.columns[name]
		if name == "" || !ok {
			cols[c] = make([]float64, len(rows))
			continue
		}
		cols[c] = pick(col, rows)
		if floats.HasNaN(cols[c]) {
			return fmt.Errorf("%w: field %q contains missing values at start date", ErrIncomplete, name)
		}
	}
	values := make([]float64, 0, 4*len(rows))
	for k, i := range rows {
		values = append(values, ic.height[i], cols[0][k], cols[1][k], cols[2][k])
	}
	return ic.write(fname, len(rows), func(rf *RecordFile) error {
		return rf.WriteBlock(Block{Arity: 4, Values: values, Format: tableFormat})
	})
}

// TimeHeightFields names the columns written by WriteTimeHeight. Empty
// names are left out; the momentum components go together.
type TimeHeightFields struct {
	XMom string
	YMom string
	ZMom string
	Temp string
}

// timeHeightGrid is the (time, height) pivot of the retained rows.
type timeHeightGrid struct {
	times   []float64
	heights []float64
	// rows maps cell (t, z) at t*len(heights)+z to its row.
	rows []int
}

func (ic *InternalCoupling) pivot() (*timeHeightGrid, error) {
	g := &timeHeightGrid{
		times:   slices.Clone(ic.tIndex),
		heights: slices.Clone(ic.height),
	}
	slices.Sort(g.times)
	g.times = slices.Compact(g.times)
	slices.Sort(g.heights)
	g.heights = slices.Compact(g.heights)

	nz := len(g.heights)
	g.rows = make([]int, len(g.times)*nz)
	for i := range g.rows {
		g.rows[i] = -1
	}
	for i := range ic.tIndex {
		t, _ := slices.BinarySearch(g.times, ic.tIndex[i])
		z, _ := slices.BinarySearch(g.heights, ic.height[i])
		cell := t*nz + z
		if g.rows[cell] >= 0 {
			return nil, fmt.Errorf("%w: more than one row at t=%g, height=%g", ErrInvalidInput, ic.tIndex[i], ic.height[i])
		}
		g.rows[cell] = i
	}
	for cell, row := range g.rows {
		if row < 0 {
			return nil, fmt.Errorf("%w: no row at t=%g, height=%g", ErrIncomplete, g.times[cell/nz], g.heights[cell%nz])
		}
	}
	return g, nil
}

// table returns the rows "t v(z1) ... v(zn)" of field name. An absent
// field is zero everywhere.
func (g *timeHeightGrid) table(ic *InternalCoupling, name string) ([]float64, error) {
	col, ok := ic.columns[name]
	nz := len(g.heights)
	values := make([]float64, 0, len(g.times)*(nz+1))
	for t, ti := range g.times {
		values = append(values, ti)
		for z := 0; z < nz; z++ {
			v := 0.0
			if ok {
				v = col[g.rows[t*nz+z]]
			}
			values = append(values, v)
		}
	}
	if floats.HasNaN(values) {
		return nil, fmt.Errorf("%w: field %q contains missing values", ErrIncomplete, name)
	}
	return values, nil
}

// WriteTimeHeight writes time-height source tables for constant/
// ABLProperties. Only the requested fields are written; a requested field
// absent from the data is written as zero.
func (ic *InternalCoupling) WriteTimeHeight(fname string, f TimeHeightFields) error {
	given := 0
	for _, name := range []string{f.XMom, f.YMom, f.ZMom} {
		if name != "" {
			given++
		}
	}
	if given != 0 && given != 3 {
		return fmt.Errorf("%w: need all momentum components, got x=%q y=%q z=%q",
			ErrInvalidInput, f.XMom, f.YMom, f.ZMom)
	}
	if given == 0 && f.Temp == "" {
		return ic.write(fname, 0, func(*RecordFile) error { return nil })
	}
	if ic.height == nil {
		return fmt.Errorf("%w: time-height tables need a height index", ErrInvalidInput)
	}
	g, err := ic.pivot()
	if err != nil {
		return err
	}

	type section struct {
		label string
		field string
	}
	var heightLabels []string
	var groups [][]section
	if given == 3 {
		heightLabels = append(heightLabels, "sourceHeightsMomentum")
		groups = append(groups, []section{
			{"sourceTableMomentumX", f.XMom},
			{"sourceTableMomentumY", f.YMom},
			{"sourceTableMomentumZ", f.ZMom},
		})
	}
	if f.Temp != "" {
		heightLabels = append(heightLabels, "sourceHeightsTemperature")
		groups = append(groups, []section{{"sourceTableTemperature", f.Temp}})
	}

	tables := make([][][]float64, len(groups))
	for k, group := range groups {
		for _, s := range group {
			v, err := g.table(ic, s.field)
			if err != nil {
				return err
			}
			tables[k] = append(tables[k], v)
		}
	}

	nz := len(g.heights)
	return ic.write(fname, len(g.times), func(rf *RecordFile) error {
		for k, group := range groups {
			if err := rf.WriteString(heightLabels[k] + "\n"); err != nil {
				return err
			}
			err := rf.WriteBlock(Block{Header: "(", Footer: ");\n", Arity: 1, Values: g.heights, Format: heightFormat})
			if err != nil {
				return err
			}
			for s, sec := range group {
				if err := rf.WriteString(sec.label + "\n"); err != nil {
					return err
				}
				err := rf.WriteBlock(Block{Header: "(", Footer: ");\n", Arity: nz + 1, Values: tables[k][s], Format: tableFormat})
				if err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (ic *InternalCoupling) write(fname string, n int, fill func(*RecordFile) error) error {
	path, err := writeRecordFile(filepath.Join(ic.dir, fname), Encoding{}, fill)
	if err != nil {
		return err
	}
	ic.logger.Info("wrote records", "n", n, "path", path)
	return nil
}
