// Package job describes a conversion run in TOML and executes it.
package job

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rtm0/sowfa/coupling"
	"github.com/rtm0/sowfa/internal/netcdfgrid"
	"github.com/rtm0/sowfa/internal/tablecsv"
)

// Job is the content of a job file.
type Job struct {
	Internal *Internal
	Patch    []Patch
}

// Dates are optional TOML datetimes.
type Dates struct {
	DateRef  time.Time
	DateFrom time.Time
	DateTo   time.Time
}

func (d Dates) window() coupling.Window {
	return coupling.Window{Ref: d.DateRef, From: d.DateFrom, To: d.DateTo}
}

// Internal is an internal coupling job reading a CSV table.
type Internal struct {
	Dates
	Input      string
	OutputDir  string
	BC         []BC
	IC         *IC
	TimeHeight *TimeHeight
}

// BC writes one surface boundary condition series.
type BC struct {
	File  string
	Field string
	Scale *float64
}

// IC writes the initial profile. Field names default to u, v and theta.
type IC struct {
	File string
	XMom string
	YMom string
	Temp string
}

// TimeHeight writes time-height source tables.
type TimeHeight struct {
	File string
	XMom string
	YMom string
	ZMom string
	Temp string
}

// Patch is a boundary coupling job reading a NetCDF plane.
type Patch struct {
	Dates
	Name      string
	Input     string
	OutputDir string
	Binary    bool
	Gzip      bool
	Dims      map[string]string
	Field     []Field
}

// Field is one boundaryData field: one variable for a scalar, three for a
// vector.
type Field struct {
	Name string
	Vars []string
}

// Load reads a job file. Relative paths in it are taken relative to the
// file's directory.
func Load(path string) (*Job, error) {
	var j Job
	md, err := toml.DecodeFile(path, &j)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown keys %v", path, undecoded)
	}
	j.resolve(filepath.Dir(path))
	return &j, nil
}

func (j *Job) resolve(base string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}
	if j.Internal != nil {
		j.Internal.Input = abs(j.Internal.Input)
		j.Internal.OutputDir = or(abs(j.Internal.OutputDir), base)
	}
	for i := range j.Patch {
		j.Patch[i].Input = abs(j.Patch[i].Input)
		j.Patch[i].OutputDir = or(abs(j.Patch[i].OutputDir), base)
	}
}

// Validate checks the job before anything is read or written.
func (j *Job) Validate() error {
	if j.Internal == nil && len(j.Patch) == 0 {
		return errors.New("job has neither an Internal section nor a Patch")
	}
	if in := j.Internal; in != nil {
		if in.Input == "" {
			return errors.New("Internal.Input is required")
		}
		if in.BC == nil && in.IC == nil && in.TimeHeight == nil {
			return errors.New("Internal needs at least one of BC, IC and TimeHeight")
		}
		for i, bc := range in.BC {
			if bc.File == "" || bc.Field == "" {
				return fmt.Errorf("Internal.BC[%d] needs File and Field", i)
			}
		}
		if in.IC != nil && in.IC.File == "" {
			return errors.New("Internal.IC.File is required")
		}
		if in.TimeHeight != nil && in.TimeHeight.File == "" {
			return errors.New("Internal.TimeHeight.File is required")
		}
	}
	names := map[string]bool{}
	for i, p := range j.Patch {
		if p.Input == "" {
			return fmt.Errorf("Patch[%d].Input is required", i)
		}
		key := filepath.Join(p.OutputDir, or(p.Name, coupling.DefaultPatch))
		if names[key] {
			return fmt.Errorf("Patch[%d] writes to %s like an earlier patch", i, key)
		}
		names[key] = true
		if len(p.Field) == 0 {
			return fmt.Errorf("Patch[%d] has no Field", i)
		}
		for k, f := range p.Field {
			if f.Name == "" {
				return fmt.Errorf("Patch[%d].Field[%d] has no Name", i, k)
			}
			if len(f.Vars) != 1 && len(f.Vars) != 3 {
				return fmt.Errorf("Patch[%d].Field[%d] %q needs 1 or 3 Vars, got %d", i, k, f.Name, len(f.Vars))
			}
		}
	}
	return nil
}

// Run executes the internal coupling job.
func (in *Internal) Run(logger *slog.Logger) error {
	tbl, err := tablecsv.ReadFile(in.Input)
	if err != nil {
		return err
	}
	ic, err := coupling.NewInternalCoupling(logger, in.OutputDir, tbl, in.window())
	if err != nil {
		return err
	}
	for _, bc := range in.BC {
		scale := 1.0
		if bc.Scale != nil {
			scale = *bc.Scale
		}
		if err := ic.WriteBCs(bc.File, bc.Field, scale); err != nil {
			return err
		}
	}
	if f := in.IC; f != nil {
		if err := ic.WriteICs(f.File, or(f.XMom, "u"), or(f.YMom, "v"), or(f.Temp, "theta")); err != nil {
			return err
		}
	}
	if f := in.TimeHeight; f != nil {
		err := ic.WriteTimeHeight(f.File, coupling.TimeHeightFields{XMom: f.XMom, YMom: f.YMom, ZMom: f.ZMom, Temp: f.Temp})
		if err != nil {
			return err
		}
	}
	return nil
}

func or(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// Run executes the boundary coupling job of one patch.
func (p *Patch) Run(logger *slog.Logger) error {
	r, err := netcdfgrid.Open(p.Input, p.Dims)
	if err != nil {
		return fmt.Errorf("cannot open %s: %w", p.Input, err)
	}
	defer r.Close()
	logger.Info("input summary", append([]any{"patch", p.Name, "path", p.Input}, r.Summary()...)...)

	fields := make([]coupling.Field, len(p.Field))
	var vars []string
	for i, f := range p.Field {
		fields[i] = coupling.Field{Name: f.Name, Vars: f.Vars}
		vars = append(vars, f.Vars...)
	}
	ds, err := r.Dataset(vars)
	if err != nil {
		return fmt.Errorf("%s: %w", p.Input, err)
	}
	bc, err := coupling.NewBoundaryCoupling(logger, p.OutputDir, p.Name, ds, p.window())
	if err != nil {
		return err
	}
	return bc.Write(fields, coupling.Encoding{Binary: p.Binary, Gzip: p.Gzip})
}
