// Package pipeline runs the per-role preparation stages (load, normalize,
// resample) and the fusion stages (align, blend).
//
// Every stage allocates a fresh volume. A failing stage returns without
// any partial output, so callers can leave their previous state untouched.
package pipeline

import (
	"context"
	"math"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"volfusion/internal/models"
	"volfusion/pkg/config"
	"volfusion/pkg/fusion"
	"volfusion/pkg/interpolation"
	"volfusion/pkg/logger"
	"volfusion/pkg/orientation"
	"volfusion/pkg/registration"
	"volfusion/pkg/series"
)

// Params holds the processing parameters.
type Params struct {
	// TargetSpacing is the isotropic voxel size in mm
	TargetSpacing float64

	// MovingOpacity weights the aligned moving volume in the fusion
	MovingOpacity float64

	// NumCores bounds the goroutines used by one resampling stage
	NumCores int
}

// ParamsFromConfig extracts the processing parameters from a configuration.
func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		TargetSpacing: cfg.Processing.TargetSpacing,
		MovingOpacity: cfg.Processing.MovingOpacity,
		NumCores:      cfg.Processing.NumCores,
	}
}

// Validate checks the parameters. Opacity is rejected, never clamped.
func (p Params) Validate() error {
	if err := fusion.ValidateOpacity(p.MovingOpacity); err != nil {
		return err
	}
	if !(p.TargetSpacing > 0) || math.IsInf(p.TargetSpacing, 0) {
		return errors.Errorf("target spacing must be positive, got %v", p.TargetSpacing)
	}
	return nil
}

// Pipeline turns series directories into prepared volumes and fuses them.
type Pipeline struct {
	params Params
	loader series.Loader
	log    logger.ILogger
}

// New creates a pipeline. A nil logger discards log lines.
func New(params Params, loader series.Loader, log logger.ILogger) (*Pipeline, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if loader == nil {
		return nil, errors.New("pipeline needs a series loader")
	}
	if params.NumCores < 1 {
		params.NumCores = 1
	}
	if log == nil {
		log = &logger.NullLogger{}
	}
	return &Pipeline{params: params, loader: loader, log: log}, nil
}

// Params returns the parameters the pipeline runs with.
func (p *Pipeline) Params() Params {
	return p.params
}

// Prepare loads the series in dir, normalizes its orientation and resamples
// it to the isotropic target spacing.
func (p *Pipeline) Prepare(ctx context.Context, role models.Role, dir string) (*models.Volume, error) {
	started := time.Now()

	// Step 1: load the raw series
	p.log.Infof("[%s] Step 1: Loading series from %s...", role, dir)
	var raw *models.Volume
	err := runStage(StageLoad, func() error {
		var err error
		raw, err = p.loader.LoadSeries(ctx, dir)
		if err == nil {
			err = raw.Validate()
		}
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load %s series", role)
	}
	p.log.Debugf("[%s] Loaded %s (%s), patient %s", role, raw.Geometry, humanize.Bytes(raw.SizeBytes()), raw.Info.PatientName)

	// Step 2: bring the direction cosines to the canonical frame
	p.log.Infof("[%s] Step 2: Normalizing orientation...", role)
	var normalized *models.Volume
	err = runStage(StageNormalize, func() error {
		m, err := orientation.Permutation(raw.Geometry)
		if err != nil {
			return err
		}
		if !m.Identity() {
			p.log.Debugf("[%s] Axis mapping %s", role, m)
		}
		normalized, err = orientation.Remap(raw, m)
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to normalize %s volume", role)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Step 3: resample to isotropic spacing
	p.log.Infof("[%s] Step 3: Resampling to %.2f mm isotropic...", role, p.params.TargetSpacing)
	var prepared *models.Volume
	err = runStage(StageResample, func() error {
		var err error
		prepared, err = interpolation.Isotropic(ctx, normalized, p.params.TargetSpacing, p.params.NumCores)
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to resample %s volume", role)
	}

	p.log.Infof("[%s] Prepared %v voxels (%s) in %s", role, prepared.Dims, humanize.Bytes(prepared.SizeBytes()), time.Since(started).Round(time.Millisecond))
	return prepared, nil
}

// Fuse aligns moving onto fixed by geometric center and blends the two.
// registration.ErrMissingCounterpart is returned unwrapped when either
// volume is absent, so callers can treat it as "nothing to do".
func (p *Pipeline) Fuse(ctx context.Context, fixed, moving *models.Volume) (*registration.Result, *models.Volume, error) {
	if fixed == nil || moving == nil {
		return nil, nil, registration.ErrMissingCounterpart
	}

	// Step 4: coarse alignment
	p.log.Infof("Step 4: Aligning moving volume onto fixed grid...")
	var res *registration.Result
	err := runStage(StageAlign, func() error {
		var err error
		res, err = registration.Align(ctx, fixed, moving, p.params.NumCores)
		return err
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to align volumes")
	}
	t := res.Translation
	p.log.Infof("Center translation (%.2f, %.2f, %.2f) mm", t[0], t[1], t[2])

	// Step 5: blend
	p.log.Infof("Step 5: Blending with moving opacity %.2f...", p.params.MovingOpacity)
	var fused *models.Volume
	err = runStage(StageBlend, func() error {
		var err error
		fused, err = fusion.Blend(fixed, res.Aligned, p.params.MovingOpacity)
		return err
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to blend volumes")
	}
	return res, fused, nil
}
