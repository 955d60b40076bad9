// Package session coordinates loads for the fixed and moving roles.
//
// Loads and fusions run on a bounded worker queue. A new load for a role
// cancels the one in flight and bumps that role's generation; results of
// an older generation are discarded. A failed load leaves the installed
// volume and the view state untouched.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"volfusion/internal/models"
	"volfusion/pkg/annotation"
	"volfusion/pkg/config"
	"volfusion/pkg/logger"
	"volfusion/pkg/registration"
	"volfusion/pkg/slicestate"
)

// ErrSuperseded is returned by a task whose result was replaced by a newer
// request for the same role.
var ErrSuperseded = errors.New("superseded by a newer request")

// ErrClosed is returned for requests made after Close.
var ErrClosed = errors.New("session closed")

// Processor runs the pipeline stages.
type Processor interface {
	Prepare(ctx context.Context, role models.Role, dir string) (*models.Volume, error)
	Fuse(ctx context.Context, fixed, moving *models.Volume) (*registration.Result, *models.Volume, error)
}

// Session owns the fixed, moving and fusion volumes.
type Session struct {
	mu sync.Mutex

	// install serializes result installation. It is held while state
	// listeners run; mu is not.
	install sync.Mutex

	proc    Processor
	state   *slicestate.Manager
	viewers [3]slicestate.Viewer
	log     logger.ILogger
	sem     *semaphore.Weighted

	initialWindow float64
	initialLevel  float64

	volumes    [2]*models.Volume
	generation [2]uint64
	cancels    [2]context.CancelFunc

	fusionGen    uint64
	fusionCancel context.CancelFunc
	fusionTask   *Task
	registration *registration.Result
	fusion       *models.Volume

	closed  bool
	pending sync.WaitGroup
}

// New creates a session and attaches the three viewers to state.
func New(cfg *config.Config, proc Processor, state *slicestate.Manager, viewers [3]slicestate.Viewer, log logger.ILogger) (*Session, error) {
	if proc == nil || state == nil {
		return nil, fmt.Errorf("session needs a processor and a state manager")
	}
	for r, v := range viewers {
		if v == nil {
			return nil, fmt.Errorf("missing %s viewer", models.Role(r))
		}
	}
	if log == nil {
		log = &logger.NullLogger{}
	}
	workers := cfg.Processing.NumWorkers
	if workers < 1 {
		workers = 1
	}

	s := &Session{
		proc:          proc,
		state:         state,
		viewers:       viewers,
		log:           log,
		sem:           semaphore.NewWeighted(int64(workers)),
		initialWindow: cfg.Display.InitialWindow,
		initialLevel:  cfg.Display.InitialLevel,
	}
	for r, v := range viewers {
		state.Attach(models.Role(r), v)
	}
	return s, nil
}

// Load queues a load of dir for role and returns immediately.
func (s *Session) Load(ctx context.Context, role models.Role, dir string) *Task {
	task := newTask(role, dir)
	if !role.Loadable() {
		task.finish(fmt.Errorf("role %s cannot be loaded", role))
		return task
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		task.finish(ErrClosed)
		return task
	}
	if cancel := s.cancels[role]; cancel != nil {
		cancel()
	}
	s.generation[role]++
	gen := s.generation[role]
	taskCtx, cancel := context.WithCancel(ctx)
	s.cancels[role] = cancel
	s.pending.Add(1)
	s.mu.Unlock()

	s.log.Debugf("[%s] queued load %s of %s", role, task.ID, dir)
	go func() {
		defer s.pending.Done()
		defer cancel()
		task.finish(s.runLoad(taskCtx, task, gen))
	}()
	return task
}

func (s *Session) runLoad(ctx context.Context, task *Task, gen uint64) error {
	role := task.Role
	vol, err := s.process(ctx, func() (*models.Volume, error) {
		return s.proc.Prepare(ctx, role, task.Dir)
	})

	s.install.Lock()
	defer s.install.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation[role] != gen {
		s.log.Debugf("[%s] discarding result of superseded load %s", role, task.ID)
		return ErrSuperseded
	}
	s.cancels[role] = nil
	if err != nil {
		s.log.Errorf("[%s] load of %s failed: %v", role, task.Dir, err)
		return err
	}

	s.volumes[role] = vol
	v := s.viewers[role]
	v.SetVolume(vol)
	v.SetWindowLevel(s.initialWindow, s.initialLevel)
	s.dropFusionLocked()
	s.mu.Unlock()

	// State listeners run from here and may call back into the session.
	err = s.state.Load(role, vol.Geometry)

	s.mu.Lock()
	if err != nil {
		return err
	}
	s.log.Infof("[%s] installed %s from %s", role, vol.Geometry, task.Dir)
	if !s.closed && s.volumes[models.Fixed] != nil && s.volumes[models.Moving] != nil {
		s.startFusionLocked()
	}
	return nil
}

// process runs fn once a worker slot is free.
func (s *Session) process(ctx context.Context, fn func() (*models.Volume, error)) (*models.Volume, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)
	return fn()
}

// dropFusionLocked discards the registration and fusion of the previous
// volume pair and cancels a fusion still in flight.
func (s *Session) dropFusionLocked() {
	s.fusionGen++
	if s.fusionCancel != nil {
		s.fusionCancel()
		s.fusionCancel = nil
	}
	s.registration = nil
	if s.fusion != nil {
		s.fusion = nil
		s.viewers[models.Fusion].SetVolume(nil)
	}
}

func (s *Session) startFusionLocked() {
	gen := s.fusionGen
	fixed, moving := s.volumes[models.Fixed], s.volumes[models.Moving]
	ctx, cancel := context.WithCancel(context.Background())
	s.fusionCancel = cancel
	task := newTask(models.Fusion, "")
	s.fusionTask = task
	s.pending.Add(1)

	go func() {
		defer s.pending.Done()
		defer cancel()
		task.finish(s.runFusion(ctx, gen, fixed, moving))
	}()
}

func (s *Session) runFusion(ctx context.Context, gen uint64, fixed, moving *models.Volume) error {
	var res *registration.Result
	fused, err := s.process(ctx, func() (*models.Volume, error) {
		r, f, err := s.proc.Fuse(ctx, fixed, moving)
		res = r
		return f, err
	})

	s.install.Lock()
	defer s.install.Unlock()
	s.mu.Lock()
	if s.fusionGen != gen {
		s.mu.Unlock()
		return ErrSuperseded
	}
	s.fusionCancel = nil
	if errors.Is(err, registration.ErrMissingCounterpart) {
		s.mu.Unlock()
		return nil
	}
	if err != nil {
		s.mu.Unlock()
		s.log.Errorf("fusion failed: %v", err)
		return err
	}

	s.registration = res
	s.fusion = fused
	v := s.viewers[models.Fusion]
	v.SetVolume(fused)
	v.SetWindowLevel(s.initialWindow, s.initialLevel)
	s.mu.Unlock()

	s.state.SyncFusion()
	s.log.Infof("fusion ready on %s", fused.Geometry)
	return nil
}

// FusionTask returns the most recently started fusion, or nil.
func (s *Session) FusionTask() *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fusionTask
}

// Idle blocks until every queued task has finished or ctx is done.
func (s *Session) Idle(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Volume returns the installed volume for role; for Fusion, the fusion volume.
func (s *Session) Volume(role models.Role) *models.Volume {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch role {
	case models.Fixed, models.Moving:
		return s.volumes[role]
	case models.Fusion:
		return s.fusion
	}
	return nil
}

// Fusion returns the current fusion volume, or nil.
func (s *Session) Fusion() *models.Volume {
	return s.Volume(models.Fusion)
}

// Registration returns the current alignment result, or nil.
func (s *Session) Registration() *registration.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registration
}

// State returns the slice/orientation state manager.
func (s *Session) State() *slicestate.Manager {
	return s.state
}

// Viewer returns the viewer of role.
func (s *Session) Viewer(role models.Role) slicestate.Viewer {
	if role < models.Fixed || role > models.Fusion {
		return nil
	}
	return s.viewers[role]
}

// Caption formats the caption of role's view.
func (s *Session) Caption(role models.Role) annotation.Caption {
	return annotation.FromViewer(s.state.Orientation(), s.Viewer(role))
}

// Close cancels every task in flight and waits for them to return.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	for i, cancel := range s.cancels {
		if cancel != nil {
			cancel()
			s.cancels[i] = nil
		}
	}
	if s.fusionCancel != nil {
		s.fusionCancel()
		s.fusionCancel = nil
	}
	s.mu.Unlock()
	s.pending.Wait()
}
