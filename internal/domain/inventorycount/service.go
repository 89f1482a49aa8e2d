package inventorycount

import (
	"context"
	"fmt"
	"time"

	"storeledger/internal/core/apperror"
	"storeledger/internal/core/id"
	"storeledger/internal/core/lock"
	"storeledger/internal/core/retry"
	"storeledger/pkg/logger"
)

// Sessions keeps counts with their unfixed recorded quantities between
// calls.
type Sessions interface {
	Put(ctx context.Context, countID id.ID, snap Snapshot) error
	Get(ctx context.Context, countID id.ID) (Snapshot, error)
	Delete(ctx context.Context, countID id.ID) error
}

// Service is the caller-facing count API.
type Service struct {
	engine   *Engine
	sessions Sessions
	locker   lock.Locker
	retry    retry.Policy
	observer retry.Observer
	lockTTL  time.Duration
}

// ServiceConfig holds the Service collaborators.
type ServiceConfig struct {
	Engine   *Engine
	Sessions Sessions
	Locker   lock.Locker
	Retry    retry.Policy
	Observer retry.Observer
	LockTTL  time.Duration
}

// NewService creates the service.
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		engine:   cfg.Engine,
		sessions: cfg.Sessions,
		locker:   cfg.Locker,
		retry:    cfg.Retry,
		observer: cfg.Observer,
		lockTTL:  cfg.LockTTL,
	}
	if s.retry == (retry.Policy{}) {
		s.retry = retry.DefaultPolicy()
	}
	if s.locker == nil {
		s.locker = lock.NewLocal()
	}
	if s.lockTTL <= 0 {
		s.lockTTL = 30 * time.Second
	}
	return s
}

// StartCount begins a count. A nil date means today.
func (s *Service) StartCount(ctx context.Context, storeID string, date *time.Time) (View, error) {
	var d time.Time
	if date != nil {
		d = *date
	}

	var c *Count
	err := retry.Do(ctx, "count.start", s.retry, s.observer, func(ctx context.Context) error {
		var err error
		c, err = s.engine.Start(ctx, storeID, d)
		return err
	})
	if err != nil {
		return View{}, err
	}
	if err := s.save(ctx, c); err != nil {
		return View{}, err
	}
	return c.View(), nil
}

// Get returns the count.
func (s *Service) Get(ctx context.Context, countID id.ID) (View, error) {
	c, err := s.load(ctx, countID)
	if err != nil {
		return View{}, err
	}
	return c.View(), nil
}

// RecordCount sets the counted quantity of a product.
func (s *Service) RecordCount(ctx context.Context, countID id.ID, productID, productName string, quantity int64) (View, error) {
	return s.edit(ctx, countID, func(ctx context.Context, c *Count) error {
		return s.engine.Record(ctx, c, productID, productName, quantity)
	})
}

// ClearCount withdraws a recorded quantity.
func (s *Service) ClearCount(ctx context.Context, countID id.ID, productID string) (View, error) {
	return s.edit(ctx, countID, func(_ context.Context, c *Count) error {
		return s.engine.Clear(c, productID)
	})
}

// FixCount fixes the count, retrying lost races.
func (s *Service) FixCount(ctx context.Context, countID id.ID) (Result, error) {
	return s.finish(ctx, countID, "count.fix", s.engine.Fix)
}

// UnfixCount reverses a same-day fix, retrying lost races.
func (s *Service) UnfixCount(ctx context.Context, countID id.ID) (Result, error) {
	return s.finish(ctx, countID, "count.unfix", s.engine.Unfix)
}

func (s *Service) finish(ctx context.Context, countID id.ID, op string, fn func(context.Context, *Count) (Result, error)) (Result, error) {
	var res Result
	err := s.withLock(ctx, countID, func(ctx context.Context) error {
		c, err := s.load(ctx, countID)
		if err != nil {
			return err
		}
		err = retry.Do(ctx, op, s.retry, s.observer, func(ctx context.Context) error {
			var opErr error
			res, opErr = fn(ctx, c)
			return opErr
		})
		if err != nil {
			return err
		}

		if res.Deleted {
			if err := s.sessions.Delete(ctx, countID); err != nil {
				logger.Warn(ctx, "delete count session", "count_id", countID, "error", err)
			}
			return nil
		}
		if err := s.save(ctx, c); err != nil {
			logger.Warn(ctx, "save count session", "count_id", countID, "error", err)
		}
		return nil
	})
	return res, err
}

func (s *Service) edit(ctx context.Context, countID id.ID, fn func(context.Context, *Count) error) (View, error) {
	var view View
	err := s.withLock(ctx, countID, func(ctx context.Context) error {
		c, err := s.load(ctx, countID)
		if err != nil {
			return err
		}
		if err := fn(ctx, c); err != nil {
			return err
		}
		if err := s.save(ctx, c); err != nil {
			return err
		}
		view = c.View()
		return nil
	})
	return view, err
}

func (s *Service) withLock(ctx context.Context, countID id.ID, fn func(ctx context.Context) error) error {
	lk, err := s.locker.Obtain(ctx, "count:"+countID.String(), s.lockTTL)
	if err != nil {
		return err
	}
	defer func() {
		if err := lk.Release(context.Background()); err != nil {
			logger.Warn(ctx, "release count lock", "count_id", countID, "error", err)
		}
	}()
	return fn(ctx)
}

// load prefers the session and falls back to storage, so a fixed count can
// still be unfixed after its session expired.
func (s *Service) load(ctx context.Context, countID id.ID) (*Count, error) {
	snap, err := s.sessions.Get(ctx, countID)
	if err == nil {
		return Restore(snap), nil
	}
	if !apperror.IsNotFound(err) {
		return nil, err
	}
	return s.engine.Load(ctx, countID)
}

func (s *Service) save(ctx context.Context, c *Count) error {
	if err := s.sessions.Put(ctx, c.ID(), c.Snapshot()); err != nil {
		return fmt.Errorf("save count session: %w", err)
	}
	return nil
}
