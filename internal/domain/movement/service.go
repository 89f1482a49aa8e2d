package movement

import (
	"context"
	"fmt"
	"time"

	"storeledger/internal/core/apperror"
	"storeledger/internal/core/entity"
	"storeledger/internal/core/id"
	"storeledger/internal/core/lock"
	"storeledger/internal/core/retry"
	"storeledger/pkg/logger"
)

// Sessions keeps draft handles between calls.
type Sessions interface {
	Put(ctx context.Context, handleID id.ID, snap Snapshot) error
	// Get returns an apperror not-found error for unknown or expired handles.
	Get(ctx context.Context, handleID id.ID) (Snapshot, error)
	Delete(ctx context.Context, handleID id.ID) error
}

// Adapter carries the per-kind rules around the generic engine.
type Adapter interface {
	Kind() entity.MovementKind

	// PrepareLine completes a line before it is stored on the handle,
	// typically by resolving its unit cost.
	PrepareLine(ctx context.Context, h *Handle, in *LineInput) error

	// Validate runs kind-specific checks before a commit.
	Validate(h *Handle) error
}

// Summarizer is implemented by adapters that report a per-kind breakdown
// of the lines. The result is attached to views and commit results.
type Summarizer interface {
	Summary(h *Handle) any
}

// Receiver turns a committed delivery into a purchase draft at the
// receiving store.
type Receiver interface {
	Receive(ctx context.Context, deliveryStoreID string, number int64) (*Handle, error)
}

// Service is the caller-facing movement API. It keeps handles in a session
// store, serialises edits of one handle with a lock and retries commits
// that lost an optimistic race.
type Service struct {
	engine   *Engine
	sessions Sessions
	locker   lock.Locker
	adapters map[entity.MovementKind]Adapter
	receiver Receiver
	retry    retry.Policy
	observer retry.Observer
	lockTTL  time.Duration
}

// ServiceConfig holds the Service collaborators.
type ServiceConfig struct {
	Engine   *Engine
	Sessions Sessions
	Locker   lock.Locker
	Adapters []Adapter
	Receiver Receiver
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
		adapters: make(map[entity.MovementKind]Adapter, len(cfg.Adapters)),
		receiver: cfg.Receiver,
		retry:    cfg.Retry,
		observer: cfg.Observer,
		lockTTL:  cfg.LockTTL,
	}
	if s.retry == (retry.Policy{}) {
		s.retry = retry.DefaultPolicy()
	}
	if s.lockTTL <= 0 {
		s.lockTTL = 30 * time.Second
	}
	if s.locker == nil {
		s.locker = lock.NewLocal()
	}
	for _, a := range cfg.Adapters {
		s.adapters[a.Kind()] = a
	}
	return s
}

// CreateDraftInput is the header of a new draft.
type CreateDraftInput struct {
	Kind             entity.MovementKind
	StoreID          string
	CounterpartyCode string
	// Date defaults to today.
	Date *time.Time
}

// CreateDraft starts a new unnumbered document.
func (s *Service) CreateDraft(ctx context.Context, in CreateDraftInput) (View, error) {
	if _, err := s.adapter(in.Kind); err != nil {
		return View{}, err
	}
	h, err := s.engine.CreateDraft(in.Kind, in.StoreID, in.CounterpartyCode)
	if err != nil {
		return View{}, err
	}
	if in.Date != nil {
		if err := h.SetDate(*in.Date); err != nil {
			return View{}, err
		}
	}
	if err := s.save(ctx, h); err != nil {
		return View{}, err
	}
	logger.Debug(ctx, "draft created", "handle", h.ID(), "kind", in.Kind, "store_id", in.StoreID)
	return s.view(h), nil
}

// Open loads a committed document into a new session.
func (s *Service) Open(ctx context.Context, ref entity.MovementRef) (View, error) {
	h, err := s.engine.Open(ctx, ref)
	if err != nil {
		return View{}, err
	}
	if err := s.save(ctx, h); err != nil {
		return View{}, err
	}
	return s.view(h), nil
}

// Receive books a committed delivery as a purchase draft.
func (s *Service) Receive(ctx context.Context, deliveryStoreID string, number int64) (View, error) {
	if s.receiver == nil {
		return View{}, apperror.NewPrecondition("", "delivery receive is not configured")
	}
	h, err := s.receiver.Receive(ctx, deliveryStoreID, number)
	if err != nil {
		return View{}, err
	}
	if err := s.save(ctx, h); err != nil {
		return View{}, err
	}
	return s.view(h), nil
}

// Get returns the current state of a handle.
func (s *Service) Get(ctx context.Context, handleID id.ID) (View, error) {
	h, err := s.load(ctx, handleID)
	if err != nil {
		return View{}, err
	}
	return s.view(h), nil
}

// UpsertLine adds or changes a line.
func (s *Service) UpsertLine(ctx context.Context, handleID id.ID, in LineInput) (View, error) {
	return s.edit(ctx, handleID, func(h *Handle) error {
		a, err := s.adapter(h.header.Kind)
		if err != nil {
			return err
		}
		if in.Quantity < 0 {
			return apperror.NewValidation("quantity must not be negative").WithDetail("productId", in.ProductID)
		}
		if err := a.PrepareLine(ctx, h, &in); err != nil {
			return err
		}
		return h.UpsertLine(in)
	})
}

// RemoveLine soft-removes a line.
func (s *Service) RemoveLine(ctx context.Context, handleID id.ID, productID string) (View, error) {
	return s.edit(ctx, handleID, func(h *Handle) error {
		return h.RemoveLine(productID)
	})
}

// Reopen makes a committed handle editable.
func (s *Service) Reopen(ctx context.Context, handleID id.ID) (View, error) {
	return s.edit(ctx, handleID, s.engine.Reopen)
}

// Commit runs the reconciliation. Conflicts are retried from the read
// phase according to the retry policy.
func (s *Service) Commit(ctx context.Context, handleID id.ID) (Result, error) {
	var res Result
	err := s.withLock(ctx, handleID, func(ctx context.Context) error {
		h, err := s.load(ctx, handleID)
		if err != nil {
			return err
		}
		a, err := s.adapter(h.header.Kind)
		if err != nil {
			return err
		}
		if err := a.Validate(h); err != nil {
			return err
		}

		if !h.Header().Numbered() {
			if err := s.engine.AssignNumber(ctx, h); err != nil {
				return err
			}
			if err := s.save(ctx, h); err != nil {
				return err
			}
		}

		err = retry.Do(ctx, "movement.commit", s.retry, s.observer, func(ctx context.Context) error {
			var commitErr error
			res, commitErr = s.engine.Commit(ctx, h)
			return commitErr
		})
		if err != nil {
			// Keep an allocated number cached for the next attempt.
			if saveErr := s.save(ctx, h); saveErr != nil {
				logger.Warn(ctx, "save draft after failed commit", "handle", handleID, "error", saveErr)
			}
			return err
		}

		res.Summary = s.summary(h)
		if err := s.save(ctx, h); err != nil {
			// Stock is already reconciled. A later commit of the stale
			// session diffs against the persisted lines and applies nothing
			// twice.
			logger.Warn(ctx, "save draft after commit", "handle", handleID, "error", err)
		}
		return nil
	})
	return res, err
}

// Discard drops a session. Committed documents are unaffected.
func (s *Service) Discard(ctx context.Context, handleID id.ID) error {
	return s.withLock(ctx, handleID, func(ctx context.Context) error {
		if _, err := s.sessions.Get(ctx, handleID); err != nil {
			return err
		}
		return s.sessions.Delete(ctx, handleID)
	})
}

func (s *Service) edit(ctx context.Context, handleID id.ID, fn func(h *Handle) error) (View, error) {
	var view View
	err := s.withLock(ctx, handleID, func(ctx context.Context) error {
		h, err := s.load(ctx, handleID)
		if err != nil {
			return err
		}
		if err := fn(h); err != nil {
			return err
		}
		if err := s.save(ctx, h); err != nil {
			return err
		}
		view = s.view(h)
		return nil
	})
	return view, err
}

func (s *Service) withLock(ctx context.Context, handleID id.ID, fn func(ctx context.Context) error) error {
	lk, err := s.locker.Obtain(ctx, "draft:"+handleID.String(), s.lockTTL)
	if err != nil {
		return err
	}
	defer func() {
		if err := lk.Release(context.Background()); err != nil {
			logger.Warn(ctx, "release draft lock", "handle", handleID, "error", err)
		}
	}()
	return fn(ctx)
}

func (s *Service) load(ctx context.Context, handleID id.ID) (*Handle, error) {
	snap, err := s.sessions.Get(ctx, handleID)
	if err != nil {
		return nil, err
	}
	return Restore(snap), nil
}

func (s *Service) save(ctx context.Context, h *Handle) error {
	if err := s.sessions.Put(ctx, h.ID(), h.Snapshot()); err != nil {
		return fmt.Errorf("save draft session: %w", err)
	}
	return nil
}

func (s *Service) view(h *Handle) View {
	v := h.View()
	v.Summary = s.summary(h)
	return v
}

func (s *Service) summary(h *Handle) any {
	if sm, ok := s.adapters[h.header.Kind].(Summarizer); ok {
		return sm.Summary(h)
	}
	return nil
}

func (s *Service) adapter(kind entity.MovementKind) (Adapter, error) {
	a, ok := s.adapters[kind]
	if !ok {
		return nil, apperror.NewValidation("unknown movement kind").WithDetail("kind", string(kind))
	}
	return a, nil
}
