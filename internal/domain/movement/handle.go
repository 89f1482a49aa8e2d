package movement

import (
	"time"

	"storeledger/internal/core/apperror"
	"storeledger/internal/core/entity"
	"storeledger/internal/core/id"
	"storeledger/internal/core/types"
)

// State is the lifecycle state of a document handle.
type State string

const (
	StateDraft     State = "draft"
	StateCommitted State = "committed"
	StateReopened  State = "reopened"
)

// LineInput is an add or change of one product line.
type LineInput struct {
	ProductID   string
	ProductName string
	Quantity    int64

	// UnitCost nil keeps the cost already on the line.
	UnitCost   *types.Money
	RejectType entity.RejectType
}

// Handle is an in-memory movement document being edited by one session.
//
// Lines are keyed by product. UpsertLine and RemoveLine are the only
// mutators; both leave the line unfixed so the next commit diffs it
// against the quantity last applied to stock. Removed lines stay in the
// collection with quantity 0 until that commit.
type Handle struct {
	id     id.ID
	header entity.MovementHeader
	lines  map[string]*entity.MovementLine
	order  []string

	// persisted is set once a commit of this document has succeeded.
	persisted bool
	// assigned marks a movement number taken over from another document
	// instead of allocated.
	assigned bool
}

func newHandle(header entity.MovementHeader) *Handle {
	return &Handle{
		id:     id.New(),
		header: header,
		lines:  make(map[string]*entity.MovementLine),
	}
}

// ID returns the session identity of the handle.
func (h *Handle) ID() id.ID { return h.id }

// Header returns a copy of the header.
func (h *Handle) Header() entity.MovementHeader { return h.header }

// Ref returns the durable identity. Number is DraftNumber before the
// first commit allocates one.
func (h *Handle) Ref() entity.MovementRef { return h.header.Ref() }

// State derives the lifecycle state.
func (h *Handle) State() State {
	switch {
	case h.header.Fixed:
		return StateCommitted
	case h.persisted:
		return StateReopened
	default:
		return StateDraft
	}
}

// Editable reports whether lines and header fields may change.
func (h *Handle) Editable() bool {
	return h.State() != StateCommitted
}

func (h *Handle) ensureEditable() error {
	if !h.Editable() {
		return apperror.NewNotEditable(string(h.State()))
	}
	return nil
}

// SetCounterparty changes the supplier or other store.
func (h *Handle) SetCounterparty(code string) error {
	if err := h.ensureEditable(); err != nil {
		return err
	}
	h.header.CounterpartyCode = code
	return nil
}

// SetDate changes the document date.
func (h *Handle) SetDate(date time.Time) error {
	if err := h.ensureEditable(); err != nil {
		return err
	}
	h.header.Date = date
	return nil
}

// UpsertLine adds a line or changes an existing one. A removed line is
// revived.
func (h *Handle) UpsertLine(in LineInput) error {
	if err := h.ensureEditable(); err != nil {
		return err
	}
	if in.ProductID == "" {
		return apperror.NewValidation("product id is required").WithDetail("field", "productId")
	}
	if in.Quantity < 0 {
		return apperror.NewValidation("quantity must not be negative").
			WithDetail("productId", in.ProductID).
			WithDetail("quantity", in.Quantity)
	}
	if !in.RejectType.Valid() {
		return apperror.NewValidation("unknown reject type").WithDetail("rejectType", string(in.RejectType))
	}

	line, ok := h.lines[in.ProductID]
	if !ok {
		line = &entity.MovementLine{ProductID: in.ProductID}
		h.lines[in.ProductID] = line
		h.order = append(h.order, in.ProductID)
	}
	if in.ProductName != "" {
		line.ProductName = in.ProductName
	}
	if in.UnitCost != nil {
		line.UnitCost = types.MoneyPtr(*in.UnitCost)
	}
	if in.RejectType != "" {
		line.RejectType = in.RejectType
	}
	line.Quantity = in.Quantity
	line.Removed = false
	line.Fixed = false
	return nil
}

// RemoveLine soft-removes a line: quantity 0, kept until the next commit.
func (h *Handle) RemoveLine(productID string) error {
	if err := h.ensureEditable(); err != nil {
		return err
	}
	line, ok := h.lines[productID]
	if !ok {
		return apperror.NewNotFound("line", productID)
	}
	line.Removed = true
	line.Quantity = 0
	line.Fixed = false
	return nil
}

// Line returns a copy of the line for productID.
func (h *Handle) Line(productID string) (entity.MovementLine, bool) {
	line, ok := h.lines[productID]
	if !ok {
		return entity.MovementLine{}, false
	}
	return *line, true
}

// Lines returns copies of every line, removed ones included, in the order
// they were first added.
func (h *Handle) Lines() []entity.MovementLine {
	out := make([]entity.MovementLine, 0, len(h.order))
	for _, pid := range h.order {
		out = append(out, *h.lines[pid])
	}
	return out
}

// Unfixed returns copies of the lines touched since the last commit.
func (h *Handle) Unfixed() []entity.MovementLine {
	var out []entity.MovementLine
	for _, pid := range h.order {
		if line := h.lines[pid]; !line.Fixed {
			out = append(out, *line)
		}
	}
	return out
}

// Totals aggregates the live lines as they are now.
func (h *Handle) Totals() entity.Totals {
	return ComputeTotals(h.Lines())
}

// reopen is the in-memory toggle back to editing.
func (h *Handle) reopen() error {
	if h.State() != StateCommitted {
		return apperror.NewPrecondition("", "only a committed document can be reopened").
			WithDetail("state", string(h.State()))
	}
	h.header.Fixed = false
	return nil
}

// markCommitted applies the outcome of a successful commit: every line
// fixed, removed and empty lines dropped, header fixed.
func (h *Handle) markCommitted(header entity.MovementHeader) {
	kept := h.order[:0]
	for _, pid := range h.order {
		line := h.lines[pid]
		if line.Removed || line.Quantity == 0 {
			delete(h.lines, pid)
			continue
		}
		line.Fixed = true
		kept = append(kept, pid)
	}
	h.order = kept
	h.header = header
	h.persisted = true
}

// Snapshot is the serialisable form of a handle kept by session stores.
type Snapshot struct {
	ID        id.ID                 `json:"id"`
	Header    entity.MovementHeader `json:"header"`
	Lines     []entity.MovementLine `json:"lines"`
	Persisted bool                  `json:"persisted"`
	Assigned  bool                  `json:"assigned"`
}

// Snapshot captures the handle.
func (h *Handle) Snapshot() Snapshot {
	return Snapshot{
		ID:        h.id,
		Header:    h.header,
		Lines:     h.Lines(),
		Persisted: h.persisted,
		Assigned:  h.assigned,
	}
}

// Restore rebuilds a handle from a snapshot.
func Restore(s Snapshot) *Handle {
	h := &Handle{
		id:        s.ID,
		header:    s.Header,
		lines:     make(map[string]*entity.MovementLine, len(s.Lines)),
		persisted: s.Persisted,
		assigned:  s.Assigned,
	}
	for i := range s.Lines {
		line := s.Lines[i]
		h.lines[line.ProductID] = &line
		h.order = append(h.order, line.ProductID)
	}
	return h
}

// View is the read model returned to callers.
type View struct {
	ID     id.ID                 `json:"handle"`
	State  State                 `json:"state"`
	Header entity.MovementHeader `json:"header"`
	Lines  []entity.MovementLine `json:"lines"`
	// Pending is the totals the document would have if committed now.
	Pending entity.Totals `json:"pending"`
	// Summary is the per-kind breakdown, if the kind has one.
	Summary any `json:"summary,omitempty"`
}

// View returns the read model of the handle.
func (h *Handle) View() View {
	return View{
		ID:      h.id,
		State:   h.State(),
		Header:  h.header,
		Lines:   h.Lines(),
		Pending: h.Totals(),
	}
}
