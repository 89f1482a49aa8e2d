package inventorycount

import (
	"storeledger/internal/core/apperror"
	"storeledger/internal/core/entity"
	"storeledger/internal/core/id"
)

// Count is an inventory count being worked on by one operator session.
// Recorded quantities live here until the count is fixed.
type Count struct {
	header entity.CountHeader
	lines  map[string]*entity.CountLine
	order  []string
}

func newCount(header entity.CountHeader, lines []entity.CountLine) *Count {
	c := &Count{header: header, lines: make(map[string]*entity.CountLine, len(lines))}
	for i := range lines {
		c.add(lines[i])
	}
	return c
}

func (c *Count) add(line entity.CountLine) *entity.CountLine {
	l := line
	c.lines[l.ProductID] = &l
	c.order = append(c.order, l.ProductID)
	return &l
}

// ID returns the count id.
func (c *Count) ID() id.ID { return c.header.ID }

// Header returns a copy of the header.
func (c *Count) Header() entity.CountHeader { return c.header }

// Fixed reports whether the count is finalized.
func (c *Count) Fixed() bool { return c.header.Fixed() }

// Line returns a copy of the line of productID.
func (c *Count) Line(productID string) (entity.CountLine, bool) {
	l, ok := c.lines[productID]
	if !ok {
		return entity.CountLine{}, false
	}
	return *l, true
}

// Lines returns copies of all lines in snapshot order, products added
// during the count last.
func (c *Count) Lines() []entity.CountLine {
	out := make([]entity.CountLine, 0, len(c.order))
	for _, pid := range c.order {
		out = append(out, *c.lines[pid])
	}
	return out
}

// Counted returns the lines with a recorded quantity.
func (c *Count) Counted() []entity.CountLine {
	var out []entity.CountLine
	for _, pid := range c.order {
		if l := c.lines[pid]; l.Counted() {
			out = append(out, *l)
		}
	}
	return out
}

func (c *Count) ensureOpen() error {
	if c.Fixed() {
		return apperror.NewNotEditable("fixed")
	}
	return nil
}

// Totals aggregates counted lines.
type Totals struct {
	Variety  int   `json:"variety"`
	Counted  int64 `json:"counted"`
	Variance int64 `json:"variance"`
}

// ComputeTotals aggregates the counted lines.
func ComputeTotals(lines []entity.CountLine) Totals {
	var t Totals
	for _, l := range lines {
		if !l.Counted() {
			continue
		}
		t.Variety++
		t.Counted += l.Quantity
		t.Variance += l.Variance()
	}
	return t
}

// Snapshot is the serialisable form of a count kept by session stores.
type Snapshot struct {
	Header entity.CountHeader `json:"header"`
	Lines  []entity.CountLine `json:"lines"`
}

// Snapshot captures the count.
func (c *Count) Snapshot() Snapshot {
	return Snapshot{Header: c.header, Lines: c.Lines()}
}

// Restore rebuilds a count from a snapshot.
func Restore(s Snapshot) *Count {
	return newCount(s.Header, s.Lines)
}

// View is the read model returned to callers.
type View struct {
	Header entity.CountHeader `json:"header"`
	Lines  []entity.CountLine `json:"lines"`
	Totals Totals             `json:"totals"`
}

// View returns the read model.
func (c *Count) View() View {
	return View{Header: c.header, Lines: c.Lines(), Totals: ComputeTotals(c.Lines())}
}
