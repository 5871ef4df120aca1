package rubric

import (
	"strconv"
	"unicode"
)

// AllCode selects every table of the rubric.
const AllCode = "ALL"

// Subitem is the smallest gradable unit of a rubric item.
type Subitem struct {
	// Points is added to the item total when the subitem is awarded.
	// Negative points act as deductions.
	Points float64
	// Description is shown to the grader.
	Description string
}

// Dependencies holds the resolved dependency sets of an item.
type Dependencies struct {
	// HasRan lists items whose test must have run in the current session
	// before this item's test may run.
	HasRan []*Item
	// IsGraded lists items that should already be graded before this item is
	// scored. Advisory only.
	IsGraded []*Item
}

// Item is one gradable unit of the rubric, e.g. "B4".
type Item struct {
	// Code is unique across the rubric; its leading letters name the table.
	Code string
	// Table is the code of the table the item belongs to.
	Table string
	// DeductFrom is the ceiling of a deductive item. Zero for additive items.
	DeductFrom float64
	// Subitems are addressed 1-based as "<Code>.<index>".
	Subitems  []Subitem
	DependsOn Dependencies
}

// Deductive reports whether the item starts at DeductFrom and its subitems
// only subtract.
func (i *Item) Deductive() bool {
	return i.DeductFrom != 0
}

// SubitemCode returns the code of the subitem at the 1-based index.
func (i *Item) SubitemCode(index int) string {
	return i.Code + "." + strconv.Itoa(index)
}

// SubitemCodes returns the codes of all subitems in declaration order.
func (i *Item) SubitemCodes() []string {
	codes := make([]string, len(i.Subitems))
	for idx := range i.Subitems {
		codes[idx] = i.SubitemCode(idx + 1)
	}
	return codes
}

// MaxPoints returns the most points the item can contribute.
func (i *Item) MaxPoints() float64 {
	if i.Deductive() {
		return i.DeductFrom
	}
	total := 0.0
	for _, s := range i.Subitems {
		if s.Points > 0 {
			total += s.Points
		}
	}
	return total
}

type table struct {
	code  string
	items []*Item
	index map[string]*Item
}

// Rubric is the immutable, ordered scoring structure of one assignment:
// tables in declaration order, each holding items in declaration order.
type Rubric struct {
	tables      []*table
	tableIndex  map[string]*table
	itemIndex   map[string]*Item
	latePenalty *float64
}

// Tables returns the table codes in declaration order.
func (r *Rubric) Tables() []string {
	codes := make([]string, len(r.tables))
	for i, t := range r.tables {
		codes[i] = t.code
	}
	return codes
}

// Table returns the items of a table in declaration order.
func (r *Rubric) Table(code string) ([]*Item, error) {
	t, found := r.tableIndex[code]
	if !found {
		return nil, NewUnknownTableError(code)
	}
	items := make([]*Item, len(t.items))
	copy(items, t.items)
	return items, nil
}

// Item returns the item with the given code.
func (r *Rubric) Item(code string) (*Item, error) {
	if _, err := r.Table(TableCode(code)); err != nil {
		return nil, err
	}
	item, found := r.itemIndex[code]
	if !found {
		return nil, NewUnknownItemError(code)
	}
	return item, nil
}

// Items returns every item, table by table.
func (r *Rubric) Items() []*Item {
	items := make([]*Item, 0, len(r.itemIndex))
	for _, t := range r.tables {
		items = append(items, t.items...)
	}
	return items
}

// Select resolves a rubric code argument: AllCode, a table code or an item
// code.
func (r *Rubric) Select(code string) ([]*Item, error) {
	switch {
	case code == AllCode:
		return r.Items(), nil
	case IsTableCode(code):
		return r.Table(code)
	default:
		item, err := r.Item(code)
		if err != nil {
			return nil, err
		}
		return []*Item{item}, nil
	}
}

// SubitemCodes returns every subitem code of the rubric in order.
func (r *Rubric) SubitemCodes() []string {
	var codes []string
	for _, item := range r.Items() {
		codes = append(codes, item.SubitemCodes()...)
	}
	return codes
}

// LatePenalty returns the reserved top-level late_penalty value, if any.
// The rubric itself never interprets it.
func (r *Rubric) LatePenalty() (float64, bool) {
	if r.latePenalty == nil {
		return 0, false
	}
	return *r.latePenalty, true
}

// IsTableCode reports whether code is a non-empty run of letters.
func IsTableCode(code string) bool {
	if code == "" {
		return false
	}
	for _, c := range code {
		if !unicode.IsLetter(c) {
			return false
		}
	}
	return true
}

// TableCode returns the leading letters of an item or subitem code.
func TableCode(code string) string {
	for i, c := range code {
		if !unicode.IsLetter(c) {
			return code[:i]
		}
	}
	return code
}
