package labels

import "fmt"

// classNames is the fixed, ordered label table the detection model was
// trained with. Class 0 is the whole-person box.
var classNames = []string{
	"Body",
	"Face",
	"Head",
	"Hair",
	"Eye",
	"Eyebrow",
	"Nose",
	"Mouth",
	"Ear",
	"Neck",
	"Shoulder",
	"Chest",
	"Back",
	"Arm",
	"Elbow",
	"Hand",
	"Finger",
	"Waist",
	"Hip",
	"Leg",
	"Knee",
	"Foot",
	"Toe",
	"Skin",
	"Clothing",
}

// excludedIDs are classes suppressed from output regardless of score. Skin
// and Clothing regions overlap nearly every other class and drown the
// renderer in boxes.
var excludedIDs = map[int]struct{}{
	23: {},
	24: {},
}

// Table maps class IDs to names and carries the excluded-class set. Both
// are static configuration; a Table is never mutated at runtime.
type Table struct {
	names    []string
	excluded map[int]struct{}
}

// Default returns the built-in 25-class table.
func Default() *Table {
	return &Table{names: classNames, excluded: excludedIDs}
}

// NewTable builds a table from caller-supplied names and exclusions.
func NewTable(names []string, excluded []int) *Table {
	ex := make(map[int]struct{}, len(excluded))
	for _, id := range excluded {
		ex[id] = struct{}{}
	}
	return &Table{names: names, excluded: ex}
}

func (t *Table) NumClasses() int {
	return len(t.names)
}

// Name returns the label for a class ID, or a stable placeholder for IDs
// outside the table.
func (t *Table) Name(id int) string {
	if id < 0 || id >= len(t.names) {
		return fmt.Sprintf("class_%d", id)
	}
	return t.names[id]
}

// Excluded reports whether detections of this class are dropped.
func (t *Table) Excluded(id int) bool {
	_, ok := t.excluded[id]
	return ok
}
