// Package fill maps tabular records onto a template's form widgets and
// drives batch processing.
//
// Filling one row is split into two phases. Discovery reads widgets from a
// pristine snapshot of the template and produces the update list as a pure
// function of the record and the widget index. Apply replays that list
// against an independently opened copy. The split keeps reads and writes
// decoupled, so the update set stays reproducible under field-name
// collisions across pages.
package fill

import (
	"errors"

	"go.uber.org/zap"

	"github.com/acrofill/acrofill/internal/document"
	"github.com/acrofill/acrofill/internal/rowdata"
)

// ErrNoMatchingFields indicates a record shares no column names with the
// template's widgets. The affected row fails; the batch continues.
var ErrNoMatchingFields = errors.New("no matching form fields")

// Update is one planned field write: which widget, on which page, and the
// normalized value to store.
type Update struct {
	Field string
	Value string
	Page  int
}

// Plan is the discovery-phase output for a single record.
type Plan struct {
	Updates   []Update
	Unmatched []string
}

// BuildIndex folds a widget enumeration into a name-to-page lookup. When a
// name repeats across pages the last page wins; several known templates
// rely on that resolution, so it is load-bearing, not incidental.
func BuildIndex(widgets []document.Widget) map[string]int {
	index := make(map[string]int, len(widgets))
	for _, w := range widgets {
		index[w.Name] = w.Page
	}
	return index
}

// BuildPlan intersects a record's columns with the widget index and returns
// the updates to apply. Columns with no matching widget are reported in
// Unmatched. A plan with zero updates fails with ErrNoMatchingFields.
func BuildPlan(index map[string]int, rec rowdata.Record) (Plan, error) {
	var plan Plan
	for _, col := range rec.FieldColumns() {
		page, ok := index[col]
		if !ok {
			plan.Unmatched = append(plan.Unmatched, col)
			continue
		}
		raw, _ := rec.Get(col)
		plan.Updates = append(plan.Updates, Update{
			Field: col,
			Value: rowdata.Normalize(raw),
			Page:  page,
		})
	}
	if len(plan.Updates) == 0 {
		return plan, ErrNoMatchingFields
	}
	return plan, nil
}

// ApplyPlan writes every planned update into doc. A widget missing on its
// recorded page is logged and skipped; it never aborts the row. Returns the
// number of updates actually written.
func ApplyPlan(doc document.Document, plan Plan, logger *zap.Logger) int {
	applied := 0
	for _, u := range plan.Updates {
		if err := doc.SetFieldValue(u.Field, u.Page, u.Value); err != nil {
			logger.Warn("skipping field update",
				zap.String("field", u.Field),
				zap.Int("page", u.Page),
				zap.Error(err))
			continue
		}
		applied++
	}
	return applied
}
