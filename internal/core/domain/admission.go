package domain

type Decision string

const (
	DecisionNew              Decision = "new"
	DecisionUnchanged        Decision = "unchanged"
	DecisionChanged          Decision = "changed"
	DecisionDuplicateContent Decision = "duplicate_content"
)

// NeedsProcessing reports whether the decision requires chunking and
// embedding before commit.
func (d Decision) NeedsProcessing() bool {
	return d == DecisionNew || d == DecisionChanged
}

// Admission is the outcome of the read-only admit step. DuplicateOf is set
// only for DecisionDuplicateContent and names the doc_id already holding the
// content hash.
type Admission struct {
	Decision    Decision
	DuplicateOf string
}

// Decide computes the admission decision from the current ledger row (nil
// when no row exists for the doc_id), the doc_id that already holds the
// incoming content hash (empty when unheld), and the incoming hash itself.
//
// Rules, in order:
//   - no row, hash held elsewhere      -> duplicate_content
//   - no row                           -> new
//   - row soft-deleted                 -> changed (undelete, even on hash match)
//   - empty hash                       -> changed (empty content is never deduplicated)
//   - hash matches stored hash         -> unchanged
//   - otherwise                        -> changed
func Decide(existing *Document, duplicateOf, contentHash string) Admission {
	if existing == nil {
		if contentHash != "" && duplicateOf != "" {
			return Admission{Decision: DecisionDuplicateContent, DuplicateOf: duplicateOf}
		}
		return Admission{Decision: DecisionNew}
	}
	if existing.IsDeleted {
		return Admission{Decision: DecisionChanged}
	}
	if contentHash == "" {
		return Admission{Decision: DecisionChanged}
	}
	if existing.ContentHash == contentHash {
		return Admission{Decision: DecisionUnchanged}
	}
	return Admission{Decision: DecisionChanged}
}
