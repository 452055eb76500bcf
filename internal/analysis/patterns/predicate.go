// Package patterns matches declarative strategic patterns against factor
// scores.  A pattern is a predicate tree of threshold conditions over
// factor IDs; matching is pure data evaluation with no code per pattern.
package patterns

import (
	"fmt"
	"strings"

	"github.com/stratlens/stratlens/internal/analysis/mathmodel"
	"github.com/stratlens/stratlens/pkg/errors"
)

// Comparator relates a factor value to a threshold.
type Comparator string

const (
	CmpGT Comparator = ">"
	CmpGE Comparator = ">="
	CmpLT Comparator = "<"
	CmpLE Comparator = "<="
)

// Condition is one threshold test against a single factor.
type Condition struct {
	FactorID   string     `json:"factor_id"`
	Comparator Comparator `json:"comparator"`
	Threshold  float64    `json:"threshold"`
}

func (c Condition) String() string {
	return fmt.Sprintf("%s%s%.2f", c.FactorID, c.Comparator, c.Threshold)
}

// Validate rejects malformed conditions at library load time rather than
// at match time.
func (c Condition) Validate() error {
	if c.FactorID == "" {
		return errors.NewValidation("condition: factor_id must not be empty")
	}
	switch c.Comparator {
	case CmpGT, CmpGE, CmpLT, CmpLE:
	default:
		return errors.Newf(errors.ErrCodeValidation, "condition %s: unknown comparator %q", c.FactorID, c.Comparator)
	}
	if c.Threshold < 0 || c.Threshold > 1 {
		return errors.Newf(errors.ErrCodeValidation, "condition %s: threshold %f outside [0,1]", c.FactorID, c.Threshold)
	}
	return nil
}

// FactorValue is the slice of a factor result the matcher needs.
type FactorValue struct {
	Value      float64
	Confidence float64
}

// evaluate tests the condition against the score map.  A factor absent
// from the map never satisfies a condition.  The returned margin is how
// far past the threshold the value sits, normalized to [0,1]; it feeds
// the monotone match score.
func (c Condition) evaluate(scores map[string]FactorValue) (ok bool, margin float64) {
	fv, present := scores[c.FactorID]
	if !present {
		return false, 0
	}
	v := fv.Value
	switch c.Comparator {
	case CmpGT:
		ok = v > c.Threshold
	case CmpGE:
		ok = v >= c.Threshold
	case CmpLT:
		ok = v < c.Threshold
	case CmpLE:
		ok = v <= c.Threshold
	}
	if !ok {
		return false, 0
	}
	switch c.Comparator {
	case CmpGT, CmpGE:
		span := 1 - c.Threshold
		if span <= 0 {
			return true, 1
		}
		return true, mathmodel.Clamp01((v - c.Threshold) / span)
	default:
		if c.Threshold <= 0 {
			return true, 1
		}
		return true, mathmodel.Clamp01((c.Threshold - v) / c.Threshold)
	}
}

// Op combines the parts of a predicate node.
type Op string

const (
	OpAnd Op = "and"
	OpOr  Op = "or"
)

// Predicate is a boolean tree over conditions.  Conds and Subs under the
// same node share the node's operator.
type Predicate struct {
	Op    Op          `json:"op"`
	Conds []Condition `json:"conditions,omitempty"`
	Subs  []Predicate `json:"subs,omitempty"`
}

// All builds an AND node over conditions.
func All(conds ...Condition) Predicate {
	return Predicate{Op: OpAnd, Conds: conds}
}

// Any builds an OR node over conditions.
func Any(conds ...Condition) Predicate {
	return Predicate{Op: OpOr, Conds: conds}
}

// Validate walks the tree checking operators and conditions.
func (p Predicate) Validate() error {
	if p.Op != OpAnd && p.Op != OpOr {
		return errors.Newf(errors.ErrCodeValidation, "predicate: unknown op %q", p.Op)
	}
	if len(p.Conds) == 0 && len(p.Subs) == 0 {
		return errors.NewValidation("predicate: node has no conditions and no subtrees")
	}
	for _, c := range p.Conds {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	for _, s := range p.Subs {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// String renders the tree in infix form for logging and audit output.
func (p Predicate) String() string {
	parts := make([]string, 0, len(p.Conds)+len(p.Subs))
	for _, c := range p.Conds {
		parts = append(parts, c.String())
	}
	for _, s := range p.Subs {
		parts = append(parts, "("+s.String()+")")
	}
	sep := " AND "
	if p.Op == OpOr {
		sep = " OR "
	}
	return strings.Join(parts, sep)
}

// Evaluate tests the tree against the score map.  On a match it returns
// the triggering factor IDs in evaluation order and the aggregate margin:
// AND takes the weakest branch, OR the strongest matching branch, so the
// margin stays monotone in how decisively the scores clear the
// thresholds.
func (p Predicate) Evaluate(scores map[string]FactorValue) (matched bool, triggered []string, margin float64) {
	type branch struct {
		ok        bool
		triggered []string
		margin    float64
	}
	branches := make([]branch, 0, len(p.Conds)+len(p.Subs))
	for _, c := range p.Conds {
		ok, m := c.evaluate(scores)
		branches = append(branches, branch{ok: ok, triggered: []string{c.FactorID}, margin: m})
	}
	for _, s := range p.Subs {
		ok, trig, m := s.Evaluate(scores)
		branches = append(branches, branch{ok: ok, triggered: trig, margin: m})
	}

	if p.Op == OpAnd {
		margin = 1
		for _, b := range branches {
			if !b.ok {
				return false, nil, 0
			}
			triggered = append(triggered, b.triggered...)
			if b.margin < margin {
				margin = b.margin
			}
		}
		return true, triggered, margin
	}

	// OR keeps every matching branch's factors but scores by the best one.
	for _, b := range branches {
		if !b.ok {
			continue
		}
		matched = true
		triggered = append(triggered, b.triggered...)
		if b.margin > margin {
			margin = b.margin
		}
	}
	if !matched {
		return false, nil, 0
	}
	return true, triggered, margin
}

// Factors returns the distinct factor IDs the tree references.
func (p Predicate) Factors() []string {
	seen := make(map[string]bool)
	var out []string
	var walk func(Predicate)
	walk = func(node Predicate) {
		for _, c := range node.Conds {
			if !seen[c.FactorID] {
				seen[c.FactorID] = true
				out = append(out, c.FactorID)
			}
		}
		for _, s := range node.Subs {
			walk(s)
		}
	}
	walk(p)
	return out
}
