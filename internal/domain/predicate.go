package domain

import (
	"errors"
	"fmt"
)

type Operator string

const (
	OpEqual Operator = "eq"
	OpGTE   Operator = "gte"
	OpLTE   Operator = "lte"
	OpIn    Operator = "in"
)

// Clause is one condition of a conjunctive predicate. Numeric operators
// use Number; OpEqual and OpIn use Values.
type Clause struct {
	Field  Field
	Op     Operator
	Number Decimal
	Values []string
}

// Predicate is the conjunction of its clauses. The empty predicate matches
// every record.
type Predicate struct {
	Clauses []Clause
}

// Matches evaluates the predicate against a record. An absent value never
// satisfies a clause, mirroring SQL NULL comparison.
func (p Predicate) Matches(inst Instrument) bool {
	for _, c := range p.Clauses {
		if !c.matches(inst) {
			return false
		}
	}
	return true
}

func (c Clause) matches(inst Instrument) bool {
	switch c.Op {
	case OpGTE:
		v := inst.NumericValue(c.Field)
		return v != nil && v.Cmp(c.Number) >= 0
	case OpLTE:
		v := inst.NumericValue(c.Field)
		return v != nil && v.Cmp(c.Number) <= 0
	case OpEqual, OpIn:
		v, ok := inst.TextValue(c.Field)
		if !ok {
			return false
		}
		for _, want := range c.Values {
			if v == want {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// PredicateBuilder folds optional clauses into a Predicate. Every method
// skips its clause when the input carries no constraint.
type PredicateBuilder struct {
	clauses []Clause
}

func NewPredicateBuilder() *PredicateBuilder {
	return &PredicateBuilder{}
}

func (b *PredicateBuilder) Equal(field Field, value string) *PredicateBuilder {
	if value == "" {
		return b
	}
	b.clauses = append(b.clauses, Clause{Field: field, Op: OpEqual, Values: []string{value}})
	return b
}

func (b *PredicateBuilder) Range(field Field, r Range) *PredicateBuilder {
	if r.Min != nil {
		b.clauses = append(b.clauses, Clause{Field: field, Op: OpGTE, Number: *r.Min})
	}
	if r.Max != nil {
		b.clauses = append(b.clauses, Clause{Field: field, Op: OpLTE, Number: *r.Max})
	}
	return b
}

func (b *PredicateBuilder) In(field Field, values []string) *PredicateBuilder {
	if len(values) == 0 {
		return b
	}
	vs := make([]string, len(values))
	copy(vs, values)
	b.clauses = append(b.clauses, Clause{Field: field, Op: OpIn, Values: vs})
	return b
}

func (b *PredicateBuilder) Build() Predicate {
	clauses := make([]Clause, len(b.clauses))
	copy(clauses, b.clauses)
	return Predicate{Clauses: clauses}
}

// Query is a predicate plus an ordered window over its matches.
type Query struct {
	Predicate Predicate
	Sort      Sort
	Offset    int
	Limit     int
}

var ErrInvalidQuery = errors.New("invalid query")

// Validate rejects windows no store can serve.
func (q Query) Validate() error {
	if q.Offset < 0 {
		return fmt.Errorf("%w: negative offset %d", ErrInvalidQuery, q.Offset)
	}
	if q.Limit < 0 {
		return fmt.Errorf("%w: negative limit %d", ErrInvalidQuery, q.Limit)
	}
	return nil
}
