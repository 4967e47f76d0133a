package tenantscope

import (
	"fmt"
)

// Op is the closed set of operations a [Storage] executes.
type Op int

const (
	OpReadOne Op = iota + 1
	OpReadMany
	OpCount
	OpUpdateOne
	OpUpdateMany
	OpDeleteOne
	OpDeleteMany
	OpCreateOne
	OpCreateMany
)

var opNames = [...]string{
	OpReadOne:    "readOne",
	OpReadMany:   "readMany",
	OpCount:      "count",
	OpUpdateOne:  "updateOne",
	OpUpdateMany: "updateMany",
	OpDeleteOne:  "deleteOne",
	OpDeleteMany: "deleteMany",
	OpCreateOne:  "createOne",
	OpCreateMany: "createMany",
}

// Ops lists every operation in declaration order.
func Ops() []Op {
	ops := make([]Op, 0, len(opNames)-1)
	for op := OpReadOne; op <= OpCreateMany; op++ {
		ops = append(ops, op)
	}
	return ops
}

func ParseOp(s string) (Op, error) {
	for op := OpReadOne; op <= OpCreateMany; op++ {
		if opNames[op] == s {
			return op, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownOp, s)
}

func (op Op) Valid() bool {
	return op >= OpReadOne && op <= OpCreateMany
}

func (op Op) String() string {
	if !op.Valid() {
		return fmt.Sprintf("Op(%d)", int(op))
	}
	return opNames[op]
}
