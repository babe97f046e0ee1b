package server

import (
	"strings"

	"gravitywell/core/types"
)

// operatorAuthority lets the listed subjects unwind any bucket. An empty
// list admits every non-empty subject; the admin scope has already been
// checked by the time the engine asks.
type operatorAuthority struct {
	operators map[string]struct{}
}

func newOperatorAuthority(operators []string) operatorAuthority {
	set := make(map[string]struct{}, len(operators))
	for _, op := range operators {
		if id := types.NormalizeAccount(op); id != "" {
			set[id] = struct{}{}
		}
	}
	return operatorAuthority{operators: set}
}

func (a operatorAuthority) CanUnwind(caller, bucket string) bool {
	caller = types.NormalizeAccount(caller)
	if caller == "" || strings.TrimSpace(bucket) == "" {
		return false
	}
	if len(a.operators) == 0 {
		return true
	}
	_, ok := a.operators[caller]
	return ok
}
