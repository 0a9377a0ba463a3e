package engine

// Code is the caller-visible result of one poll cycle. The values double as
// process exit codes for status-only invocations.
type Code int

const (
	// CodeError covers auth failures, fetch failures, and missing credentials.
	CodeError Code = -1

	// CodeNoChange means a verified poll found the order unchanged.
	CodeNoChange Code = 0

	// CodeChanged means a verified poll detected at least one relevant change.
	CodeChanged Code = 1

	// CodePending means a check was due but the TTL throttle reused the
	// cached snapshot, so the true current state is unverified this cycle.
	CodePending Code = 2
)

// String renders the code for logs and text output.
func (c Code) String() string {
	switch c {
	case CodeError:
		return "error"
	case CodeNoChange:
		return "no change"
	case CodeChanged:
		return "changed"
	case CodePending:
		return "pending"
	default:
		return "unknown"
	}
}

// Classify maps the outcome of one poll cycle to its result code. This is
// the contract for callers that only need the code, not the detailed diff.
//
// Throttled means the automatic TTL-based cache reuse kicked in, not an
// explicit cached request: a real check was due but skipped, so the state
// is unverified and the result is pending rather than "no change".
func Classify(hasChanges, throttled, fetchSucceeded, tokenValid bool) Code {
	switch {
	case !tokenValid || !fetchSucceeded:
		return CodeError
	case throttled:
		return CodePending
	case hasChanges:
		return CodeChanged
	default:
		return CodeNoChange
	}
}

// Overall folds per-reference codes into the single code reported for a
// whole run: any error wins, then any change, then any pending reference.
func Overall(results []Result) Code {
	code := CodeNoChange
	for _, r := range results {
		switch r.Code {
		case CodeError:
			return CodeError
		case CodeChanged:
			code = CodeChanged
		case CodePending:
			if code == CodeNoChange {
				code = CodePending
			}
		}
	}
	return code
}
