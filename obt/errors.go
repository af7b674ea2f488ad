package obt

import "fmt"

//MalformedTreeError reports a compact tree whose serialized arrays violate
//the length invariants of the oblivious layout. It is fatal to the single
//tree; the ensemble loader decides whether to abort or skip.
type MalformedTreeError struct {
	Reason string
}

func (e MalformedTreeError) Error() string {
	return "malformed oblivious tree: " + e.Reason
}

func malformedf(format string, args ...interface{}) MalformedTreeError {
	return MalformedTreeError{Reason: fmt.Sprintf(format, args...)}
}

//HandleError panics in case of a non-nil error.
func HandleError(err error) {
	if err != nil {
		panic(err)
	}
}
