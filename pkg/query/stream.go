package query

import "github.com/orneryd/runegraph/pkg/value"

// ResultStream receives query output. Calls arrive in order: one Header,
// zero or more Result, one Summary. On execution failure the summary is
// withheld and the error returned instead.
type ResultStream interface {
	Header(names []string) error
	Result(values []value.Value) error
	Summary(summary map[string]value.Value) error
}
