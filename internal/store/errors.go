package store

import "fmt"

// ConsistencyError reports that the list file was written but the table file
// was not. The two files may disagree until the next successful run.
type ConsistencyError struct {
	Written string
	Failed  string
	Err     error
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("store: %s was updated but writing %s failed, stores may be inconsistent: %v", e.Written, e.Failed, e.Err)
}

func (e *ConsistencyError) Unwrap() error {
	return e.Err
}

// Inconsistent is always true; it lets callers test for the condition
// without importing this package.
func (e *ConsistencyError) Inconsistent() bool {
	return true
}
