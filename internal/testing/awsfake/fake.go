// Package awsfake holds in-memory simulators of the AWS APIs envforge
// talks to. Each server satisfies the narrow client interface of the
// package that consumes it and records the operations it served.
package awsfake

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aws/smithy-go"
)

// APIError builds a provider-shaped error with the given code.
func APIError(code, format string, args ...any) error {
	return &smithy.GenericAPIError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Fault:   smithy.FaultClient,
	}
}

// ops records calls per operation and holds injected failures.
type ops struct {
	opsMu    sync.Mutex
	calls    map[string]int
	failures map[string]error
}

// Fail makes every later call to op return err. A nil err clears it.
func (o *ops) Fail(op string, err error) {
	o.opsMu.Lock()
	defer o.opsMu.Unlock()
	if o.failures == nil {
		o.failures = map[string]error{}
	}
	if err == nil {
		delete(o.failures, op)
		return
	}
	o.failures[op] = err
}

// Calls returns how many times op was invoked.
func (o *ops) Calls(op string) int {
	o.opsMu.Lock()
	defer o.opsMu.Unlock()
	return o.calls[op]
}

// Called lists the operations invoked at least once, sorted.
func (o *ops) Called() []string {
	o.opsMu.Lock()
	defer o.opsMu.Unlock()
	out := make([]string, 0, len(o.calls))
	for op := range o.calls {
		out = append(out, op)
	}
	sort.Strings(out)
	return out
}

func (o *ops) enter(op string) error {
	o.opsMu.Lock()
	defer o.opsMu.Unlock()
	if o.calls == nil {
		o.calls = map[string]int{}
	}
	o.calls[op]++
	return o.failures[op]
}

func (o *ops) resetOps() {
	o.opsMu.Lock()
	defer o.opsMu.Unlock()
	o.calls = map[string]int{}
	o.failures = map[string]error{}
}

type idSeq struct{ n int }

func (s *idSeq) next(prefix string) string {
	s.n++
	return fmt.Sprintf("%s-%08x", prefix, s.n)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
