package observer

import "sync"

// Condition is satisfied by a rank type usable both for OrderedList
// ordering and for the domain-specific matching rule used by notify.
type Condition[C any] interface {
	comparable
	Less[C]
	Matches(other C) bool
}

// Observer receives data dispatched by a ConditionallyObserved.
type Observer[D any, C any] interface {
	Update(cond C, data D)
}

// ConditionallyObserved holds an ordered list of (observer, condition)
// pairs and dispatches data to every observer whose stored condition
// matches an arriving condition under the domain-specific rule. Attach,
// Detach and Notify hold a mutex so the registry is safe across the
// dispatcher thread and user goroutines.
type ConditionallyObserved[D any, C Condition[C]] struct {
	mu   sync.Mutex
	list *OrderedList[Observer[D, C], C]
}

// NewConditionallyObserved returns an empty registry.
func NewConditionallyObserved[D any, C Condition[C]]() *ConditionallyObserved[D, C] {
	return &ConditionallyObserved[D, C]{list: NewOrderedList[Observer[D, C], C]()}
}

// Attach registers obs under cond.
func (o *ConditionallyObserved[D, C]) Attach(obs Observer[D, C], cond C) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.list.Insert(obs, cond)
}

// Detach removes the first (obs, cond) pair matching by pointer identity
// of obs and the supplied cond.
func (o *ConditionallyObserved[D, C]) Detach(obs Observer[D, C], cond C) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.list.Remove(func(o2 Observer[D, C], c C) bool {
		return o2 == obs && c == cond
	})
}

// Notify dispatches data to every observer whose stored condition
// matches cond under the Condition.Matches rule. It returns true iff at
// least one observer accepted the data.
func (o *ConditionallyObserved[D, C]) Notify(cond C, data D) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	notified := false
	o.list.Each(func(obs Observer[D, C], rank C) {
		if rank.Matches(cond) {
			obs.Update(cond, data)
			notified = true
		}
	})
	return notified
}

// Conditions returns every stored condition in rank order, including
// duplicates; callers that need each distinct condition once (the
// broadcast fan-out path) dedupe the result.
func (o *ConditionallyObserved[D, C]) Conditions() []C {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]C, 0, o.list.Len())
	o.list.Each(func(_ Observer[D, C], rank C) {
		out = append(out, rank)
	})
	return out
}

// Len returns the number of attached (observer, condition) pairs.
func (o *ConditionallyObserved[D, C]) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.list.Len()
}
