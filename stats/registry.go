/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package stats exports component counters two ways, plain JSON and
// Prometheus, from one Registry of named snapshot functions: every
// registered component (buffer pools, NICs, the protocol
// demultiplexer) registers its counters once and gets both exporters
// for free.
package stats

import "sync"

// Source is one component's contribution to the exported metric set:
// a name used as a key prefix and a function returning its current
// counters.
type Source struct {
	Name    string
	Collect func() map[string]int64
}

// Registry collects metrics from every registered Source on demand.
type Registry struct {
	mu      sync.Mutex
	sources []Source
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers a named metrics source. Name should be short and
// underscore-free; Snapshot prefixes each of its keys with
// "name.key".
func (r *Registry) Add(name string, collect func() map[string]int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = append(r.sources, Source{Name: name, Collect: collect})
}

// Snapshot collects every registered source's current counters into a
// single flat map, keyed "source.counter".
func (r *Registry) Snapshot() map[string]int64 {
	r.mu.Lock()
	sources := append([]Source(nil), r.sources...)
	r.mu.Unlock()

	out := make(map[string]int64)
	for _, s := range sources {
		for k, v := range s.Collect() {
			out[s.Name+"."+k] = v
		}
	}
	return out
}
