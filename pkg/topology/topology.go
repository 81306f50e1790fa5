// Package topology models the directed service graph a recipe runs against:
// named services, their fault-injection proxy endpoints, and the dependency
// edges the scenario expander resolves wildcards against.
package topology

import "fmt"

// Service is a named member of the mesh and the proxy endpoints that front
// it. Zero endpoints is legal: the service exists in the graph but cannot be
// targeted for injection (attempts resolve to no-op endpoint lists).
type Service struct {
	Name           string   `json:"name"`
	ProxyEndpoints []string `json:"service_proxies,omitempty"`
}

// Document is the wire shape read from topology.json (spec §6).
type Document struct {
	Services     []Service           `json:"services"`
	Dependencies map[string][]string `json:"dependencies"`
}

// Topology is an immutable directed graph: edge u->v means "u depends on v".
// Iteration order follows declaration order in the source Document so that
// scenario expansion is reproducible, which a bare Go map cannot guarantee.
type Topology struct {
	order        []string
	services     map[string]Service
	dependencies map[string][]string // u -> its dependencies, declaration order
	dependents   map[string][]string // v -> services depending on it, declaration order
}

// Build constructs a Topology from a Document, rejecting malformed input:
// duplicate service names, or a dependency entry naming an undeclared
// service.
func Build(doc Document) (*Topology, error) {
	t := &Topology{
		services:     make(map[string]Service, len(doc.Services)),
		dependencies: make(map[string][]string),
		dependents:   make(map[string][]string),
	}

	for _, svc := range doc.Services {
		if svc.Name == "" {
			return nil, fmt.Errorf("topology: service with empty name")
		}
		if _, exists := t.services[svc.Name]; exists {
			return nil, fmt.Errorf("topology: duplicate service %q", svc.Name)
		}
		t.services[svc.Name] = svc
		t.order = append(t.order, svc.Name)
	}

	// Preserve map iteration determinism by walking declared services first,
	// then any dependency keys not already seen (defensive; valid documents
	// only name declared services).
	depKeys := make([]string, 0, len(doc.Dependencies))
	seen := make(map[string]bool, len(doc.Dependencies))
	for _, name := range t.order {
		if _, ok := doc.Dependencies[name]; ok {
			depKeys = append(depKeys, name)
			seen[name] = true
		}
	}
	for name := range doc.Dependencies {
		if !seen[name] {
			depKeys = append(depKeys, name)
		}
	}

	for _, source := range depKeys {
		if _, ok := t.services[source]; !ok {
			return nil, fmt.Errorf("topology: dependency entry for unknown service %q", source)
		}
		for _, dest := range doc.Dependencies[source] {
			if _, ok := t.services[dest]; !ok {
				return nil, fmt.Errorf("topology: dependency %q -> %q references unknown service %q", source, dest, dest)
			}
			t.dependencies[source] = append(t.dependencies[source], dest)
			t.dependents[dest] = append(t.dependents[dest], source)
		}
	}

	return t, nil
}

// Services returns every declared service name, in declaration order.
func (t *Topology) Services() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Has reports whether name is a declared service.
func (t *Topology) Has(name string) bool {
	_, ok := t.services[name]
	return ok
}

// Dependents returns the services that declare a dependency on v, i.e.
// {u | u -> v}, in the order those dependency edges were declared.
func (t *Topology) Dependents(v string) []string {
	return append([]string(nil), t.dependents[v]...)
}

// Dependencies returns the services u depends on, i.e. {v | u -> v}, in
// declaration order.
func (t *Topology) Dependencies(u string) []string {
	return append([]string(nil), t.dependencies[u]...)
}

// Endpoints returns the proxy endpoints for a declared service, or nil for
// an unknown or endpoint-less service.
func (t *Topology) Endpoints(service string) []string {
	svc, ok := t.services[service]
	if !ok {
		return nil
	}
	return append([]string(nil), svc.ProxyEndpoints...)
}
