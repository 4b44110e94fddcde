// Package route loads a per-node contact plan: the local node/service
// number and, per neighbor, the default bundle attributes used to seed an
// outbound primary block.
package route

import "fmt"

// Endpoint is a compressed ipn-scheme EID: node.service.
type Endpoint struct {
	Node    uint64
	Service uint64
}

func (e Endpoint) String() string {
	return fmt.Sprintf("ipn:%d.%d", e.Node, e.Service)
}

// Attributes carries the per-route defaults a bundle is seeded from, spec.md
// §3's "Bundle-in-flight record" attributes.
type Attributes struct {
	Lifetime           uint64
	ClassOfService      uint8
	IntegrityCheck      bool
	CipherSuite         uint64
	MaxBundleLength     int
	AllowFragmentation  bool
	RequestCustody      bool
	IgnoreExpiration    bool
	AdminRecord         bool
}

// Route is one contact-plan entry: the endpoints a bundle addressed to Name
// should carry, and the attribute defaults to seed it with.
type Route struct {
	Name       string
	Local      Endpoint
	Remote     Endpoint
	Attributes Attributes
}

// ContactPlan is the local node's identity plus its known routes.
type ContactPlan struct {
	Local Endpoint
	Routes map[string]Route
}

// Find looks up a route by name.
func (p *ContactPlan) Find(name string) (Route, bool) {
	r, ok := p.Routes[name]
	return r, ok
}
