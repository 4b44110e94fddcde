package route

import (
	"fmt"
	"regexp"

	"gopkg.in/ini.v1"
)

var routeSectionName = regexp.MustCompile(`^route "(.+)"$`)

// Load parses a contact-plan INI file: a single [node] section giving the
// local node/service, and zero or more [route "<name>"] sections giving a
// neighbor's endpoint and default attributes.
func Load(file any) (*ContactPlan, error) {
	cfg, err := ini.Load(file)
	if err != nil {
		return nil, fmt.Errorf("route: load contact plan: %w", err)
	}

	plan := &ContactPlan{Routes: make(map[string]Route)}

	node, err := cfg.GetSection("node")
	if err != nil {
		return nil, fmt.Errorf("route: contact plan missing [node] section: %w", err)
	}
	plan.Local = Endpoint{
		Node:    node.Key("Node").MustUint64(0),
		Service: node.Key("Service").MustUint64(0),
	}

	for _, section := range cfg.Sections() {
		m := routeSectionName.FindStringSubmatch(section.Name())
		if m == nil {
			continue
		}
		name := m[1]
		r := Route{
			Name:  name,
			Local: plan.Local,
			Remote: Endpoint{
				Node:    section.Key("RemoteNode").MustUint64(0),
				Service: section.Key("RemoteService").MustUint64(0),
			},
			Attributes: Attributes{
				Lifetime:           section.Key("Lifetime").MustUint64(3600),
				ClassOfService:     uint8(section.Key("ClassOfService").MustUint(0)),
				IntegrityCheck:     section.Key("IntegrityCheck").MustBool(false),
				CipherSuite:        section.Key("CipherSuite").MustUint64(0),
				MaxBundleLength:    section.Key("MaxBundleLength").MustInt(1024),
				AllowFragmentation: section.Key("AllowFragmentation").MustBool(true),
				RequestCustody:     section.Key("RequestCustody").MustBool(false),
				IgnoreExpiration:   section.Key("IgnoreExpiration").MustBool(false),
				AdminRecord:        section.Key("AdminRecord").MustBool(false),
			},
		}
		plan.Routes[name] = r
	}

	return plan, nil
}
