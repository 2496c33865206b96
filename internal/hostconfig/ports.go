package hostconfig

import (
	"hash/fnv"

	"github.com/agentx-labs/mcpx/internal/plan"
)

// RequiredServers must be present in every reconciled config, each with
// the port it is listed with.
var RequiredServers = []struct {
	Name string
	Port int
}{
	{"filesystem", 3010},
	{"memory", 3011},
	{"github", 3012},
	{"redis", 3013},
	{"time", 3014},
	{"brave-search", 3015},
}

// RequiredPort returns the fixed port of a required server.
func RequiredPort(name string) (int, bool) {
	for _, s := range RequiredServers {
		if s.Name == name {
			return s.Port, true
		}
	}
	return 0, false
}

// DefaultPort returns the port for name: the required-server port when
// there is one, otherwise a port derived from an FNV hash of the name and
// probed upwards (wrapping) past ports in used. Ports reserved for required
// servers count as used whether or not those servers are present yet.
func DefaultPort(name string, used map[int]bool) int {
	if p, ok := RequiredPort(name); ok {
		return p
	}
	span := plan.MaxPort - plan.MinPort + 1
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	start := int(h.Sum32() % uint32(span))
	for i := 0; i < span; i++ {
		p := plan.MinPort + (start+i)%span
		if !used[p] && !reservedPort(p) {
			return p
		}
	}
	return plan.MinPort + start
}

func reservedPort(p int) bool {
	for _, s := range RequiredServers {
		if s.Port == p {
			return true
		}
	}
	return false
}
