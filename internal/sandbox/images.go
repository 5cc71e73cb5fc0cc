package sandbox

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Version is a supported .NET SDK version.
type Version string

const (
	V8     Version = "8"
	V9     Version = "9"
	V10RC2 Version = "10-rc2"
)

// Versions lists the supported versions in ascending order.
var Versions = []Version{V8, V9, V10RC2}

// ParseVersion validates s as a supported version. Empty means V8.
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return V8, nil
	}
	for _, v := range Versions {
		if string(v) == s {
			return v, nil
		}
	}
	return "", Invalid("unsupported dotnet_version %q (supported: 8, 9, 10-rc2)", s)
}

// LocalRegistry selects locally built images instead of pulling.
const LocalRegistry = "local"

// DefaultRegistry is the image repository used outside local mode.
const DefaultRegistry = "ghcr.io/domibies/dotbox-mcp/dotnet-sandbox"

// ImageSource resolves sandbox image references.
type ImageSource struct {
	// Registry is either LocalRegistry or a repository prefix.
	Registry string
}

// IsLocal reports whether images must already exist locally.
func (s ImageSource) IsLocal() bool {
	return s.Registry == LocalRegistry
}

// Ref returns the image reference for v.
func (s ImageSource) Ref(v Version) string {
	if s.IsLocal() {
		return fmt.Sprintf("dotnet-sandbox:%s", v)
	}
	registry := s.Registry
	if registry == "" {
		registry = DefaultRegistry
	}
	return fmt.Sprintf("%s:%s", registry, v)
}

// PortMap maps container ports to host ports. Host port 0 lets the
// runtime pick a free port.
type PortMap map[int]int

// ParsePortMap converts tool arguments of the form {"5000": 8080}.
func ParsePortMap(raw map[string]any) (PortMap, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	ports := make(PortMap, len(raw))
	for k, v := range raw {
		cp, err := strconv.Atoi(strings.TrimSuffix(k, "/tcp"))
		if err != nil || cp < 1 || cp > 65535 {
			return nil, Invalid("invalid container port %q", k)
		}
		var hp int
		switch n := v.(type) {
		case float64:
			if n != math.Trunc(n) {
				return nil, Invalid("host port %v for container port %d is not an integer", n, cp)
			}
			hp = int(n)
		case int:
			hp = n
		case string:
			hp, err = strconv.Atoi(n)
			if err != nil {
				return nil, Invalid("invalid host port %q for container port %d", n, cp)
			}
		default:
			return nil, Invalid("invalid host port for container port %d", cp)
		}
		if hp < 0 || hp > 65535 {
			return nil, Invalid("host port %d out of range", hp)
		}
		ports[cp] = hp
	}
	return ports, nil
}

// ContainerPorts returns the mapped container ports in ascending order.
func (p PortMap) ContainerPorts() []int {
	out := make([]int, 0, len(p))
	for cp := range p {
		out = append(out, cp)
	}
	sort.Ints(out)
	return out
}
