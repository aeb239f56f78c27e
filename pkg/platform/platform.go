package platform

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/meridian-sim/meridian/pkg/failure"
)

// Host describes one simulated host: a flop rate per core, a core count, a
// RAM capacity and optional disks.
type Host struct {
	Name     string
	Speed    float64 // flops per second per core
	Cores    int
	RAM      float64 // bytes
	Disks    []*Disk
	Labels   map[string]string
}

// Disk describes a mounted disk on a host.
type Disk struct {
	Mount    string
	Capacity float64 // bytes
	ReadBW   float64 // bytes per second
	WriteBW  float64 // bytes per second
}

// Link describes a network link.
type Link struct {
	Name      string
	Bandwidth float64 // bytes per second
	Latency   float64 // seconds
}

// Route is a path of links between two hosts. Routes are symmetric.
type Route struct {
	Src   string
	Dst   string
	Links []*Link
}

// Platform is the parsed, validated platform description. Hosts keep their
// declaration order; all iteration in the simulator relies on it.
type Platform struct {
	hosts      []*Host
	hostByName map[string]*Host
	links      []*Link
	linkByName map[string]*Link
	routes     map[routeKey]*Route
}

type routeKey struct{ src, dst string }

// yamlPlatform mirrors the on-disk document.
type yamlPlatform struct {
	Hosts []struct {
		Name   string            `yaml:"name"`
		Speed  string            `yaml:"speed"`
		Cores  int               `yaml:"cores"`
		RAM    string            `yaml:"ram"`
		Labels map[string]string `yaml:"labels"`
		Disks  []struct {
			Mount    string `yaml:"mount"`
			Capacity string `yaml:"capacity"`
			ReadBW   string `yaml:"read_bw"`
			WriteBW  string `yaml:"write_bw"`
		} `yaml:"disks"`
	} `yaml:"hosts"`
	Links []struct {
		Name      string `yaml:"name"`
		Bandwidth string `yaml:"bandwidth"`
		Latency   string `yaml:"latency"`
	} `yaml:"links"`
	Routes []struct {
		Src   string   `yaml:"src"`
		Dst   string   `yaml:"dst"`
		Links []string `yaml:"links"`
	} `yaml:"routes"`
}

// Load reads and parses a platform description file.
func Load(path string) (*Platform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read platform file: %w", err)
	}
	return Parse(data)
}

// Parse parses a YAML platform description.
func Parse(data []byte) (*Platform, error) {
	var doc yamlPlatform
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse platform document: %w", err)
	}

	p := &Platform{
		hostByName: make(map[string]*Host),
		linkByName: make(map[string]*Link),
		routes:     make(map[routeKey]*Route),
	}

	for _, h := range doc.Hosts {
		if h.Name == "" {
			return nil, failure.NewInvalidArgument("host with empty name")
		}
		if _, dup := p.hostByName[h.Name]; dup {
			return nil, failure.NewInvalidArgument("duplicate host name %q", h.Name)
		}
		if h.Cores < 1 {
			return nil, failure.NewInvalidArgument("host %q must have at least one core", h.Name)
		}
		speed, err := ParseFlopRate(h.Speed)
		if err != nil {
			return nil, fmt.Errorf("host %q: %w", h.Name, err)
		}
		ram := 0.0
		if h.RAM != "" {
			if ram, err = ParseBytes(h.RAM); err != nil {
				return nil, fmt.Errorf("host %q: %w", h.Name, err)
			}
		}
		host := &Host{Name: h.Name, Speed: speed, Cores: h.Cores, RAM: ram, Labels: h.Labels}
		for _, d := range h.Disks {
			disk := &Disk{Mount: d.Mount}
			if disk.Capacity, err = ParseBytes(d.Capacity); err != nil {
				return nil, fmt.Errorf("host %q disk %q: %w", h.Name, d.Mount, err)
			}
			if disk.ReadBW, err = ParseBandwidth(d.ReadBW); err != nil {
				return nil, fmt.Errorf("host %q disk %q: %w", h.Name, d.Mount, err)
			}
			if disk.WriteBW, err = ParseBandwidth(d.WriteBW); err != nil {
				return nil, fmt.Errorf("host %q disk %q: %w", h.Name, d.Mount, err)
			}
			host.Disks = append(host.Disks, disk)
		}
		p.hosts = append(p.hosts, host)
		p.hostByName[h.Name] = host
	}

	for _, l := range doc.Links {
		if l.Name == "" {
			return nil, failure.NewInvalidArgument("link with empty name")
		}
		if _, dup := p.linkByName[l.Name]; dup {
			return nil, failure.NewInvalidArgument("duplicate link name %q", l.Name)
		}
		bw, err := ParseBandwidth(l.Bandwidth)
		if err != nil {
			return nil, fmt.Errorf("link %q: %w", l.Name, err)
		}
		lat, err := ParseLatency(l.Latency)
		if err != nil {
			return nil, fmt.Errorf("link %q: %w", l.Name, err)
		}
		link := &Link{Name: l.Name, Bandwidth: bw, Latency: lat}
		p.links = append(p.links, link)
		p.linkByName[l.Name] = link
	}

	for _, r := range doc.Routes {
		if _, ok := p.hostByName[r.Src]; !ok {
			return nil, failure.NewInvalidArgument("route references unknown host %q", r.Src)
		}
		if _, ok := p.hostByName[r.Dst]; !ok {
			return nil, failure.NewInvalidArgument("route references unknown host %q", r.Dst)
		}
		route := &Route{Src: r.Src, Dst: r.Dst}
		for _, name := range r.Links {
			link, ok := p.linkByName[name]
			if !ok {
				return nil, failure.NewInvalidArgument("route %s->%s references unknown link %q", r.Src, r.Dst, name)
			}
			route.Links = append(route.Links, link)
		}
		p.routes[routeKey{r.Src, r.Dst}] = route
		p.routes[routeKey{r.Dst, r.Src}] = route
	}

	return p, nil
}

// New builds a platform programmatically, in declaration order.
func New(hosts []*Host) (*Platform, error) {
	p := &Platform{
		hostByName: make(map[string]*Host),
		linkByName: make(map[string]*Link),
		routes:     make(map[routeKey]*Route),
	}
	for _, h := range hosts {
		if h.Name == "" {
			return nil, failure.NewInvalidArgument("host with empty name")
		}
		if _, dup := p.hostByName[h.Name]; dup {
			return nil, failure.NewInvalidArgument("duplicate host name %q", h.Name)
		}
		if h.Cores < 1 {
			return nil, failure.NewInvalidArgument("host %q must have at least one core", h.Name)
		}
		p.hosts = append(p.hosts, h)
		p.hostByName[h.Name] = h
	}
	return p, nil
}

// AddRoute declares a symmetric route between two hosts.
func (p *Platform) AddRoute(src, dst string, links ...*Link) error {
	if _, ok := p.hostByName[src]; !ok {
		return failure.NewInvalidArgument("unknown host %q", src)
	}
	if _, ok := p.hostByName[dst]; !ok {
		return failure.NewInvalidArgument("unknown host %q", dst)
	}
	r := &Route{Src: src, Dst: dst, Links: links}
	p.routes[routeKey{src, dst}] = r
	p.routes[routeKey{dst, src}] = r
	return nil
}

// Hosts returns the hosts in declaration order.
func (p *Platform) Hosts() []*Host {
	return p.hosts
}

// HostByName looks up a host.
func (p *Platform) HostByName(name string) (*Host, bool) {
	h, ok := p.hostByName[name]
	return h, ok
}

// RouteBetween returns the effective (bandwidth, latency) between two hosts.
// The bandwidth is the bottleneck link's; the latency is the sum. ok is
// false when the hosts are distinct and no route is declared.
func (p *Platform) RouteBetween(src, dst string) (bandwidth, latency float64, ok bool) {
	if src == dst {
		return 0, 0, true // loopback: no cost
	}
	r, found := p.routes[routeKey{src, dst}]
	if !found || len(r.Links) == 0 {
		return 0, 0, false
	}
	bandwidth = r.Links[0].Bandwidth
	for _, l := range r.Links {
		if l.Bandwidth < bandwidth {
			bandwidth = l.Bandwidth
		}
		latency += l.Latency
	}
	return bandwidth, latency, true
}
