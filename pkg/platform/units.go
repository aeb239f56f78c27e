package platform

import (
	"strconv"
	"strings"

	"github.com/meridian-sim/meridian/pkg/failure"
)

// Unit suffix tables. Sizes and bandwidths use powers of 1000, matching how
// platform vendors advertise capacity.
var (
	flopSuffixes = []suffix{
		{"Tf", 1e12}, {"Gf", 1e9}, {"Mf", 1e6}, {"Kf", 1e3}, {"f", 1},
	}
	byteSuffixes = []suffix{
		{"TB", 1e12}, {"GB", 1e9}, {"MB", 1e6}, {"KB", 1e3}, {"B", 1},
	}
	bandwidthSuffixes = []suffix{
		{"TBps", 1e12}, {"GBps", 1e9}, {"MBps", 1e6}, {"KBps", 1e3}, {"Bps", 1},
	}
	durationSuffixes = []suffix{
		{"us", 1e-6}, {"ms", 1e-3}, {"ns", 1e-9}, {"s", 1},
	}
)

type suffix struct {
	unit  string
	scale float64
}

func parseWithSuffixes(value string, table []suffix, what string) (float64, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return 0, failure.NewInvalidArgument("empty %s value", what)
	}
	for _, sf := range table {
		if strings.HasSuffix(s, sf.unit) {
			num := strings.TrimSpace(strings.TrimSuffix(s, sf.unit))
			v, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return 0, failure.NewInvalidArgument("malformed %s value %q", what, value)
			}
			if v < 0 {
				return 0, failure.NewInvalidArgument("negative %s value %q", what, value)
			}
			return v * sf.scale, nil
		}
	}
	// Bare numbers are accepted in base units.
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, failure.NewInvalidArgument("malformed %s value %q", what, value)
	}
	return v, nil
}

// ParseFlopRate parses a compute speed such as "1Gf" into flops per second.
func ParseFlopRate(value string) (float64, error) {
	return parseWithSuffixes(value, flopSuffixes, "speed")
}

// ParseBytes parses a size such as "16GB" into bytes.
func ParseBytes(value string) (float64, error) {
	return parseWithSuffixes(value, byteSuffixes, "size")
}

// ParseBandwidth parses a bandwidth such as "125MBps" into bytes per second.
func ParseBandwidth(value string) (float64, error) {
	return parseWithSuffixes(value, bandwidthSuffixes, "bandwidth")
}

// ParseLatency parses a latency such as "100us" into seconds.
func ParseLatency(value string) (float64, error) {
	return parseWithSuffixes(value, durationSuffixes, "latency")
}
