package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-sim/meridian/pkg/failure"
)

func TestParseUnits(t *testing.T) {
	tests := []struct {
		name    string
		parse   func(string) (float64, error)
		in      string
		want    float64
		wantErr bool
	}{
		{"flops giga", ParseFlopRate, "1Gf", 1e9, false},
		{"flops bare", ParseFlopRate, "250", 250, false},
		{"flops with space", ParseFlopRate, " 2.5Mf ", 2.5e6, false},
		{"flops malformed", ParseFlopRate, "fast", 0, true},
		{"bytes gb", ParseBytes, "16GB", 16e9, false},
		{"bytes plain", ParseBytes, "1024", 1024, false},
		{"bytes negative", ParseBytes, "-1GB", 0, true},
		{"bandwidth mbps", ParseBandwidth, "125MBps", 125e6, false},
		{"latency us", ParseLatency, "100us", 100e-6, false},
		{"latency ms", ParseLatency, "5ms", 5e-3, false},
		{"latency seconds", ParseLatency, "2s", 2, false},
		{"empty", ParseBytes, "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.parse(tt.in)
			if tt.wantErr {
				var ia *failure.InvalidArgument
				assert.ErrorAs(t, err, &ia)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, tt.want*1e-12)
		})
	}
}

const samplePlatform = `
hosts:
  - name: HostA
    speed: 1Gf
    cores: 4
    ram: 16GB
    disks:
      - mount: /data
        capacity: 100GB
        read_bw: 100MBps
        write_bw: 80MBps
  - name: HostB
    speed: 2Gf
    cores: 8
    ram: 32GB
links:
  - name: backbone
    bandwidth: 125MBps
    latency: 100us
routes:
  - src: HostA
    dst: HostB
    links: [backbone]
`

func TestParsePlatform(t *testing.T) {
	p, err := Parse([]byte(samplePlatform))
	require.NoError(t, err)

	hosts := p.Hosts()
	require.Len(t, hosts, 2)
	assert.Equal(t, "HostA", hosts[0].Name)
	assert.Equal(t, 1e9, hosts[0].Speed)
	assert.Equal(t, 4, hosts[0].Cores)
	assert.Equal(t, 16e9, hosts[0].RAM)
	require.Len(t, hosts[0].Disks, 1)
	assert.Equal(t, 100e9, hosts[0].Disks[0].Capacity)

	t.Run("route is symmetric with bottleneck bandwidth", func(t *testing.T) {
		bw, lat, ok := p.RouteBetween("HostA", "HostB")
		require.True(t, ok)
		assert.Equal(t, 125e6, bw)
		assert.Equal(t, 100e-6, lat)

		bw, lat, ok = p.RouteBetween("HostB", "HostA")
		require.True(t, ok)
		assert.Equal(t, 125e6, bw)
		assert.Equal(t, 100e-6, lat)
	})

	t.Run("loopback is free", func(t *testing.T) {
		bw, lat, ok := p.RouteBetween("HostA", "HostA")
		require.True(t, ok)
		assert.Zero(t, bw)
		assert.Zero(t, lat)
	})

	t.Run("unrouted pair", func(t *testing.T) {
		p2, err := Parse([]byte("hosts:\n  - {name: X, speed: 1Gf, cores: 1}\n  - {name: Y, speed: 1Gf, cores: 1}\n"))
		require.NoError(t, err)
		_, _, ok := p2.RouteBetween("X", "Y")
		assert.False(t, ok)
	})
}

func TestParsePlatformErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"duplicate host", "hosts:\n  - {name: A, speed: 1Gf, cores: 1}\n  - {name: A, speed: 1Gf, cores: 1}\n"},
		{"zero cores", "hosts:\n  - {name: A, speed: 1Gf, cores: 0}\n"},
		{"empty host name", "hosts:\n  - {name: \"\", speed: 1Gf, cores: 1}\n"},
		{"bad speed", "hosts:\n  - {name: A, speed: warp9, cores: 1}\n"},
		{"route to unknown host", "hosts:\n  - {name: A, speed: 1Gf, cores: 1}\nroutes:\n  - {src: A, dst: Z, links: []}\n"},
		{"route over unknown link", "hosts:\n  - {name: A, speed: 1Gf, cores: 1}\n  - {name: B, speed: 1Gf, cores: 1}\nroutes:\n  - {src: A, dst: B, links: [nope]}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestProgrammaticPlatform(t *testing.T) {
	p, err := New([]*Host{
		{Name: "H1", Speed: 1e9, Cores: 2, RAM: 8e9},
		{Name: "H2", Speed: 1e9, Cores: 2, RAM: 8e9},
	})
	require.NoError(t, err)
	require.NoError(t, p.AddRoute("H1", "H2", &Link{Name: "l", Bandwidth: 1e9, Latency: 1e-3}))

	bw, lat, ok := p.RouteBetween("H2", "H1")
	require.True(t, ok)
	assert.Equal(t, 1e9, bw)
	assert.Equal(t, 1e-3, lat)

	_, err = New([]*Host{{Name: "H", Speed: 1, Cores: 1}, {Name: "H", Speed: 1, Cores: 1}})
	var ia *failure.InvalidArgument
	assert.ErrorAs(t, err, &ia)
}
