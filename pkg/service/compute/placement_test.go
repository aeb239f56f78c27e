package compute

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-sim/meridian/pkg/kernel"
	"github.com/meridian-sim/meridian/pkg/platform"
)

func freeStates(t *testing.T, specs ...[2]int) []*HostFreeState {
	t.Helper()
	hosts := make([]*platform.Host, len(specs))
	for i, s := range specs {
		hosts[i] = &platform.Host{Name: string(rune('A' + i)), Speed: 1e9, Cores: s[0], RAM: 64e9}
	}
	p, err := platform.New(hosts)
	require.NoError(t, err)
	k := kernel.New(p, 0)
	out := make([]*HostFreeState, len(specs))
	for i, h := range k.Hosts() {
		out[i] = &HostFreeState{Host: h, FreeCores: specs[i][1], FreeRAM: h.RAM()}
	}
	return out
}

func TestFirstFit(t *testing.T) {
	tests := []struct {
		name  string
		specs [][2]int // {capacity, free}
		cores int
		want  int
	}{
		{"first host fits", [][2]int{{4, 4}, {4, 4}}, 2, 0},
		{"skips busy host", [][2]int{{4, 1}, {4, 4}}, 2, 1},
		{"nothing fits", [][2]int{{4, 1}, {4, 1}}, 2, -1},
		{"exact fit", [][2]int{{2, 2}}, 2, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FirstFit(freeStates(t, tt.specs...), tt.cores, 0)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBestFit(t *testing.T) {
	tests := []struct {
		name  string
		specs [][2]int
		cores int
		want  int
	}{
		{"prefers least slack", [][2]int{{8, 8}, {4, 3}, {4, 2}}, 2, 2},
		{"tie broken by order", [][2]int{{4, 3}, {4, 3}}, 3, 0},
		{"nothing fits", [][2]int{{2, 1}}, 2, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BestFit(freeStates(t, tt.specs...), tt.cores, 0)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRoundRobin(t *testing.T) {
	rr := RoundRobin()
	states := freeStates(t, [2]int{4, 4}, [2]int{4, 4}, [2]int{4, 4})

	assert.Equal(t, 0, rr(states, 1, 0))
	assert.Equal(t, 1, rr(states, 1, 0))
	assert.Equal(t, 2, rr(states, 1, 0))
	assert.Equal(t, 0, rr(states, 1, 0))

	// A full host is skipped without losing the cursor.
	states[1].FreeCores = 0
	assert.Equal(t, 2, rr(states, 1, 0))
	assert.Equal(t, 0, rr(states, 1, 0))
}

func TestParseCoresArg(t *testing.T) {
	tests := []struct {
		in       string
		wantHost string
		wantN    int
		wantErr  bool
	}{
		{"4", "", 4, false},
		{"HostB:2", "HostB", 2, false},
		{"0", "", 0, true},
		{"-3", "", 0, true},
		{"many", "", 0, true},
		{":2", "", 0, true},
		{"H:", "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			host, n, err := parseCoresArg(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, host)
			assert.Equal(t, tt.wantN, n)
		})
	}
}
