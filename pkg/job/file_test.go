package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-sim/meridian/pkg/failure"
)

func TestSanitizePath(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"root", "/", "/", false},
		{"simple", "/data", "/data/", false},
		{"already terminated", "/data/", "/data/", false},
		{"empty segments collapsed", "/data//sub///x", "/data/sub/x/", false},
		{"dot segments dropped", "/data/./sub/.", "/data/sub/", false},
		{"dotdot pops", "/data/sub/../other", "/data/other/", false},
		{"dotdot to root", "/data/..", "/", false},
		{"empty path", "", "", true},
		{"relative path", "data/sub", "", true},
		{"dotdot underflow", "/../x", "", true},
		{"space", "/da ta", "", true},
		{"backslash", "/da\\ta", "", true},
		{"tilde", "/~data", "", true},
		{"backtick", "/da`ta", "", true},
		{"quote", "/da\"ta", "", true},
		{"ampersand", "/da&ta", "", true},
		{"star", "/da*ta", "", true},
		{"question mark", "/da?ta", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizePath(tt.in)
			if tt.wantErr {
				var ia *failure.InvalidArgument
				assert.ErrorAs(t, err, &ia)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDataFile(t *testing.T) {
	f, err := NewDataFile("input.dat", 1e9)
	require.NoError(t, err)
	assert.Equal(t, "input.dat", f.ID())
	assert.Equal(t, 1e9, f.Size())

	_, err = NewDataFile("", 10)
	var ia *failure.InvalidArgument
	assert.ErrorAs(t, err, &ia)

	_, err = NewDataFile("x", -1)
	assert.ErrorAs(t, err, &ia)
}

type fakeProvider struct{ name string }

func (p *fakeProvider) Name() string            { return p.name }
func (p *fakeProvider) RequestPortName() string { return p.name }

func TestFileLocation(t *testing.T) {
	ss := &fakeProvider{name: "ss1"}
	proxy := &fakeProvider{name: "proxy1"}

	loc, err := Location(ss, "/data/sub/../x")
	require.NoError(t, err)
	assert.Equal(t, "/data/x/", loc.Path)
	assert.Equal(t, "ss1:/data/x/", loc.String())

	ploc, err := ProxiedLocation(proxy, ss, "/data")
	require.NoError(t, err)
	assert.Equal(t, "proxy1->ss1:/data/", ploc.String())

	_, err = Location(nil, "/data")
	var ia *failure.InvalidArgument
	assert.ErrorAs(t, err, &ia)

	_, err = Location(ss, "relative")
	assert.ErrorAs(t, err, &ia)
}
