package storage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-sim/meridian/pkg/failure"
	"github.com/meridian-sim/meridian/pkg/job"
	"github.com/meridian-sim/meridian/pkg/kernel"
	"github.com/meridian-sim/meridian/pkg/platform"
	"github.com/meridian-sim/meridian/pkg/service/storage"
)

type fixture struct {
	k   *kernel.Kernel
	ss  *storage.Service
	ss2 *storage.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	p, err := platform.New([]*platform.Host{
		{Name: "S1", Speed: 1e9, Cores: 2, RAM: 8e9, Disks: []*platform.Disk{
			{Mount: "/data", Capacity: 10000, ReadBW: 1000, WriteBW: 1000},
		}},
		{Name: "S2", Speed: 1e9, Cores: 2, RAM: 8e9},
	})
	require.NoError(t, err)
	require.NoError(t, p.AddRoute("S1", "S2", &platform.Link{Name: "l", Bandwidth: 1000, Latency: 0}))
	k := kernel.New(p, 0)
	f := &fixture{k: k}
	f.ss = storage.New("ss1", k.Hosts()[0])
	f.ss2 = storage.New("ss2", k.Hosts()[1])
	require.NoError(t, f.ss.Run(k))
	require.NoError(t, f.ss2.Run(k))
	return f
}

// client runs fn in an actor on S1 with a reply port.
func (f *fixture) client(t *testing.T, fn func(a *kernel.Actor, reply *kernel.Commport) error) {
	t.Helper()
	actor, err := f.k.CreateActor(f.k.Hosts()[0], "client", func(a *kernel.Actor) error {
		reply, _ := f.k.PortByName("client-reply")
		return fn(a, reply)
	})
	require.NoError(t, err)
	_, err = f.k.NewCommport(actor, "client-reply")
	require.NoError(t, err)
	f.k.Run()
}

func TestMountPoints(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, []string{"/data/"}, f.ss.MountPoints())
	assert.False(t, f.ss.HasMultipleMountPoints())
	assert.Equal(t, []string{"/"}, f.ss2.MountPoints())
}

func TestReadWriteDelete(t *testing.T) {
	f := newFixture(t)
	file, err := job.NewDataFile("f1", 2000)
	require.NoError(t, err)
	loc, err := job.Location(f.ss, "/data/x")
	require.NoError(t, err)

	f.client(t, func(a *kernel.Actor, reply *kernel.Commport) error {
		// Read before write: FileNotFound.
		require.NoError(t, a.Put(f.ss.Port(), &storage.FileReadRequest{ReplyPort: reply, File: file, Location: loc}))
		msg, err := reply.Get(-1)
		require.NoError(t, err)
		readAns := msg.(*storage.FileReadAnswer)
		assert.False(t, readAns.Success)
		var fnf *failure.FileNotFound
		assert.ErrorAs(t, readAns.Cause, &fnf)

		// Write.
		require.NoError(t, a.Put(f.ss.Port(), &storage.FileWriteRequest{ReplyPort: reply, File: file, Location: loc}))
		msg, err = reply.Get(-1)
		require.NoError(t, err)
		assert.True(t, msg.(*storage.FileWriteAnswer).Success)
		assert.True(t, f.ss.LookupFile(file, loc))

		// Read succeeds and takes disk time: 2000 bytes at 1000 B/s.
		before := a.Now()
		require.NoError(t, a.Put(f.ss.Port(), &storage.FileReadRequest{ReplyPort: reply, File: file, Location: loc}))
		msg, err = reply.Get(-1)
		require.NoError(t, err)
		assert.True(t, msg.(*storage.FileReadAnswer).Success)
		assert.InDelta(t, 2.0, a.Now()-before, 1e-9)

		// Delete, then the file is gone.
		require.NoError(t, a.Put(f.ss.Port(), &storage.FileDeleteRequest{ReplyPort: reply, File: file, Location: loc}))
		msg, err = reply.Get(-1)
		require.NoError(t, err)
		assert.True(t, msg.(*storage.FileDeleteAnswer).Success)
		assert.False(t, f.ss.LookupFile(file, loc))
		return nil
	})
}

func TestStorageFull(t *testing.T) {
	f := newFixture(t)
	big, _ := job.NewDataFile("big", 9000)
	more, _ := job.NewDataFile("more", 2000)
	loc, _ := job.Location(f.ss, "/data/x")
	require.NoError(t, f.ss.StageFile(big, loc))

	f.client(t, func(a *kernel.Actor, reply *kernel.Commport) error {
		require.NoError(t, a.Put(f.ss.Port(), &storage.FileWriteRequest{ReplyPort: reply, File: more, Location: loc}))
		msg, err := reply.Get(-1)
		require.NoError(t, err)
		ans := msg.(*storage.FileWriteAnswer)
		assert.False(t, ans.Success)
		var sf *failure.StorageFull
		assert.ErrorAs(t, ans.Cause, &sf)
		return nil
	})
}

func TestCopyBetweenServices(t *testing.T) {
	f := newFixture(t)
	file, _ := job.NewDataFile("payload", 5000)
	src, _ := job.Location(f.ss, "/data/in")
	dst, _ := job.Location(f.ss2, "/out")
	require.NoError(t, f.ss.StageFile(file, src))

	f.client(t, func(a *kernel.Actor, reply *kernel.Commport) error {
		before := a.Now()
		require.NoError(t, a.Put(f.ss2.Port(), &storage.FileCopyRequest{ReplyPort: reply, File: file, Source: src, Destination: dst}))
		msg, err := reply.Get(-1)
		require.NoError(t, err)
		assert.True(t, msg.(*storage.FileCopyAnswer).Success)
		// 5000 bytes over the 1000 B/s route.
		assert.GreaterOrEqual(t, a.Now()-before, 5.0)
		assert.True(t, f.ss2.LookupFile(file, dst))
		return nil
	})
}

func TestCopyMissingSource(t *testing.T) {
	f := newFixture(t)
	file, _ := job.NewDataFile("ghost", 100)
	src, _ := job.Location(f.ss, "/data/in")
	dst, _ := job.Location(f.ss2, "/out")

	f.client(t, func(a *kernel.Actor, reply *kernel.Commport) error {
		require.NoError(t, a.Put(f.ss2.Port(), &storage.FileCopyRequest{ReplyPort: reply, File: file, Source: src, Destination: dst}))
		msg, err := reply.Get(-1)
		require.NoError(t, err)
		ans := msg.(*storage.FileCopyAnswer)
		assert.False(t, ans.Success)
		var fnf *failure.FileNotFound
		assert.ErrorAs(t, ans.Cause, &fnf)
		return nil
	})
}

func TestStageFileRespectsCapacity(t *testing.T) {
	f := newFixture(t)
	big, _ := job.NewDataFile("too-big", 20000)
	loc, _ := job.Location(f.ss, "/data/x")
	err := f.ss.StageFile(big, loc)
	var sf *failure.StorageFull
	assert.ErrorAs(t, err, &sf)
	f.k.Run()
}
