package storage

import (
	"sort"

	"github.com/meridian-sim/meridian/pkg/failure"
	"github.com/meridian-sim/meridian/pkg/job"
	"github.com/meridian-sim/meridian/pkg/kernel"
	"github.com/meridian-sim/meridian/pkg/service"
)

// defaultDiskBandwidth is used for mount points declared without disks.
const defaultDiskBandwidth = 100e6 // bytes per second

// Service is a simple simulated storage service: one or more mount points
// with byte capacities, serving the file read/write/copy/delete protocol in
// arrival order.
type Service struct {
	*service.Base
	mounts []*mount
}

type mount struct {
	path     string
	capacity float64
	used     float64
	readBW   float64
	writeBW  float64
	files    map[string]float64 // sanitized path + file id -> size
}

// New builds a storage service on a host. Mount points come from the
// host's platform disks; a host without disks gets a single "/" mount of
// unbounded capacity.
func New(name string, host *kernel.Host) *Service {
	s := &Service{Base: service.NewBase(name, host)}
	for _, d := range host.Description().Disks {
		clean, err := job.SanitizePath(d.Mount)
		if err != nil {
			continue
		}
		s.mounts = append(s.mounts, &mount{
			path:     clean,
			capacity: d.Capacity,
			readBW:   d.ReadBW,
			writeBW:  d.WriteBW,
			files:    make(map[string]float64),
		})
	}
	if len(s.mounts) == 0 {
		s.mounts = append(s.mounts, &mount{
			path:     "/",
			capacity: -1, // unbounded
			readBW:   defaultDiskBandwidth,
			writeBW:  defaultDiskBandwidth,
			files:    make(map[string]float64),
		})
	}
	return s
}

// HasMultipleMountPoints reports whether the service has more than one
// mount point.
func (s *Service) HasMultipleMountPoints() bool { return len(s.mounts) > 1 }

// MountPoints returns the mount point paths in declaration order.
func (s *Service) MountPoints() []string {
	out := make([]string, len(s.mounts))
	for i, m := range s.mounts {
		out[i] = m.path
	}
	return out
}

func (s *Service) mountFor(path string) *mount {
	// Mounts cannot be proper prefixes of each other, so first prefix
	// match wins; a "/" mount is the fallback.
	var root *mount
	for _, m := range s.mounts {
		if m.path == "/" {
			root = m
			continue
		}
		if len(path) >= len(m.path) && path[:len(m.path)] == m.path {
			return m
		}
	}
	return root
}

// StageFile places a file on the service before the simulation starts,
// bypassing the protocol. Used to set up initial data.
func (s *Service) StageFile(f *job.DataFile, loc *job.FileLocation) error {
	m := s.mountFor(loc.Path)
	if m == nil {
		return failure.NewInvalidArgument("no mount point for path %q on %s", loc.Path, s.Name())
	}
	if m.capacity >= 0 && m.used+f.Size() > m.capacity {
		return &failure.StorageFull{Service: s.Name(), File: f.ID()}
	}
	m.files[loc.Path+f.ID()] = f.Size()
	m.used += f.Size()
	return nil
}

// LookupFile reports whether the service holds the file at the location.
// This is a read-only snapshot query; mutation happens only through the
// protocol.
func (s *Service) LookupFile(f *job.DataFile, loc *job.FileLocation) bool {
	m := s.mountFor(loc.Path)
	if m == nil {
		return false
	}
	_, ok := m.files[loc.Path+f.ID()]
	return ok
}

// FreeSpace returns the free bytes per mount point, keyed by path; an
// unbounded mount reports -1.
func (s *Service) FreeSpace() map[string]float64 {
	out := make(map[string]float64, len(s.mounts))
	for _, m := range s.mounts {
		if m.capacity < 0 {
			out[m.path] = -1
			continue
		}
		out[m.path] = m.capacity - m.used
	}
	return out
}

// Run starts the service daemon.
func (s *Service) Run(k *kernel.Kernel) error {
	return s.Start(k, s.main)
}

func (s *Service) main() error {
	logger := s.Logger()
	logger.Info().Str("host", s.Host().Name()).Msg("Storage service started")
	for {
		msg, err := s.Port().Get(-1)
		if err != nil {
			logger.Debug().Err(err).Msg("Storage service event loop ending")
			return nil
		}
		switch m := msg.(type) {
		case *service.StopRequest:
			s.SetUp(false)
			s.Actor().DPut(m.ReplyPort, &service.DaemonStopped{Payload: controlPayload(), Service: s.Name()})
			logger.Info().Msg("Storage service stopped")
			return nil
		case *FileReadRequest:
			s.handleRead(m)
		case *FileWriteRequest:
			s.handleWrite(m)
		case *FileCopyRequest:
			s.handleCopy(m)
		case *FileDeleteRequest:
			s.handleDelete(m)
		default:
			logger.Warn().Msgf("Storage service dropping unexpected message %T", msg)
		}
	}
}

func (s *Service) handleRead(m *FileReadRequest) {
	num := m.NumBytes
	if num <= 0 {
		num = m.File.Size()
	}
	mt := s.mountFor(m.Location.Path)
	if mt == nil || !s.LookupFile(m.File, m.Location) {
		s.answerRead(m, 0, &failure.FileNotFound{File: m.File.ID(), Location: m.Location.String()})
		return
	}
	// Disk time, then the data rides the network on the answer payload.
	if mt.readBW > 0 {
		if err := s.Actor().Sleep(num / mt.readBW); err != nil {
			return
		}
	}
	s.answerRead(m, num, nil)
}

func (s *Service) answerRead(m *FileReadRequest, bytes float64, cause error) {
	ans := &FileReadAnswer{Payload: kernel.Payload{Bytes: bytes}, Success: cause == nil, Cause: cause}
	if ans.Bytes < service.DefaultControlMessageSize {
		ans.Bytes = service.DefaultControlMessageSize
	}
	s.Actor().DPut(m.ReplyPort, ans)
}

func (s *Service) handleWrite(m *FileWriteRequest) {
	mt := s.mountFor(m.Location.Path)
	if mt == nil {
		s.Actor().DPut(m.ReplyPort, &FileWriteAnswer{Payload: controlPayload(), Cause: &failure.FileNotFound{File: m.File.ID(), Location: m.Location.String()}})
		return
	}
	key := m.Location.Path + m.File.ID()
	if _, exists := mt.files[key]; !exists {
		if mt.capacity >= 0 && mt.used+m.File.Size() > mt.capacity {
			s.Actor().DPut(m.ReplyPort, &FileWriteAnswer{Payload: controlPayload(), Cause: &failure.StorageFull{Service: s.Name(), File: m.File.ID()}})
			return
		}
		mt.files[key] = m.File.Size()
		mt.used += m.File.Size()
	}
	if mt.writeBW > 0 {
		if err := s.Actor().Sleep(m.File.Size() / mt.writeBW); err != nil {
			return
		}
	}
	s.Actor().DPut(m.ReplyPort, &FileWriteAnswer{Payload: controlPayload(), Success: true})
}

func (s *Service) handleCopy(m *FileCopyRequest) {
	src, ok := m.Source.Service.(*Service)
	if !ok || !src.LookupFile(m.File, m.Source) {
		s.Actor().DPut(m.ReplyPort, &FileCopyAnswer{Payload: controlPayload(), Cause: &failure.FileNotFound{File: m.File.ID(), Location: m.Source.String()}})
		return
	}
	mt := s.mountFor(m.Destination.Path)
	if mt == nil {
		s.Actor().DPut(m.ReplyPort, &FileCopyAnswer{Payload: controlPayload(), Cause: &failure.FileNotFound{File: m.File.ID(), Location: m.Destination.String()}})
		return
	}
	key := m.Destination.Path + m.File.ID()
	if _, exists := mt.files[key]; !exists {
		if mt.capacity >= 0 && mt.used+m.File.Size() > mt.capacity {
			s.Actor().DPut(m.ReplyPort, &FileCopyAnswer{Payload: controlPayload(), Cause: &failure.StorageFull{Service: s.Name(), File: m.File.ID()}})
			return
		}
	}
	// Stream from the source service's host to ours.
	dur := transferDuration(s.Kernel(), src.Host(), s.Host(), m.File.Size())
	if dur > 0 {
		if err := s.Actor().Sleep(dur); err != nil {
			return
		}
	}
	if _, exists := mt.files[key]; !exists {
		mt.files[key] = m.File.Size()
		mt.used += m.File.Size()
	}
	s.Actor().DPut(m.ReplyPort, &FileCopyAnswer{Payload: controlPayload(), Success: true})
}

func (s *Service) handleDelete(m *FileDeleteRequest) {
	mt := s.mountFor(m.Location.Path)
	key := m.Location.Path + m.File.ID()
	if mt == nil {
		s.Actor().DPut(m.ReplyPort, &FileDeleteAnswer{Payload: controlPayload(), Cause: &failure.FileNotFound{File: m.File.ID(), Location: m.Location.String()}})
		return
	}
	size, ok := mt.files[key]
	if !ok {
		s.Actor().DPut(m.ReplyPort, &FileDeleteAnswer{Payload: controlPayload(), Cause: &failure.FileNotFound{File: m.File.ID(), Location: m.Location.String()}})
		return
	}
	delete(mt.files, key)
	mt.used -= size
	s.Actor().DPut(m.ReplyPort, &FileDeleteAnswer{Payload: controlPayload(), Success: true})
}

// transferDuration estimates streaming size bytes between two hosts using
// the platform route; same-host streams, and hosts without a usable
// route, cost nothing.
func transferDuration(k *kernel.Kernel, src, dst *kernel.Host, size float64) float64 {
	if src == dst {
		return 0
	}
	bw, lat, ok := k.Platform().RouteBetween(src.Name(), dst.Name())
	if !ok || bw <= 0 {
		return 0
	}
	return lat + size/bw
}

// FileIDsAt lists file ids stored under a path, sorted, for tests.
func (s *Service) FileIDsAt(path string) []string {
	mt := s.mountFor(path)
	if mt == nil {
		return nil
	}
	var ids []string
	for key := range mt.files {
		if len(key) > len(path) && key[:len(path)] == path {
			ids = append(ids, key[len(path):])
		}
	}
	sort.Strings(ids)
	return ids
}
