package registry

import (
	"sort"

	"github.com/meridian-sim/meridian/pkg/failure"
	"github.com/meridian-sim/meridian/pkg/job"
	"github.com/meridian-sim/meridian/pkg/kernel"
	"github.com/meridian-sim/meridian/pkg/service"
)

// AddEntryRequest registers a file location.
type AddEntryRequest struct {
	kernel.Payload
	ReplyPort *kernel.Commport
	File      *job.DataFile
	Location  *job.FileLocation
}

// AddEntryAnswer acknowledges an AddEntryRequest.
type AddEntryAnswer struct {
	kernel.Payload
	Success bool
	Cause   error
}

// RemoveEntryRequest removes a file location.
type RemoveEntryRequest struct {
	kernel.Payload
	ReplyPort *kernel.Commport
	File      *job.DataFile
	Location  *job.FileLocation
}

// RemoveEntryAnswer acknowledges a RemoveEntryRequest. Success is false
// with a FileNotFound cause when the entry was absent.
type RemoveEntryAnswer struct {
	kernel.Payload
	Success bool
	Cause   error
}

// LookupRequest asks for all known locations of a file.
type LookupRequest struct {
	kernel.Payload
	ReplyPort *kernel.Commport
	File      *job.DataFile
}

// LookupAnswer returns the locations of a file, sorted by string form.
type LookupAnswer struct {
	kernel.Payload
	Locations []*job.FileLocation
}

// Service is a file registry: a mapping from file id to the set of
// locations known to hold the file.
type Service struct {
	*service.Base
	entries map[string]map[string]*job.FileLocation // file id -> location string -> location
}

// New builds a file registry service on a host.
func New(name string, host *kernel.Host) *Service {
	return &Service{
		Base:    service.NewBase(name, host),
		entries: make(map[string]map[string]*job.FileLocation),
	}
}

// Run starts the service daemon.
func (s *Service) Run(k *kernel.Kernel) error {
	return s.Start(k, s.main)
}

func control() kernel.Payload {
	return kernel.Payload{Bytes: service.DefaultControlMessageSize}
}

func (s *Service) main() error {
	logger := s.Logger()
	logger.Info().Str("host", s.Host().Name()).Msg("File registry started")
	for {
		msg, err := s.Port().Get(-1)
		if err != nil {
			return nil
		}
		switch m := msg.(type) {
		case *service.StopRequest:
			s.SetUp(false)
			s.Actor().DPut(m.ReplyPort, &service.DaemonStopped{Payload: control(), Service: s.Name()})
			logger.Info().Msg("File registry stopped")
			return nil
		case *AddEntryRequest:
			s.add(m.File, m.Location)
			s.Actor().DPut(m.ReplyPort, &AddEntryAnswer{Payload: control(), Success: true})
		case *RemoveEntryRequest:
			removed := s.remove(m.File, m.Location)
			ans := &RemoveEntryAnswer{Payload: control(), Success: removed}
			if !removed {
				ans.Cause = &failure.FileNotFound{File: m.File.ID(), Location: m.Location.String()}
			}
			s.Actor().DPut(m.ReplyPort, ans)
		case *LookupRequest:
			s.Actor().DPut(m.ReplyPort, &LookupAnswer{Payload: control(), Locations: s.lookup(m.File)})
		default:
			logger.Warn().Msgf("File registry dropping unexpected message %T", msg)
		}
	}
}

func (s *Service) add(f *job.DataFile, loc *job.FileLocation) {
	set, ok := s.entries[f.ID()]
	if !ok {
		set = make(map[string]*job.FileLocation)
		s.entries[f.ID()] = set
	}
	set[loc.String()] = loc
}

func (s *Service) remove(f *job.DataFile, loc *job.FileLocation) bool {
	set, ok := s.entries[f.ID()]
	if !ok {
		return false
	}
	key := loc.String()
	if _, present := set[key]; !present {
		return false
	}
	delete(set, key)
	return true
}

func (s *Service) lookup(f *job.DataFile) []*job.FileLocation {
	set := s.entries[f.ID()]
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*job.FileLocation, len(keys))
	for i, k := range keys {
		out[i] = set[k]
	}
	return out
}
