package simulation

import (
	"github.com/meridian-sim/meridian/pkg/failure"
	"github.com/meridian-sim/meridian/pkg/job"
)

// The process-wide data file registry. It is created explicitly by New and
// cleared by Terminate; nothing registers at module load time.
var fileRegistry *dataFileRegistry

type dataFileRegistry struct {
	files map[string]*job.DataFile
	order []*job.DataFile
}

func initRegistries() {
	fileRegistry = &dataFileRegistry{files: make(map[string]*job.DataFile)}
}

func clearRegistries() {
	fileRegistry = nil
}

// AddFile creates a data file in the process-wide registry. Duplicate ids
// are an InvalidArgument.
func (s *Simulation) AddFile(id string, size float64) (*job.DataFile, error) {
	if fileRegistry == nil {
		return nil, failure.NewInvalidArgument("simulation has been terminated")
	}
	if _, dup := fileRegistry.files[id]; dup {
		return nil, failure.NewInvalidArgument("duplicate file id %q", id)
	}
	f, err := job.NewDataFile(id, size)
	if err != nil {
		return nil, err
	}
	fileRegistry.files[id] = f
	fileRegistry.order = append(fileRegistry.order, f)
	return f, nil
}

// FileByID looks a file up in the registry.
func (s *Simulation) FileByID(id string) (*job.DataFile, bool) {
	if fileRegistry == nil {
		return nil, false
	}
	f, ok := fileRegistry.files[id]
	return f, ok
}

// Files returns every registered file in creation order.
func (s *Simulation) Files() []*job.DataFile {
	if fileRegistry == nil {
		return nil
	}
	return fileRegistry.order
}
