package job

import (
	"github.com/meridian-sim/meridian/pkg/failure"
)

// ParallelModel maps an amount of work and a thread count to the
// decomposition actually executed: a sequential share replicated on every
// thread plus a per-thread parallel share.
type ParallelModel interface {
	// Decompose returns (sequentialWork, perThreadParallelWork) for
	// running totalWork flops over numThreads threads.
	Decompose(totalWork float64, numThreads int) (seq float64, perThread float64)
}

// WorkPerThread expands a model into the per-thread work vector: every
// thread performs the sequential share plus its parallel share.
func WorkPerThread(m ParallelModel, totalWork float64, numThreads int) []float64 {
	seq, per := m.Decompose(totalWork, numThreads)
	work := make([]float64, numThreads)
	for i := range work {
		work[i] = seq + per
	}
	return work
}

type amdahlModel struct {
	alpha float64
}

// AmdahlModel builds an Amdahl's-law speedup model: alpha is the fraction
// of the work that parallelizes perfectly, the rest stays sequential.
func AmdahlModel(alpha float64) (ParallelModel, error) {
	if alpha < 0 || alpha > 1 {
		return nil, failure.NewInvalidArgument("Amdahl alpha %g outside [0,1]", alpha)
	}
	return &amdahlModel{alpha: alpha}, nil
}

func (m *amdahlModel) Decompose(totalWork float64, numThreads int) (float64, float64) {
	if numThreads < 1 {
		numThreads = 1
	}
	return (1 - m.alpha) * totalWork, m.alpha * totalWork / float64(numThreads)
}

type constantEfficiencyModel struct {
	efficiency float64
}

// ConstantEfficiencyModel builds a model with a fixed parallel efficiency:
// n threads at efficiency e yield a speedup of n*e.
func ConstantEfficiencyModel(efficiency float64) (ParallelModel, error) {
	if efficiency <= 0 || efficiency > 1 {
		return nil, failure.NewInvalidArgument("efficiency %g outside (0,1]", efficiency)
	}
	return &constantEfficiencyModel{efficiency: efficiency}, nil
}

func (m *constantEfficiencyModel) Decompose(totalWork float64, numThreads int) (float64, float64) {
	if numThreads < 1 {
		numThreads = 1
	}
	return 0, totalWork / (float64(numThreads) * m.efficiency)
}

type customModel struct {
	seq func(totalWork float64, numThreads int) float64
	per func(totalWork float64, numThreads int) float64
}

// CustomModel builds a model from user-supplied sequential and per-thread
// work functions.
func CustomModel(seq, per func(totalWork float64, numThreads int) float64) (ParallelModel, error) {
	if seq == nil || per == nil {
		return nil, failure.NewInvalidArgument("custom parallel model requires both functions")
	}
	return &customModel{seq: seq, per: per}, nil
}

func (m *customModel) Decompose(totalWork float64, numThreads int) (float64, float64) {
	return m.seq(totalWork, numThreads), m.per(totalWork, numThreads)
}
