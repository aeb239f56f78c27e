package failure

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCauseTypes(t *testing.T) {
	tests := []struct {
		cause Cause
		want  string
	}{
		{&InvalidArgument{Reason: "x"}, "InvalidArgument"},
		{&NotEnoughResources{Service: "s"}, "NotEnoughResources"},
		{&HostError{Host: "h"}, "HostError"},
		{&NetworkError{Port: "p"}, "NetworkError"},
		{&ServiceDown{Service: "s"}, "ServiceDown"},
		{&FileNotFound{File: "f"}, "FileNotFound"},
		{&StorageFull{Service: "s", File: "f"}, "StorageFull"},
		{&JobTypeNotSupported{Service: "s"}, "JobTypeNotSupported"},
		{&FatalFailure{}, "FatalFailure"},
		{&OperationTimeout{Operation: "op", Timeout: 3}, "OperationTimeout"},
		{&ComputeThreadDied{}, "ComputeThreadDied"},
		{&JobKilled{Job: "j"}, "JobKilled"},
		{&ParentFailed{Parent: "a"}, "ParentFailed"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cause.CauseType())
			assert.NotEmpty(t, tt.cause.Error())
		})
	}
}

func TestCausesSurviveWrapping(t *testing.T) {
	root := &HostError{Host: "H1"}
	wrapped := fmt.Errorf("action failed: %w", root)
	var he *HostError
	assert.True(t, errors.As(wrapped, &he))
	assert.Equal(t, "H1", he.Host)
}

func TestIsCascade(t *testing.T) {
	root := &HostError{Host: "H"}
	cascade := &ParentFailed{Parent: "a", Cause: root}
	assert.True(t, IsCascade(cascade))
	assert.False(t, IsCascade(root))

	// Unwrapping a cascade reaches the root cause.
	var he *HostError
	assert.True(t, errors.As(cascade, &he))
}

func TestAggregateOf(t *testing.T) {
	root := &OperationTimeout{Operation: "op", Timeout: 1}
	cascade := &ParentFailed{Parent: "a", Cause: root}

	t.Run("first non-cascade wins", func(t *testing.T) {
		got := AggregateOf([]error{cascade, root, &HostError{Host: "H"}})
		assert.Equal(t, error(root), got)
	})

	t.Run("all cascades fall back to first", func(t *testing.T) {
		got := AggregateOf([]error{cascade})
		assert.Equal(t, error(cascade), got)
	})

	t.Run("empty and nil entries", func(t *testing.T) {
		assert.Nil(t, AggregateOf(nil))
		assert.Nil(t, AggregateOf([]error{nil, nil}))
	})
}
