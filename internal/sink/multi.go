package sink

import (
	"context"
	"errors"
	"fmt"
)

// Multi fans one batch out to several sinks in order. The first failure
// stops the fan-out; because every adapter is idempotent per source id,
// re-delivering the batch after a partial write is safe.
type Multi struct {
	sinks []Sink
}

func NewMulti(sinks ...Sink) (*Multi, error) {
	if len(sinks) == 0 {
		return nil, errors.New("at least one sink is required")
	}
	for i, s := range sinks {
		if s == nil {
			return nil, fmt.Errorf("sink %d is nil", i)
		}
	}
	return &Multi{sinks: sinks}, nil
}

func (m *Multi) Write(ctx context.Context, batch []OutputRecord) error {
	for _, s := range m.sinks {
		if err := s.Write(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}
