package execution

import (
	"context"
	"fmt"
	"math/big"

	clierr "github.com/ggonzalez94/defi-adapters/internal/errors"
)

type ReadFunc func(ctx context.Context) (*big.Int, error)

// Snapshot holds one named value read before submission so it can be diffed against a
// read taken afterwards.
type Snapshot struct {
	Name   string
	read   ReadFunc
	before *big.Int
}

func TakeSnapshot(ctx context.Context, name string, read ReadFunc) (*Snapshot, error) {
	before, err := read(ctx)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("failed to fetch %s", name), err)
	}
	return &Snapshot{Name: name, read: read, before: new(big.Int).Set(before)}, nil
}

func (s *Snapshot) Before() *big.Int { return new(big.Int).Set(s.before) }

// Delta re-reads the value and returns after minus before.
func (s *Snapshot) Delta(ctx context.Context) (*big.Int, error) {
	after, err := s.read(ctx)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("failed to fetch %s after submission", s.Name), err)
	}
	return new(big.Int).Sub(after, s.before), nil
}
