package postgresadapter

import (
	"context"

	"commitreveal/contexts/governance/commit-reveal-voting/ports"

	"github.com/google/uuid"
)

// UUIDGenerator mints session handles and event ids as random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

var _ ports.IDGenerator = UUIDGenerator{}
