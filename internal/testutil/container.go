package testutil

import (
	"context"
	"fmt"
	"sync"

	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

const postgresImage = "postgres:16-alpine"

var (
	containerOnce sync.Once
	containerDSN  string
	containerErr  error
)

// containerURL starts one Postgres container per test binary and returns
// its DSN. The testcontainers reaper removes it when the binary exits.
func containerURL(ctx context.Context) (string, error) {
	containerOnce.Do(func() {
		ctr, err := tcpostgres.Run(ctx, postgresImage,
			tcpostgres.WithDatabase("escrowpi"),
			tcpostgres.WithUsername("escrowpi"),
			tcpostgres.WithPassword("escrowpi"),
			tcpostgres.BasicWaitStrategies(),
		)
		if err != nil {
			containerErr = fmt.Errorf("start postgres container: %w", err)
			return
		}
		containerDSN, containerErr = ctr.ConnectionString(ctx, "sslmode=disable")
	})
	return containerDSN, containerErr
}
