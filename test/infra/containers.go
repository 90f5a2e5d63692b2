package infra

import (
	"context"

	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

type PGContainer struct {
	C *postgres.PostgresContainer
}

// StartPostgres boots a disposable Postgres container for the given image and
// returns its DSN.
func StartPostgres(ctx context.Context, image string) (*PGContainer, string, error) {
	if image == "" {
		image = "postgres:16-alpine"
	}
	pgC, err := postgres.Run(ctx, image,
		postgres.WithDatabase("mudah_titip"),
		postgres.WithUsername("mudah"),
		postgres.WithPassword("mudah"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, "", err
	}

	dsn, err := pgC.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = pgC.Terminate(ctx)
		return nil, "", err
	}
	return &PGContainer{C: pgC}, dsn, nil
}

func (p *PGContainer) Terminate(ctx context.Context) error {
	if p == nil || p.C == nil {
		return nil
	}
	return p.C.Terminate(ctx)
}
