//go:build integration

package testutil

import (
	"context"
	"testing"
	"time"

	"folio/internal/config"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const postgresImage = "postgres:16-alpine"

// PostgresConfig starts a throwaway PostgreSQL container and returns a config
// pointing at it. The container is terminated when the test ends.
func PostgresConfig(t testing.TB) *config.Config {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        postgresImage,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "folio",
				"POSTGRES_PASSWORD": "folio",
				"POSTGRES_DB":       "folio_test",
			},
			// The server restarts once after initdb; the second line is the real one.
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	return &config.Config{
		Env:          "test",
		DBHost:       host,
		DBPort:       port.Port(),
		DBUser:       "folio",
		DBPassword:   "folio",
		DBName:       "folio_test",
		DBSSLMode:    "disable",
		DBSchemaMode: "sql",
	}
}
