package e2e

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/glizzus/soundcodec/internal/datalayer"
	"github.com/glizzus/soundcodec/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

var (
	pgOnce            sync.Once
	postgresContainer *postgres.PostgresContainer
	pgConnStr         string
	pgErr             error
	pgUsers           sync.WaitGroup

	redisOnce      sync.Once
	redisContainer *tcredis.RedisContainer
	redisConnStr   string
	redisErr       error
	redisUsers     sync.WaitGroup
)

// UsePostgres signals that the test is using Postgres as its catalog.
// This will either provision or reuse a migrated Postgres container.
// Do not expect a clean state in the database; it is shared across tests
// to simulate real-world usage.
func UsePostgres(t *testing.T) string {
	t.Helper()

	pgOnce.Do(func() {
		ctx := context.Background()
		postgresContainer, pgErr = postgres.Run(
			ctx,
			"postgres",
			postgres.WithDatabase("soundcodec"),
			postgres.WithUsername("user"),
			postgres.WithPassword("password"),
			postgres.BasicWaitStrategies(),
		)
		if pgErr != nil {
			return
		}
		pgConnStr, pgErr = postgresContainer.ConnectionString(ctx)
		if pgErr != nil {
			return
		}

		var pool *pgxpool.Pool
		pool, pgErr = pgxpool.New(ctx, pgConnStr)
		if pgErr != nil {
			return
		}
		defer pool.Close()

		pgErr = datalayer.MigratePostgres(pool)
	})

	if pgErr != nil {
		t.Fatalf("failed to start postgres container: %v", pgErr)
	}
	pgUsers.Add(1)
	t.Cleanup(pgUsers.Done)

	return pgConnStr
}

// GetCatalog creates a PostgresStreamRepository for testing. It performs no
// migrations.
func GetCatalog(t *testing.T, connStr string) *repository.PostgresStreamRepository {
	t.Helper()
	pool, err := pgxpool.New(t.Context(), connStr)
	if err != nil {
		t.Fatalf("failed to create postgres pool: %v", err)
	}

	t.Cleanup(pool.Close)
	return repository.NewPostgresStreamRepository(pool)
}

// UseRedis provisions or reuses a Redis container and returns a client for
// it. Tests sharing the container should use distinct stream names.
func UseRedis(t *testing.T) *redis.Client {
	t.Helper()

	redisOnce.Do(func() {
		ctx := context.Background()
		redisContainer, redisErr = tcredis.Run(ctx, "redis:7")
		if redisErr != nil {
			return
		}
		redisConnStr, redisErr = redisContainer.ConnectionString(ctx)
	})

	if redisErr != nil {
		t.Fatalf("failed to start redis container: %v", redisErr)
	}
	opts, err := redis.ParseURL(redisConnStr)
	if err != nil {
		t.Fatalf("failed to parse redis connection string: %v", err)
	}
	client := redis.NewClient(opts)

	redisUsers.Add(1)
	t.Cleanup(func() {
		client.Close()
		redisUsers.Done()
	})
	return client
}

func TerminatePostgresForE2E() {
	pgUsers.Wait()
	if postgresContainer != nil {
		if err := postgresContainer.Terminate(context.Background()); err != nil {
			fmt.Printf("failed to terminate postgres container: %v", err)
		}
	}
}

func TerminateRedisForE2E() {
	redisUsers.Wait()
	if redisContainer != nil {
		if err := redisContainer.Terminate(context.Background()); err != nil {
			fmt.Printf("failed to terminate redis container: %v", err)
		}
	}
}
