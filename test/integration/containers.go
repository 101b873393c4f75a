package integration

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/dmehra2102/order-invoicing/pkg/pgstore"
)

//go:embed schema.sql
var schema string

type Env struct {
	PG        *postgres.PostgresContainer
	Kafka     *kafka.KafkaContainer
	Redis     testcontainers.Container
	Pool      *pgxpool.Pool
	PGURL     string
	KAddr     []string
	RedisAddr string
}

// Setup starts Postgres, Kafka and Redis and applies the schema.
func Setup(ctx context.Context) (*Env, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	env := &Env{}
	fail := func(err error) (*Env, error) {
		env.Teardown(context.Background())
		return nil, err
	}

	pgC, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("orders"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute)),
	)
	if err != nil {
		return fail(fmt.Errorf("start postgres: %w", err))
	}
	env.PG = pgC

	if env.PGURL, err = pgC.ConnectionString(ctx, "sslmode=disable"); err != nil {
		return fail(err)
	}
	if env.Pool, err = pgstore.Connect(ctx, env.PGURL, 5); err != nil {
		return fail(err)
	}
	if _, err := env.Pool.Exec(ctx, schema); err != nil {
		return fail(fmt.Errorf("apply schema: %w", err))
	}

	kafkaC, err := kafka.Run(ctx,
		"confluentinc/confluent-local:7.5.0",
		kafka.WithClusterID("order-invoicing-test"),
	)
	if err != nil {
		return fail(fmt.Errorf("start kafka: %w", err))
	}
	env.Kafka = kafkaC
	if env.KAddr, err = kafkaC.Brokers(ctx); err != nil {
		return fail(err)
	}

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		return fail(fmt.Errorf("start redis: %w", err))
	}
	env.Redis = redisC
	if env.RedisAddr, err = redisC.Endpoint(ctx, ""); err != nil {
		return fail(err)
	}
	return env, nil
}

func (e *Env) Teardown(ctx context.Context) {
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.Redis != nil {
		_ = e.Redis.Terminate(ctx)
	}
	if e.Kafka != nil {
		_ = e.Kafka.Terminate(ctx)
	}
	if e.PG != nil {
		_ = e.PG.Terminate(ctx)
	}
}
