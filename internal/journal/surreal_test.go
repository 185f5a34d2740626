//go:build integration

package journal_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/raphaelgruber/cutout/internal/jobs"
	"github.com/raphaelgruber/cutout/internal/journal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var surrealURL string

// TestMain starts one SurrealDB container for the integration tests.
func TestMain(m *testing.M) {
	// Disable ryuk (cleanup container) as it can cause issues in some environments
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start SurrealDB container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// Workaround: testcontainers may return "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	port, err := container.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}
	surrealURL = fmt.Sprintf("ws://%s:%s/rpc", host, port.Port())

	code := m.Run()

	_ = container.Terminate(ctx)
	os.Exit(code)
}

func openSurreal(t *testing.T) journal.Journal {
	t.Helper()
	ctx := context.Background()
	j, err := journal.Open(ctx, journal.Config{
		Target:    surrealURL,
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
	})
	require.NoError(t, err)
	require.IsType(t, &journal.Surreal{}, j)
	require.NoError(t, j.(*journal.Surreal).Wipe(ctx))
	t.Cleanup(func() { _ = j.Close(ctx) })
	return j
}

func TestSurrealRecordAndLoad(t *testing.T) {
	ctx := context.Background()
	j := openSurreal(t)

	first := sampleJob("aaaa1111", 0)
	second := sampleJob("bbbb2222", time.Minute)
	require.NoError(t, j.Record(ctx, second))
	require.NoError(t, j.Record(ctx, first))

	first.Phase = jobs.PhaseSucceeded
	first.Progress = 100
	first.ResultURL = "http://svc/result/aaaa1111_out.svg"
	require.NoError(t, j.Record(ctx, first))

	loaded, err := j.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, first.ID, loaded[0].ID)
	assert.Equal(t, jobs.PhaseSucceeded, loaded[0].Phase)
	assert.Equal(t, first.ResultURL, loaded[0].ResultURL)
	assert.True(t, first.CreatedAt.Equal(loaded[0].CreatedAt))
	assert.Equal(t, second.Options, loaded[1].Options)
}

func TestSurrealForget(t *testing.T) {
	ctx := context.Background()
	j := openSurreal(t)

	require.NoError(t, j.Record(ctx, sampleJob("a", 0)))
	require.NoError(t, j.Record(ctx, sampleJob("b", time.Second)))
	require.NoError(t, j.Forget(ctx, "a"))

	loaded, err := j.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "b", loaded[0].ID)
}
