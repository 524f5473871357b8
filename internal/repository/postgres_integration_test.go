package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/smartpest-api/internal/database"
	"github.com/smartpest-api/internal/models"
	"github.com/smartpest-api/internal/repository"
)

// migrationsPath returns the absolute path of the repo's migrations directory
func migrationsPath(t testing.TB) string {
	t.Helper()
	_, currentFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("cannot determine test file path")
	}
	return filepath.Join(filepath.Dir(filepath.Dir(filepath.Dir(currentFile))), "migrations")
}

// startPostgres runs a disposable PostgreSQL container with the schema applied
func startPostgres(t *testing.T) *database.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping PostgreSQL integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "smartpest",
				"POSTGRES_PASSWORD": "smartpest",
				"POSTGRES_DB":       "smartpest",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := fmt.Sprintf("host=%s port=%s user=smartpest password=smartpest dbname=smartpest sslmode=disable",
		host, port.Port())
	sqlDB, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db := database.Wrap(sqlDB, zerolog.Nop())
	require.NoError(t, db.RunMigrations(migrationsPath(t)))
	return db
}

func TestPostgres_Repositories(t *testing.T) {
	db := startPostgres(t)
	repos := repository.New(db)
	ctx := context.Background()

	t.Run("users", func(t *testing.T) {
		user := &models.User{
			ID: uuid.NewString(), Email: "Grower@Farm.io", PasswordHash: "hash",
			FirstName: "Ada", Role: models.RoleUser, Active: true,
		}
		require.NoError(t, repos.User.Create(ctx, user))

		found, err := repos.User.GetByEmail(ctx, "GROWER@farm.io")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, "grower@farm.io", found.Email)

		dup := &models.User{ID: uuid.NewString(), Email: "grower@FARM.io", PasswordHash: "x", Role: models.RoleUser}
		assert.ErrorIs(t, repos.User.Create(ctx, dup), repository.ErrDuplicate)

		found.Role = models.RoleAdmin
		found.PasswordHash = "rotated-hash"
		require.NoError(t, repos.User.Update(ctx, found))
		reloaded, err := repos.User.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RoleAdmin, reloaded.Role)
		assert.Equal(t, "rotated-hash", reloaded.PasswordHash)

		missing, err := repos.User.GetByID(ctx, uuid.NewString())
		assert.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("reports", func(t *testing.T) {
		base := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)
		for i := 0; i < 3; i++ {
			require.NoError(t, repos.Report.Create(ctx, &models.Report{
				ID:         uuid.NewString(),
				PestName:   fmt.Sprintf("pest-%d", i),
				Confidence: 0.5,
				UserID:     models.AnonymousUserID,
				CreatedAt:  base.Add(time.Duration(i) * time.Minute),
			}))
		}

		reports, err := repos.Report.List(ctx, 10, 0)
		require.NoError(t, err)
		require.Len(t, reports, 3)
		assert.Equal(t, "pest-2", reports[0].PestName)
		assert.Equal(t, "pest-0", reports[2].PestName)

		bad := &models.Report{ID: uuid.NewString(), PestName: "x", Confidence: 1.5, UserID: "anonymous"}
		assert.Error(t, repos.Report.Create(ctx, bad), "CHECK constraint should reject confidence > 1")

		keyed := &models.Report{ID: uuid.NewString(), PestName: "beetle", Confidence: 0.9,
			UserID: "anonymous", IdempotencyKey: "k-1"}
		require.NoError(t, repos.Report.Create(ctx, keyed))
		again := *keyed
		again.ID = uuid.NewString()
		assert.ErrorIs(t, repos.Report.Create(ctx, &again), repository.ErrDuplicate)

		streamed := 0
		require.NoError(t, repos.Report.StreamAll(ctx, func(*models.Report) error {
			streamed++
			return nil
		}))
		assert.Equal(t, 4, streamed)
	})

	t.Run("catalog", func(t *testing.T) {
		inserted, err := repos.Pest.BatchInsert(ctx, []*models.Pest{
			{ID: uuid.NewString(), Name: "Aphids", Description: "Sap-sucking insects"},
			{ID: uuid.NewString(), Name: "Thrips"},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, inserted)

		exists, err := repos.Pest.NameExists(ctx, "aphids")
		require.NoError(t, err)
		assert.True(t, exists)

		pesticide := &models.Pesticide{ID: uuid.NewString(), Name: "Neem Oil", ToxicityLevel: "low"}
		require.NoError(t, repos.Pesticide.Create(ctx, pesticide))
		assert.ErrorIs(t, repos.Pesticide.Create(ctx,
			&models.Pesticide{ID: uuid.NewString(), Name: "Neem Oil"}), repository.ErrDuplicate)
		assert.ErrorIs(t, repos.Pesticide.Create(ctx,
			&models.Pesticide{ID: uuid.NewString(), Name: "neem oil"}), repository.ErrDuplicate)
		assert.ErrorIs(t, repos.Pest.Create(ctx,
			&models.Pest{ID: uuid.NewString(), Name: "APHIDS"}), repository.ErrDuplicate)

		_, err = repos.Pest.BatchInsert(ctx, []*models.Pest{{ID: uuid.NewString(), Name: "thrips"}})
		assert.ErrorIs(t, err, repository.ErrDuplicate)

		require.NoError(t, repos.Pesticide.Delete(ctx, pesticide.ID))
		assert.True(t, errors.Is(repos.Pesticide.Delete(ctx, pesticide.ID), repository.ErrNotFound))
	})

	t.Run("feedback survives user deletion", func(t *testing.T) {
		owner := &models.User{ID: uuid.NewString(), Email: "owner@farm.io", PasswordHash: "h", Role: models.RoleUser}
		require.NoError(t, repos.User.Create(ctx, owner))

		fb := &models.Feedback{ID: uuid.NewString(), UserID: &owner.ID, Subject: "Great", Message: "Works"}
		require.NoError(t, repos.Feedback.Create(ctx, fb))
		require.NoError(t, repos.User.Delete(ctx, owner.ID))

		kept, err := repos.Feedback.GetByID(ctx, fb.ID)
		require.NoError(t, err)
		require.NotNil(t, kept)
		assert.Nil(t, kept.UserID)
	})
}
