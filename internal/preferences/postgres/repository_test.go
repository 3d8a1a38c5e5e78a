//go:build integration

package postgres

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bissquit/sendly/internal/domain"
	"github.com/bissquit/sendly/internal/preferences"
	"github.com/bissquit/sendly/internal/testutil"
)

var testDB *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := testutil.NewMigratedPostgresContainer(ctx, "../../../migrations")
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}

	testDB, err = pgxpool.New(ctx, container.ConnectionString)
	if err != nil {
		log.Fatalf("create pool: %v", err)
	}

	code := m.Run()

	testDB.Close()
	if err := container.Terminate(ctx); err != nil {
		log.Printf("terminate postgres: %v", err)
	}
	os.Exit(code)
}

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	_, err := testDB.Exec(context.Background(), `TRUNCATE newsletter_preferences`)
	require.NoError(t, err)
	return NewRepository(testDB)
}

func newPreference(userID string) *domain.Preference {
	return &domain.Preference{
		UserID:     userID,
		Categories: []string{"ai", "blockchain"},
		Frequency:  domain.FrequencyWeekly,
		Email:      "x@example.com",
		IsActive:   true,
	}
}

func TestRepository_Upsert_Idempotent(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	first := newPreference("user-1")
	created, err := repo.Upsert(ctx, first)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, domain.PlanFree, first.SubscriptionPlan)

	time.Sleep(10 * time.Millisecond)

	second := newPreference("user-1")
	created, err = repo.Upsert(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))

	var count int
	require.NoError(t, testDB.QueryRow(ctx, `SELECT COUNT(*) FROM newsletter_preferences WHERE user_id = $1`, "user-1").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestRepository_Upsert_KeepsActiveAndBillingFields(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.Upsert(ctx, newPreference("user-1"))
	require.NoError(t, err)
	_, err = testDB.Exec(ctx, `
		UPDATE newsletter_preferences
		SET is_active = FALSE, subscription_plan = 'pro', subscription_id = 'sub_1'
		WHERE user_id = 'user-1'
	`)
	require.NoError(t, err)

	update := newPreference("user-1")
	update.Categories = []string{"rust"}
	update.Frequency = domain.FrequencyDaily
	_, err = repo.Upsert(ctx, update)
	require.NoError(t, err)

	assert.False(t, update.IsActive)
	assert.Equal(t, domain.PlanPro, update.SubscriptionPlan)
	assert.Equal(t, "sub_1", update.SubscriptionID)
	assert.Equal(t, []string{"rust"}, update.Categories)
	assert.Equal(t, domain.FrequencyDaily, update.Frequency)
}

func TestRepository_Upsert_ActivatesRecordCreatedByBilling(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_, err := testDB.Exec(ctx, `
		INSERT INTO newsletter_preferences (user_id, email, is_active, subscription_plan, subscription_status)
		VALUES ('user-1', 'billing@example.com', FALSE, 'pro', 'active')
	`)
	require.NoError(t, err)

	pref := newPreference("user-1")
	created, err := repo.Upsert(ctx, pref)
	require.NoError(t, err)

	assert.True(t, created)
	assert.True(t, pref.IsActive)
	assert.Equal(t, domain.PlanPro, pref.SubscriptionPlan)
	assert.Equal(t, []string{"ai", "blockchain"}, pref.Categories)

	created, err = repo.Upsert(ctx, newPreference("user-1"))
	require.NoError(t, err)
	assert.False(t, created)
}

func TestRepository_GetByUserID(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_, err := repo.GetByUserID(ctx, "missing")
	assert.ErrorIs(t, err, preferences.ErrPreferencesNotFound)

	_, err = repo.Upsert(ctx, newPreference("user-1"))
	require.NoError(t, err)

	pref, err := repo.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"ai", "blockchain"}, pref.Categories)
	assert.Equal(t, "x@example.com", pref.Email)
	assert.True(t, pref.IsActive)
	assert.Empty(t, pref.SubscriptionStatus)
}

func TestRepository_SetActive(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_, _, err := repo.SetActive(ctx, "missing", true)
	assert.ErrorIs(t, err, preferences.ErrPreferencesNotFound)

	_, err = repo.Upsert(ctx, newPreference("user-1"))
	require.NoError(t, err)

	pref, wasActive, err := repo.SetActive(ctx, "user-1", false)
	require.NoError(t, err)
	assert.True(t, wasActive)
	assert.False(t, pref.IsActive)

	pref, wasActive, err = repo.SetActive(ctx, "user-1", true)
	require.NoError(t, err)
	assert.False(t, wasActive)
	assert.True(t, pref.IsActive)
}
