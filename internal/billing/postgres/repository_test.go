//go:build integration

package postgres

import (
	"context"
	"log"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bissquit/sendly/internal/billing"
	"github.com/bissquit/sendly/internal/domain"
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

type billingRow struct {
	plan           string
	status         *string
	customerID     *string
	subscriptionID *string
	categories     []string
	active         bool
}

func loadRow(t *testing.T, userID string) billingRow {
	t.Helper()
	var row billingRow
	err := testDB.QueryRow(context.Background(), `
		SELECT subscription_plan, subscription_status, stripe_customer_id, subscription_id, categories, is_active
		FROM newsletter_preferences WHERE user_id = $1
	`, userID).Scan(&row.plan, &row.status, &row.customerID, &row.subscriptionID, &row.categories, &row.active)
	require.NoError(t, err)
	return row
}

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	_, err := testDB.Exec(context.Background(), `TRUNCATE newsletter_preferences, billing_webhook_events`)
	require.NoError(t, err)
	return NewRepository(testDB)
}

func TestRepository_Events(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	seen, err := repo.EventSeen(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, repo.RecordEvent(ctx, "evt_1", billing.EventCheckoutCompleted))
	require.NoError(t, repo.RecordEvent(ctx, "evt_1", billing.EventCheckoutCompleted))

	seen, err = repo.EventSeen(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestRepository_ApplyCheckout_ExistingSubscriber(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	_, err := testDB.Exec(ctx, `
		INSERT INTO newsletter_preferences (user_id, categories, frequency, email)
		VALUES ('user-1', '{ai}', 'weekly', 'x@example.com')
	`)
	require.NoError(t, err)

	pro := domain.PlanPro
	require.NoError(t, repo.ApplyCheckout(ctx, billing.CheckoutUpdate{
		UserID: "user-1", Email: "billing@example.com", Plan: &pro, Status: "active",
		CustomerID: "cus_1", SubscriptionID: "sub_1",
	}))

	row := loadRow(t, "user-1")
	assert.Equal(t, "pro", row.plan)
	assert.Equal(t, "active", *row.status)
	assert.Equal(t, "cus_1", *row.customerID)
	assert.Equal(t, "sub_1", *row.subscriptionID)
	assert.Equal(t, []string{"ai"}, row.categories)
	assert.True(t, row.active)

	var email string
	require.NoError(t, testDB.QueryRow(ctx, `SELECT email FROM newsletter_preferences WHERE user_id = 'user-1'`).Scan(&email))
	assert.Equal(t, "x@example.com", email)
}

func TestRepository_ApplyCheckout_NewSubscriberWithoutPlan(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.ApplyCheckout(ctx, billing.CheckoutUpdate{UserID: "user-2", Status: "active"}))

	row := loadRow(t, "user-2")
	assert.Equal(t, "free", row.plan)
	assert.Equal(t, "active", *row.status)
	assert.Nil(t, row.customerID)
	assert.Empty(t, row.categories)
	assert.False(t, row.active)
}

func TestRepository_UpdateSubscription(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	premium := domain.PlanPremium
	require.NoError(t, repo.ApplyCheckout(ctx, billing.CheckoutUpdate{
		UserID: "user-1", Plan: &premium, Status: "active", SubscriptionID: "sub_1",
	}))

	status := "past_due"
	updated, err := repo.UpdateSubscription(ctx, "sub_1", billing.SubscriptionUpdate{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)
	row := loadRow(t, "user-1")
	assert.Equal(t, "premium", row.plan)
	assert.Equal(t, "past_due", *row.status)

	free := domain.PlanFree
	canceled := "canceled"
	updated, err = repo.UpdateSubscription(ctx, "sub_1", billing.SubscriptionUpdate{
		Plan: &free, Status: &canceled, ClearSubscription: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated)

	row = loadRow(t, "user-1")
	assert.Equal(t, "free", row.plan)
	assert.Equal(t, "canceled", *row.status)
	assert.Nil(t, row.subscriptionID)

	updated, err = repo.UpdateSubscription(ctx, "sub_unknown", billing.SubscriptionUpdate{Status: &status})
	require.NoError(t, err)
	assert.Zero(t, updated)
}
