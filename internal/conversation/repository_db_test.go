package conversation

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"peerchat/internal/db"
)

func TestMain(m *testing.M) {
	_ = godotenv.Load("../../.env")
	os.Exit(m.Run())
}

// setupTestDB connects to the database named by DB_DSN and runs the
// migrations. Tests that need it are skipped when DB_DSN is unset.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		t.Skip("Skipping: DB_DSN not set")
	}

	database, err := db.NewDatabase(dsn)
	if err != nil {
		t.Skipf("Skipping: could not connect to test database: %v", err)
		return nil
	}
	if err := database.AutoMigrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { database.Conn.Close() })
	return database.Conn
}

// createTestUser inserts a throwaway profile and returns its id. Deleting
// the profile on cleanup cascades to its conversations and messages.
func createTestUser(t *testing.T, conn *sql.DB) string {
	t.Helper()

	username := "test_" + uuid.NewString()[:8]
	var id string
	err := conn.QueryRow(
		`INSERT INTO profiles (username, password_hash) VALUES ($1, 'x') RETURNING id::text`,
		username).Scan(&id)
	if err != nil {
		t.Fatalf("create test user: %v", err)
	}
	t.Cleanup(func() {
		conn.Exec(`DELETE FROM profiles WHERE id = $1::uuid`, id)
	})
	return id
}

func TestResolve_OrderIndependentAndIdempotent(t *testing.T) {
	conn := setupTestDB(t)
	repo := NewRepository(conn, nil)
	ctx := context.Background()

	alice := createTestUser(t, conn)
	bob := createTestUser(t, conn)

	id1, err := repo.Resolve(ctx, alice, bob)
	if err != nil {
		t.Fatalf("resolve(alice, bob): %v", err)
	}
	id2, err := repo.Resolve(ctx, bob, alice)
	if err != nil {
		t.Fatalf("resolve(bob, alice): %v", err)
	}
	if id1 != id2 {
		t.Fatalf("resolve is order-dependent: %s vs %s", id1, id2)
	}

	id3, err := repo.Resolve(ctx, alice, bob)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if id3 != id1 {
		t.Fatalf("resolve not idempotent: %s vs %s", id3, id1)
	}

	var count int
	err = conn.QueryRow(`SELECT count(*) FROM conversations
		WHERE user1_id = least($1::uuid, $2::uuid) AND user2_id = greatest($1::uuid, $2::uuid)`,
		alice, bob).Scan(&count)
	if err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one conversation row, found %d", count)
	}
}

func TestResolve_CaseVariantSpelling(t *testing.T) {
	conn := setupTestDB(t)
	repo := NewRepository(conn, nil)
	ctx := context.Background()

	alice := createTestUser(t, conn)
	bob := createTestUser(t, conn)

	// First contact arrives with an uppercase-spelled id; the insert must
	// still store the pair in canonical order.
	id1, err := repo.Resolve(ctx, strings.ToUpper(alice), bob)
	if err != nil {
		t.Fatalf("resolve(UPPER alice, bob): %v", err)
	}

	id2, err := repo.Resolve(ctx, alice, strings.ToUpper(bob))
	if err != nil {
		t.Fatalf("resolve(alice, UPPER bob): %v", err)
	}
	if id1 != id2 {
		t.Fatalf("case-variant spellings resolved to different rows: %s vs %s", id1, id2)
	}
}

func TestResolve_ConcurrentResolversConvergeOnOneRow(t *testing.T) {
	conn := setupTestDB(t)
	repo := NewRepository(conn, nil)
	ctx := context.Background()

	alice := createTestUser(t, conn)
	bob := createTestUser(t, conn)

	const resolvers = 8
	ids := make([]string, resolvers)
	errs := make([]error, resolvers)

	var wg sync.WaitGroup
	for i := 0; i < resolvers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Alternate the argument order across goroutines.
			if i%2 == 0 {
				ids[i], errs[i] = repo.Resolve(ctx, alice, bob)
			} else {
				ids[i], errs[i] = repo.Resolve(ctx, bob, alice)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < resolvers; i++ {
		if errs[i] != nil {
			t.Fatalf("resolver %d: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("resolver %d got %s, resolver 0 got %s", i, ids[i], ids[0])
		}
	}
}

func TestIsParticipant(t *testing.T) {
	conn := setupTestDB(t)
	repo := NewRepository(conn, nil)
	ctx := context.Background()

	alice := createTestUser(t, conn)
	bob := createTestUser(t, conn)
	eve := createTestUser(t, conn)

	convID, err := repo.Resolve(ctx, alice, bob)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	for _, userID := range []string{alice, bob} {
		ok, err := repo.IsParticipant(ctx, convID, userID)
		if err != nil {
			t.Fatalf("membership: %v", err)
		}
		if !ok {
			t.Fatalf("participant %s reported as outsider", userID)
		}
	}

	ok, err := repo.IsParticipant(ctx, convID, eve)
	if err != nil {
		t.Fatalf("membership: %v", err)
	}
	if ok {
		t.Fatal("outsider reported as participant")
	}
}

func TestListForUser_Ordering(t *testing.T) {
	conn := setupTestDB(t)
	repo := NewRepository(conn, nil)
	ctx := context.Background()

	me := createTestUser(t, conn)
	quiet := createTestUser(t, conn)
	older := createTestUser(t, conn)
	newer := createTestUser(t, conn)

	quietConv, err := repo.Resolve(ctx, me, quiet)
	if err != nil {
		t.Fatalf("resolve quiet: %v", err)
	}
	olderConv, err := repo.Resolve(ctx, me, older)
	if err != nil {
		t.Fatalf("resolve older: %v", err)
	}
	newerConv, err := repo.Resolve(ctx, me, newer)
	if err != nil {
		t.Fatalf("resolve newer: %v", err)
	}

	base := time.Now().Add(-time.Hour)
	setPreview := func(convID, content string, at time.Time) {
		_, err := conn.Exec(
			`UPDATE conversations SET last_message_content = $2, last_message_time = $3 WHERE id = $1::uuid`,
			convID, content, at)
		if err != nil {
			t.Fatalf("set preview: %v", err)
		}
	}
	setPreview(olderConv, "older", base)
	setPreview(newerConv, "newer", base.Add(time.Minute))

	list, err := repo.ListForUser(ctx, me)
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	// Other tests may leave rows for other users; filter to ours.
	var got []string
	for _, e := range list {
		switch e.ID {
		case quietConv, olderConv, newerConv:
			got = append(got, e.ID)
		}
	}
	want := []string{newerConv, olderConv, quietConv}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("directory order = %v, want %v", got, want)
	}

	for _, e := range list {
		if e.ID == newerConv {
			if e.Counterpart.ID != newer {
				t.Fatalf("counterpart = %s, want %s", e.Counterpart.ID, newer)
			}
			if e.LastMessageContent == nil || *e.LastMessageContent != "newer" {
				t.Fatalf("preview = %v", e.LastMessageContent)
			}
		}
	}
}
