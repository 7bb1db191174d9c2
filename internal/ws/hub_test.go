package ws

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"peerchat/internal/conversation"
	"peerchat/internal/db"
	"peerchat/internal/message"
	"peerchat/internal/profile"
	"peerchat/internal/typing"
)

func TestMain(m *testing.M) {
	_ = godotenv.Load("../../.env")
	os.Exit(m.Run())
}

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

// testHub builds a hub over the real store with change notifications off.
func testHub(conn *sql.DB) *Hub {
	profileRepo := profile.NewRepository(conn)
	return NewHub(nil,
		conversation.NewRepository(conn, nil),
		message.NewRepository(conn, nil),
		typing.NewCoordinator(conn, nil),
		profile.NewPresence(profileRepo, nil),
	)
}

// testSession is a hub client with no socket behind it; frames land in the
// send buffer.
func testSession(hub *Hub, userID string) *Client {
	return &Client{
		ID:         uuid.NewString(),
		UserID:     userID,
		hub:        hub,
		send:       make(chan []byte, 16),
		debouncers: make(map[string]*typing.Debouncer),
	}
}

func readFrame(t *testing.T, c *Client) frame {
	t.Helper()
	select {
	case payload := <-c.send:
		var f frame
		if err := json.Unmarshal(payload, &f); err != nil {
			t.Fatalf("bad frame %s: %v", payload, err)
		}
		return f
	case <-time.After(time.Second):
		t.Fatal("no frame arrived")
	}
	return frame{}
}

func TestJoinRoom_FirstJoinerGetsTypingSnapshot(t *testing.T) {
	conn := setupTestDB(t)
	hub := testHub(conn)

	alice := createTestUser(t, conn)
	bob := createTestUser(t, conn)
	convID, err := conversation.NewRepository(conn, nil).Resolve(context.Background(), alice, bob)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	c := testSession(hub, alice)
	hub.clients[c] = true
	hub.joinRoom(c, convID)

	f := readFrame(t, c)
	if f.Type != "typing" || f.ConversationID != convID {
		t.Fatalf("first joiner's frame = %+v, want an initial typing snapshot", f)
	}
	if len(f.UserIDs) != 0 {
		t.Fatalf("fresh room reports typists: %v", f.UserIDs)
	}
}

func TestJoinRoom_LaterJoinerGetsBothSnapshots(t *testing.T) {
	conn := setupTestDB(t)
	hub := testHub(conn)

	alice := createTestUser(t, conn)
	bob := createTestUser(t, conn)
	convID, err := conversation.NewRepository(conn, nil).Resolve(context.Background(), alice, bob)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	first := testSession(hub, alice)
	hub.clients[first] = true
	hub.joinRoom(first, convID)

	second := testSession(hub, bob)
	hub.clients[second] = true
	hub.joinRoom(second, convID)

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		f := readFrame(t, second)
		if f.ConversationID != convID {
			t.Fatalf("frame for wrong conversation: %+v", f)
		}
		got[f.Type] = true
	}
	if !got["messages"] || !got["typing"] {
		t.Fatalf("later joiner's snapshots = %v, want messages and typing", got)
	}
}
