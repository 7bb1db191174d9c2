package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	BaseURL   = "http://localhost:8080"
	WSURL     = "ws://localhost:8080/ws"
	PairCount = 50 // Pairs of users chatting with each other.
	MsgCount  = 20 // Messages per user.
)

type AuthResponse struct {
	Token    string `json:"access_token"`
	ID       string `json:"id"`
	Username string `json:"username"`
}

type ConversationResponse struct {
	ID string `json:"conversation_id"`
}

func main() {
	log.Printf("starting load test: %d users, %d messages each", PairCount*2, MsgCount)
	var wg sync.WaitGroup

	// User 0a talks to user 0b, 1a to 1b, and so on.
	for i := 0; i < PairCount; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}

	wg.Wait()
	log.Println("load test complete")
}

func runPair(pairID int) {
	userA := fmt.Sprintf("u_%d_a", pairID)
	userB := fmt.Sprintf("u_%d_b", pairID)
	pass := "password123"

	tokenA, _ := authenticate(userA, pass)
	tokenB, idB := authenticate(userB, pass)
	if tokenA == "" || tokenB == "" {
		return
	}

	convID := createConversation(tokenA, idB)
	if convID == "" {
		return
	}

	var wsWg sync.WaitGroup
	wsWg.Add(2)
	go chatSession(&wsWg, tokenA, convID, userA)
	go chatSession(&wsWg, tokenB, convID, userB)
	wsWg.Wait()
}

// authenticate registers (ignoring "already exists") and logs in.
func authenticate(username, password string) (string, string) {
	postJSON("/register", map[string]string{"username": username, "password": password})

	resp, err := postJSON("/login", map[string]string{"username": username, "password": password})
	if err != nil {
		log.Printf("login failed [%s]: %v", username, err)
		return "", ""
	}
	defer resp.Body.Close()

	var data AuthResponse
	json.NewDecoder(resp.Body).Decode(&data)
	return data.Token, data.ID
}

func createConversation(token, otherID string) string {
	jsonBody, _ := json.Marshal(map[string]string{"other_id": otherID})
	req, _ := http.NewRequest("POST", BaseURL+"/api/conversations", bytes.NewBuffer(jsonBody))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusCreated {
		log.Printf("create conversation failed: %v", err)
		return ""
	}
	defer resp.Body.Close()

	var data ConversationResponse
	json.NewDecoder(resp.Body).Decode(&data)
	return data.ID
}

// chatSession joins the conversation over websocket, then alternates
// typing bursts with real sends through the REST API, the way a human
// client would.
func chatSession(wg *sync.WaitGroup, token, convID, user string) {
	defer wg.Done()

	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("%s?token=%s", WSURL, token), nil)
	if err != nil {
		log.Printf("ws connect failed [%s]: %v", user, err)
		return
	}
	defer conn.Close()

	// Drain server pushes so the read buffer never fills.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	conn.WriteJSON(map[string]string{"type": "join", "conversation_id": convID})

	for i := 0; i < MsgCount; i++ {
		content := fmt.Sprintf("load test msg %d from %s", i, user)

		// A few keystrokes to exercise the typing path.
		for j := 0; j < 3; j++ {
			conn.WriteJSON(map[string]string{
				"type":            "keystroke",
				"conversation_id": convID,
				"input":           content[:j+1],
			})
			time.Sleep(5 * time.Millisecond)
		}

		if err := sendMessage(token, convID, content); err != nil {
			log.Printf("send failed [%s]: %v", user, err)
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	log.Printf("%s finished sending %d msgs", user, MsgCount)
}

func sendMessage(token, convID, content string) error {
	jsonBody, _ := json.Marshal(map[string]string{"conversation_id": convID, "content": content})
	req, _ := http.NewRequest("POST", BaseURL+"/api/messages", bytes.NewBuffer(jsonBody))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func postJSON(endpoint string, data interface{}) (*http.Response, error) {
	jsonData, _ := json.Marshal(data)
	return http.Post(BaseURL+endpoint, "application/json", bytes.NewBuffer(jsonData))
}
