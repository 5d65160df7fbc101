package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"learnloop-service/internal/domain"
)

func TestStatsFeedStreamsSubmissions(t *testing.T) {
	e := newTestEnv(t)
	quizID := e.createPublished(t)
	server := httptest.NewServer(e.router)
	defer server.Close()

	watcher := e.token(t, "u9", domain.RoleUser)
	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/quizzes/" + quizID + "/stats?token=" + watcher
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Initial snapshot first.
	_, payload := readNext(conn, t, "stats")
	if total := statsTotal(t, payload); total != 0 {
		t.Fatalf("expected empty snapshot, got %v", payload)
	}

	user := e.token(t, "u1", domain.RoleUser)
	status, env := e.do(t, http.MethodPost, "/api/quizzes/"+quizID+"/attempts", user, nil)
	if status != http.StatusCreated {
		t.Fatalf("start attempt: %d %+v", status, env.Error)
	}
	attempt := decode[domain.QuizAttempt](t, env)
	submit := map[string]any{"responses": []map[string]any{
		{"questionId": "q1", "selectedOptions": []string{"4"}},
		{"questionId": "q2", "selectedOptions": []string{"chan", "map"}},
	}}
	if status, env = e.do(t, http.MethodPost, "/api/attempts/"+attempt.ID+"/submit", user, submit); status != http.StatusOK {
		t.Fatalf("submit: %d %+v", status, env.Error)
	}

	_, payload = readNext(conn, t, "stats")
	if total := statsTotal(t, payload); total != 1 {
		t.Fatalf("expected one attempt in update, got %v", payload)
	}

	admin := e.token(t, "admin-1", domain.RoleAdmin)
	if status, _ := e.do(t, http.MethodDelete, "/api/quizzes/"+quizID, admin, nil); status != http.StatusOK {
		t.Fatalf("delete: %d", status)
	}
	readNext(conn, t, "closed")
}

func TestStatsFeedRejectsBeforeUpgrade(t *testing.T) {
	e := newTestEnv(t)
	server := httptest.NewServer(e.router)
	defer server.Close()
	base := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/quizzes/missing/stats"

	_, resp, err := websocket.DefaultDialer.Dial(base, nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %v %v", resp, err)
	}

	token := e.token(t, "u1", domain.RoleUser)
	_, resp, err = websocket.DefaultDialer.Dial(base+"?token="+token, nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown quiz, got %v %v", resp, err)
	}
}

func TestStatsFeedReleasesSubscriptionOnDisconnect(t *testing.T) {
	e := newTestEnv(t)
	quizID := e.createPublished(t)
	server := httptest.NewServer(e.router)
	defer server.Close()

	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/quizzes/" + quizID + "/stats?token=" + e.token(t, "u1", domain.RoleUser)
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	readNext(conn, t, "stats")
	if n := e.hub.Subscribers(quizID); n != 1 {
		t.Fatalf("expected one subscriber, got %d", n)
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for e.hub.Subscribers(quizID) != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscription not released")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}

func statsTotal(t *testing.T, payload map[string]any) int {
	t.Helper()
	stats, ok := payload["stats"].(map[string]any)
	if !ok {
		t.Fatalf("payload without stats: %v", payload)
	}
	total, _ := stats["totalAttempts"].(float64)
	return int(total)
}
