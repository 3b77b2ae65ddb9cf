package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/your-org/facecheck/internal/models"
	"github.com/your-org/facecheck/pkg/dto"
)

func TestEvent_RendersLocalTime(t *testing.T) {
	loc := time.FixedZone("UTC+08:00", 8*3600)
	ev := models.AttendanceEvent{
		Type:       models.EventCheckedIn,
		IdentityID: "alice",
		Day:        "2024-03-02",
		ScannedAt:  time.Date(2024, 3, 1, 16, 30, 0, 0, time.UTC),
	}

	got := Event(ev, loc)
	if got.Timestamp != "2024-03-02T00:30:00+08:00" {
		t.Errorf("timestamp = %q", got.Timestamp)
	}
	if got.Date != "2024-03-02" || got.Type != models.EventCheckedIn {
		t.Errorf("event = %+v", got)
	}
}

func TestHub_ForwardsToMatchingKiosk(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub()
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/ws", hub.HandleWS)
	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?kiosk_id=lobby"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	forward := hub.Forward(time.UTC)
	now := time.Now()
	_ = forward(ctx, models.AttendanceEvent{Type: models.EventCheckedIn, IdentityID: "bob", KioskID: "dock", ScannedAt: now})
	_ = forward(ctx, models.AttendanceEvent{Type: models.EventCheckedIn, IdentityID: "alice", KioskID: "lobby", ScannedAt: now})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got dto.WSEvent
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.IdentityID != "alice" || got.KioskID != "lobby" {
		t.Errorf("received %+v, want alice at lobby", got)
	}
}

func TestHub_StopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	go hub.Run(ctx)
	cancel()

	select {
	case <-hub.done:
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}
	if hub.Clients() != 0 {
		t.Errorf("clients = %d after stop", hub.Clients())
	}
}
