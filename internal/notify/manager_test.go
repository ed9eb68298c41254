package notify

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/Bigsy/mcpherd/internal/events"
	"github.com/Bigsy/mcpherd/internal/protocol"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		method string
		want   Kind
	}{
		{protocol.MethodNotificationProgress, KindProgress},
		{protocol.MethodNotificationCancelled, KindCancelled},
		{protocol.MethodNotificationToolsChanged, KindToolsChanged},
		{protocol.MethodNotificationPromptsChanged, KindPromptsChanged},
		{protocol.MethodNotificationResourcesChanged, KindResourcesChanged},
		{protocol.MethodNotificationRootsChanged, KindRootsChanged},
		{protocol.MethodNotificationResourceUpdated, KindResourceUpdated},
		{protocol.MethodNotificationMessage, KindLogMessage},
		{"notifications/vendor/custom_thing", KindCustom},
		{"totally/unknown", KindCustom},
	}
	for _, tt := range tests {
		if got := Classify(tt.method); got != tt.want {
			t.Errorf("Classify(%q) = %q, expected %q", tt.method, got, tt.want)
		}
	}
}

func progressParams(t *testing.T, token string, progress, total float64) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(protocol.ProgressParams{ProgressToken: token, Progress: progress, Total: total})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestManager_ProgressLifecycle(t *testing.T) {
	m := NewManager(nil, nil)

	m.HandleNotification("db", protocol.MethodNotificationProgress, progressParams(t, "tok-1", 3, 10))

	st, ok := m.GetProgress("db", "tok-1")
	if !ok {
		t.Fatal("expected active progress state")
	}
	if st.Progress != 3 || st.Total != 10 {
		t.Errorf("unexpected state: %+v", st)
	}
	if p := st.Percent(); p != 30 {
		t.Errorf("expected 30%%, got %v", p)
	}

	m.HandleNotification("db", protocol.MethodNotificationProgress, progressParams(t, "tok-1", 10, 10))
	if _, ok := m.GetProgress("db", "tok-1"); ok {
		t.Error("completed progress should be removed")
	}
	if n := len(m.ActiveProgress()); n != 0 {
		t.Errorf("expected no active progress, got %d", n)
	}
}

func TestManager_ProgressExactlyOneCompletionEvent(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	completions := make(chan events.ProgressCompletedEvent, 8)
	updates := make(chan events.ProgressUpdatedEvent, 8)
	bus.Subscribe(func(e events.Event) {
		switch evt := e.(type) {
		case events.ProgressCompletedEvent:
			completions <- evt
		case events.ProgressUpdatedEvent:
			updates <- evt
		}
	})

	m := NewManager(bus, nil)
	m.HandleNotification("db", protocol.MethodNotificationProgress, progressParams(t, "tok-1", 5, 10))
	m.HandleNotification("db", protocol.MethodNotificationProgress, progressParams(t, "tok-1", 10, 10))

	for i := 0; i < 2; i++ {
		select {
		case <-updates:
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for progress update")
		}
	}

	select {
	case evt := <-completions:
		if evt.ProgressToken != "tok-1" {
			t.Errorf("unexpected token %q", evt.ProgressToken)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for completion")
	}

	// A late update for the finished token starts a fresh state rather than
	// emitting a second completion for the old one.
	m.HandleNotification("db", protocol.MethodNotificationProgress, progressParams(t, "tok-1", 2, 10))
	select {
	case <-updates:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for late update")
	}
	select {
	case evt := <-completions:
		t.Errorf("unexpected extra completion: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestManager_ProgressWithoutTotalCompletesAtHundred(t *testing.T) {
	m := NewManager(nil, nil)

	m.HandleNotification("db", protocol.MethodNotificationProgress, progressParams(t, "tok-1", 50, 0))
	if _, ok := m.GetProgress("db", "tok-1"); !ok {
		t.Fatal("expected active progress at 50")
	}

	m.HandleNotification("db", protocol.MethodNotificationProgress, progressParams(t, "tok-1", 100, 0))
	if _, ok := m.GetProgress("db", "tok-1"); ok {
		t.Error("progress without total should complete at 100")
	}
}

func TestManager_ProgressKeyedPerServer(t *testing.T) {
	m := NewManager(nil, nil)

	m.HandleNotification("alpha", protocol.MethodNotificationProgress, progressParams(t, "tok", 1, 10))
	m.HandleNotification("beta", protocol.MethodNotificationProgress, progressParams(t, "tok", 9, 10))

	a, _ := m.GetProgress("alpha", "tok")
	b, _ := m.GetProgress("beta", "tok")
	if a.Progress != 1 || b.Progress != 9 {
		t.Errorf("same token on different servers must not collide: %v / %v", a.Progress, b.Progress)
	}
}

func TestManager_HistoryFilter(t *testing.T) {
	m := NewManager(nil, nil)

	m.HandleNotification("alpha", protocol.MethodNotificationToolsChanged, nil)
	m.HandleNotification("beta", protocol.MethodNotificationToolsChanged, nil)
	m.HandleNotification("alpha", "custom/thing", json.RawMessage(`{"x":1}`))

	all := m.GetHistory(Filter{})
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}

	alpha := m.GetHistory(Filter{Server: "alpha"})
	if len(alpha) != 2 {
		t.Errorf("expected 2 alpha entries, got %d", len(alpha))
	}

	custom := m.GetHistory(Filter{Kind: KindCustom})
	if len(custom) != 1 || custom[0].Method != "custom/thing" {
		t.Errorf("unexpected custom entries: %+v", custom)
	}

	both := m.GetHistory(Filter{Server: "alpha", Kind: KindToolsChanged})
	if len(both) != 1 {
		t.Errorf("expected 1 combined match, got %d", len(both))
	}
}

func TestManager_HistoryLimitKeepsMostRecent(t *testing.T) {
	m := NewManager(nil, nil, WithHistoryLimit(3))

	for i := 0; i < 5; i++ {
		m.HandleNotification("db", fmt.Sprintf("custom/n%d", i), nil)
	}

	got := m.GetHistory(Filter{})
	if len(got) != 3 {
		t.Fatalf("expected ring capped at 3, got %d", len(got))
	}
	if got[0].Method != "custom/n2" || got[2].Method != "custom/n4" {
		t.Errorf("expected most recent kept oldest-first, got %v %v", got[0].Method, got[2].Method)
	}
}

func TestManager_GetHistoryLimitTruncation(t *testing.T) {
	m := NewManager(nil, nil)
	for i := 0; i < 4; i++ {
		m.HandleNotification("db", fmt.Sprintf("custom/n%d", i), nil)
	}

	got := m.GetHistory(Filter{Limit: 2})
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].Method != "custom/n2" || got[1].Method != "custom/n3" {
		t.Errorf("expected the two most recent, got %v %v", got[0].Method, got[1].Method)
	}
}

func TestManager_ClearHistory(t *testing.T) {
	m := NewManager(nil, nil)
	m.HandleNotification("db", "custom/x", nil)
	m.ClearHistory()
	if len(m.GetHistory(Filter{})) != 0 {
		t.Error("expected empty history after clear")
	}
}

func TestManager_MalformedProgressIgnored(t *testing.T) {
	m := NewManager(nil, nil)
	m.HandleNotification("db", protocol.MethodNotificationProgress, json.RawMessage(`{not json`))
	if n := len(m.ActiveProgress()); n != 0 {
		t.Errorf("malformed params should not create state, got %d", n)
	}
}
