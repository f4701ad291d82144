package httpapi_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/mnemo-ai/mnemo/internal/chat"
	"github.com/mnemo-ai/mnemo/internal/convstore"
)

func TestCreateConversation(t *testing.T) {
	srv, store := newTestServer(t, &fakeChat{resp: &chat.Response{}})

	resp := postJSON(t, srv.URL+"/v1/conversations",
		`{"userId":"u1","title":"Trip planning","model":"gpt-4o"}`)

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	conv := decodeBody[convstore.Conversation](t, resp)
	if conv.ID == "" {
		t.Error("conversation ID is empty")
	}
	if conv.Title != "Trip planning" {
		t.Errorf("title = %q, want %q", conv.Title, "Trip planning")
	}

	if _, err := store.Get(context.Background(), conv.ID); err != nil {
		t.Errorf("Get(%s) error = %v, want stored conversation", conv.ID, err)
	}
}

func TestCreateConversation_RequiresUserID(t *testing.T) {
	srv, _ := newTestServer(t, &fakeChat{})

	resp := postJSON(t, srv.URL+"/v1/conversations", `{"title":"untitled"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestListConversations(t *testing.T) {
	srv, store := newTestServer(t, &fakeChat{})

	for _, title := range []string{"first", "second"} {
		if _, err := store.Create(context.Background(), "u1", title, ""); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
	if _, err := store.Create(context.Background(), "u2", "other user", ""); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	resp, err := http.Get(srv.URL + "/v1/conversations?userId=u1")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body := decodeBody[struct {
		Conversations []convstore.Conversation `json:"conversations"`
	}](t, resp)
	if len(body.Conversations) != 2 {
		t.Errorf("len(conversations) = %d, want 2", len(body.Conversations))
	}
}

func TestListConversations_RequiresUserID(t *testing.T) {
	srv, _ := newTestServer(t, &fakeChat{})

	resp, err := http.Get(srv.URL + "/v1/conversations")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestGetConversation_NotFound(t *testing.T) {
	srv, _ := newTestServer(t, &fakeChat{})

	resp, err := http.Get(srv.URL + "/v1/conversations/no-such-id")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
}

func TestDeleteConversation(t *testing.T) {
	srv, store := newTestServer(t, &fakeChat{})

	conv, err := store.Create(context.Background(), "u1", "doomed", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/v1/conversations/"+conv.ID, nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}

	if _, err := store.Get(context.Background(), conv.ID); err == nil {
		t.Error("Get() after delete succeeded, want ErrNotFound")
	}

	// A second delete reports not found.
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("second DELETE error = %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("second delete status = %d, want %d", resp2.StatusCode, http.StatusNotFound)
	}
}
