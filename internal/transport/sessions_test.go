package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentkit/pkg/models"
)

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func TestSessionCreateAndGet(t *testing.T) {
	a, userID := newTestApp(t)
	srv := newTestServer(t, a)

	resp := postJSON(t, srv.URL+"/v1/sessions", createSessionRequest{UserID: userID})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}

	var created models.Session
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.UserID != userID {
		t.Fatalf("created.UserID = %s, want %s", created.UserID, userID)
	}
	if created.Status != models.StatusConnecting {
		t.Fatalf("created.Status = %s, want CONNECTING", created.Status)
	}

	getResp, err := http.Get(fmt.Sprintf("%s/v1/sessions/%s", srv.URL, created.ID))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d, want 200", getResp.StatusCode)
	}
	var fetched models.Session
	if err := json.NewDecoder(getResp.Body).Decode(&fetched); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if fetched.ID != created.ID {
		t.Fatalf("fetched.ID = %s, want %s", fetched.ID, created.ID)
	}
}

func TestSessionGetUnknownIDReturns404(t *testing.T) {
	a, _ := newTestApp(t)
	srv := newTestServer(t, a)

	resp, err := http.Get(srv.URL + "/v1/sessions/" + uuid.New().String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestSessionGetMalformedIDReturns400(t *testing.T) {
	a, _ := newTestApp(t)
	srv := newTestServer(t, a)

	resp, err := http.Get(srv.URL + "/v1/sessions/not-a-uuid")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSessionCreateQuotaExceededReturnsTooManyRequests(t *testing.T) {
	a, userID := newTestApp(t)
	user, err := a.Store.GetUser(t.Context(), userID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	user.Quotas.MaxConcurrentSessions = 1
	if err := a.Store.UpdateUser(t.Context(), user); err != nil {
		t.Fatalf("update user: %v", err)
	}

	srv := newTestServer(t, a)

	first := postJSON(t, srv.URL+"/v1/sessions", createSessionRequest{UserID: userID})
	first.Body.Close()
	if first.StatusCode != http.StatusCreated {
		t.Fatalf("first create status = %d, want 201", first.StatusCode)
	}

	second := postJSON(t, srv.URL+"/v1/sessions", createSessionRequest{UserID: userID})
	defer second.Body.Close()
	if second.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("second create status = %d, want 429", second.StatusCode)
	}
}
