package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/haasonsaas/agentkit/pkg/models"
)

func TestTaskCreateGetDelete(t *testing.T) {
	a, userID := newTestApp(t)
	srv := newTestServer(t, a)

	createResp := postJSON(t, srv.URL+"/v1/tasks", createTaskRequest{
		UserID:         userID,
		Name:           "nightly-report",
		PromptTemplate: "summarize {{.repo}}",
		ScheduleCron:   "0 2 * * *",
	})
	defer createResp.Body.Close()
	if createResp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", createResp.StatusCode)
	}
	var task models.Task
	if err := json.NewDecoder(createResp.Body).Decode(&task); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if task.ScheduleCron == nil || !task.ScheduleEnabled {
		t.Fatalf("task schedule not set: %+v", task)
	}
	if task.NextFireAt == nil {
		t.Fatalf("task.NextFireAt not computed")
	}

	getResp, err := http.Get(fmt.Sprintf("%s/v1/tasks/%s", srv.URL, task.ID))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d, want 200", getResp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/v1/tasks/%s", srv.URL, task.ID), nil)
	if err != nil {
		t.Fatalf("build delete request: %v", err)
	}
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	defer delResp.Body.Close()
	if delResp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", delResp.StatusCode)
	}

	afterResp, err := http.Get(fmt.Sprintf("%s/v1/tasks/%s", srv.URL, task.ID))
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	defer afterResp.Body.Close()
	if afterResp.StatusCode != http.StatusNotFound {
		t.Fatalf("status after delete = %d, want 404", afterResp.StatusCode)
	}
}

func TestTaskCreateRejectsInvalidCron(t *testing.T) {
	a, userID := newTestApp(t)
	srv := newTestServer(t, a)

	resp := postJSON(t, srv.URL+"/v1/tasks", createTaskRequest{
		UserID:         userID,
		Name:           "bad-cron",
		PromptTemplate: "hello",
		ScheduleCron:   "not a cron expression",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestTaskCreateRequiresNameAndPrompt(t *testing.T) {
	a, userID := newTestApp(t)
	srv := newTestServer(t, a)

	resp := postJSON(t, srv.URL+"/v1/tasks", createTaskRequest{UserID: userID})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}
