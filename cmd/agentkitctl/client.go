package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/agentkit/pkg/models"
)

// apiClient is a thin HTTP client over agentkitd's REST surface,
// grounded on the teacher's pattern of keeping CLI commands as small
// wrappers over a single client type rather than reimplementing
// request plumbing per command.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(addr string) *apiClient {
	return &apiClient{baseURL: "http://" + addr, http: &http.Client{Timeout: 30 * time.Second}}
}

func (c *apiClient) do(method, path string, body any, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("agentkitctl: encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("agentkitctl: build request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("agentkitctl: request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error == "" {
			apiErr.Error = resp.Status
		}
		return fmt.Errorf("agentkitctl: %s %s: %s", method, path, apiErr.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("agentkitctl: decode response: %w", err)
	}
	return nil
}

type createSessionBody struct {
	UserID         uuid.UUID             `json:"user_id"`
	AllowedTools   []string              `json:"allowed_tools,omitempty"`
	PermissionMode models.PermissionMode `json:"permission_mode,omitempty"`
}

func (c *apiClient) CreateSession(userID uuid.UUID, allowedTools []string, mode models.PermissionMode) (*models.Session, error) {
	var sess models.Session
	err := c.do(http.MethodPost, "/v1/sessions", createSessionBody{UserID: userID, AllowedTools: allowedTools, PermissionMode: mode}, &sess)
	return &sess, err
}

func (c *apiClient) GetSession(id uuid.UUID) (*models.Session, error) {
	var sess models.Session
	err := c.do(http.MethodGet, "/v1/sessions/"+id.String(), nil, &sess)
	return &sess, err
}

func (c *apiClient) Query(id uuid.UUID, prompt string) (string, error) {
	var out struct {
		Result string `json:"result"`
	}
	err := c.do(http.MethodPost, "/v1/sessions/"+id.String()+"/query", map[string]string{"prompt": prompt}, &out)
	return out.Result, err
}

func (c *apiClient) Interrupt(id uuid.UUID) error {
	return c.do(http.MethodPost, "/v1/sessions/"+id.String()+"/interrupt", nil, nil)
}

func (c *apiClient) Pause(id uuid.UUID) (*models.Session, error) {
	var sess models.Session
	err := c.do(http.MethodPost, "/v1/sessions/"+id.String()+"/pause", nil, &sess)
	return &sess, err
}

func (c *apiClient) Resume(id uuid.UUID) (*models.Session, error) {
	var sess models.Session
	err := c.do(http.MethodPost, "/v1/sessions/"+id.String()+"/resume", nil, &sess)
	return &sess, err
}

type forkSessionBody struct {
	Name          string `json:"name,omitempty"`
	ForkAtMessage int64  `json:"fork_at_message,omitempty"`
}

func (c *apiClient) Fork(id uuid.UUID, name string, forkAtMessage int64) (*models.Session, error) {
	var sess models.Session
	body := forkSessionBody{Name: name, ForkAtMessage: forkAtMessage}
	err := c.do(http.MethodPost, "/v1/sessions/"+id.String()+"/fork", body, &sess)
	return &sess, err
}

func (c *apiClient) Terminate(id uuid.UUID) (*models.Session, error) {
	var sess models.Session
	err := c.do(http.MethodDelete, "/v1/sessions/"+id.String(), nil, &sess)
	return &sess, err
}

type createTaskBody struct {
	UserID         uuid.UUID `json:"user_id"`
	Name           string    `json:"name"`
	PromptTemplate string    `json:"prompt_template"`
	ScheduleCron   string    `json:"schedule_cron,omitempty"`
	AllowedTools   []string  `json:"allowed_tools,omitempty"`
}

func (c *apiClient) CreateTask(userID uuid.UUID, name, promptTemplate, scheduleCron string, allowedTools []string) (*models.Task, error) {
	var task models.Task
	err := c.do(http.MethodPost, "/v1/tasks", createTaskBody{
		UserID:         userID,
		Name:           name,
		PromptTemplate: promptTemplate,
		ScheduleCron:   scheduleCron,
		AllowedTools:   allowedTools,
	}, &task)
	return &task, err
}

func (c *apiClient) GetTask(id uuid.UUID) (*models.Task, error) {
	var task models.Task
	err := c.do(http.MethodGet, "/v1/tasks/"+id.String(), nil, &task)
	return &task, err
}

func (c *apiClient) DeleteTask(id uuid.UUID) error {
	return c.do(http.MethodDelete, "/v1/tasks/"+id.String(), nil, nil)
}

func (c *apiClient) RunTask(id uuid.UUID, variables map[string]string) (*models.TaskExecution, error) {
	var exec models.TaskExecution
	err := c.do(http.MethodPost, "/v1/tasks/"+id.String()+"/run", map[string]map[string]string{"variables": variables}, &exec)
	return &exec, err
}
