package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
)

// mockHTTPClient is a test double for HTTPClient.
type mockHTTPClient struct {
	doFunc func(req *http.Request) (*http.Response, error)
	calls  int
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.calls++
	return m.doFunc(req)
}

// fakeCreds is an in-memory CredentialSource recording logouts.
type fakeCreds struct {
	token   string
	orgID   int
	hasOrg  bool
	logouts int
}

func (f *fakeCreds) Token() (string, error) { return f.token, nil }
func (f *fakeCreds) OrgID() (int, bool)     { return f.orgID, f.hasOrg }
func (f *fakeCreds) Logout() error {
	f.logouts++
	f.token = ""
	f.hasOrg = false
	return nil
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

func TestListRequestShape(t *testing.T) {
	var gotURL, gotAuth string
	mock := &mockHTTPClient{doFunc: func(req *http.Request) (*http.Response, error) {
		gotURL = req.URL.String()
		gotAuth = req.Header.Get("Authorization")
		return jsonResponse(http.StatusOK, `{"items":[],"total":0,"page":1,"per_page":20}`), nil
	}}
	creds := &fakeCreds{token: "tok-123", orgID: 42, hasOrg: true}
	client := New("https://api.example.com", creds, mock, nil)

	_, err := client.List(context.Background(), 1, 20, "acme/widgets")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantPath := "https://api.example.com/v1/organizations/42/agent/runs?"
	if len(gotURL) < len(wantPath) || gotURL[:len(wantPath)] != wantPath {
		t.Errorf("URL = %q, want prefix %q", gotURL, wantPath)
	}
	for _, param := range []string{"page=1", "per_page=20", "source_type=API", "repository=acme%2Fwidgets"} {
		if !contains(gotURL, param) {
			t.Errorf("URL %q missing query param %q", gotURL, param)
		}
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}

func TestListDecodesPage(t *testing.T) {
	mock := &mockHTTPClient{doFunc: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{
			"items": [{"id": 1, "status": "running", "created_at": "2024-06-01T11:55:00Z",
				"github_pull_requests": []}],
			"total": 1, "page": 1, "per_page": 20
		}`), nil
	}}
	client := New("https://api.example.com", &fakeCreds{orgID: 42, hasOrg: true}, mock, nil)

	page, err := client.List(context.Background(), 1, 20, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(page.Items) != 1 || page.Total != 1 {
		t.Fatalf("page = %+v", page)
	}
	if page.Items[0].ID != 1 || page.Items[0].Status != "running" {
		t.Errorf("run = %+v", page.Items[0])
	}
	if page.Items[0].PRCount() != 0 {
		t.Errorf("PRCount = %d, want 0", page.Items[0].PRCount())
	}
}

func TestListWithoutOrgIsLocalFailure(t *testing.T) {
	mock := &mockHTTPClient{doFunc: func(req *http.Request) (*http.Response, error) {
		t.Fatal("no network call expected without an org id")
		return nil, nil
	}}
	client := New("https://api.example.com", &fakeCreds{}, mock, nil)

	_, err := client.List(context.Background(), 1, 20, "")
	if !errors.Is(err, ErrNoOrganization) {
		t.Errorf("err = %v, want ErrNoOrganization", err)
	}
	if mock.calls != 0 {
		t.Errorf("transport called %d times", mock.calls)
	}
}

func TestUnauthorizedClearsCredentialsFirst(t *testing.T) {
	creds := &fakeCreds{token: "stale", orgID: 42, hasOrg: true}
	mock := &mockHTTPClient{doFunc: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusUnauthorized, `{"message":"token revoked"}`), nil
	}}
	client := New("https://api.example.com", creds, mock, nil)

	_, err := client.List(context.Background(), 1, 20, "")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if creds.logouts != 1 {
		t.Errorf("logouts = %d, want 1", creds.logouts)
	}
	if creds.token != "" {
		t.Error("token still stored after 401")
	}
}

func TestServerErrorCarriesMessage(t *testing.T) {
	mock := &mockHTTPClient{doFunc: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusBadGateway, `{"message":"upstream exploded"}`), nil
	}}
	client := New("https://api.example.com", &fakeCreds{orgID: 42, hasOrg: true}, mock, nil)

	_, err := client.List(context.Background(), 1, 20, "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadGateway || apiErr.Message != "upstream exploded" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestServerErrorWithoutMessageBody(t *testing.T) {
	mock := &mockHTTPClient{doFunc: func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusInternalServerError, `not json at all`), nil
	}}
	client := New("https://api.example.com", &fakeCreds{orgID: 42, hasOrg: true}, mock, nil)

	_, err := client.List(context.Background(), 1, 20, "")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Message != "" {
		t.Errorf("Message = %q, want empty fallback", apiErr.Message)
	}
	if !contains(apiErr.Error(), "500") {
		t.Errorf("Error() = %q, want the status code in it", apiErr.Error())
	}
}

func TestCreateRejectsBlankPromptLocally(t *testing.T) {
	mock := &mockHTTPClient{doFunc: func(req *http.Request) (*http.Response, error) {
		t.Fatal("no network call expected for a blank prompt")
		return nil, nil
	}}
	client := New("https://api.example.com", &fakeCreds{orgID: 42, hasOrg: true}, mock, nil)

	_, err := client.Create(context.Background(), "   ", "", 0)
	if !errors.Is(err, ErrEmptyPrompt) {
		t.Errorf("err = %v, want ErrEmptyPrompt", err)
	}
	if mock.calls != 0 {
		t.Errorf("transport called %d times", mock.calls)
	}
}

func TestCreateSendsTrimmedPromptAndOptionals(t *testing.T) {
	var gotBody string
	mock := &mockHTTPClient{doFunc: func(req *http.Request) (*http.Response, error) {
		data, _ := io.ReadAll(req.Body)
		gotBody = string(data)
		return jsonResponse(http.StatusOK, `{"id": 9, "status": "pending", "created_at": "2024-06-01T12:00:00Z"}`), nil
	}}
	client := New("https://api.example.com", &fakeCreds{orgID: 42, hasOrg: true}, mock, nil)

	run, err := client.Create(context.Background(), "  fix the login bug  ", "fast-model", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if run.ID != 9 {
		t.Errorf("run id = %d", run.ID)
	}
	for _, want := range []string{`"prompt":"fix the login bug"`, `"model":"fast-model"`, `"repo_id":7`} {
		if !contains(gotBody, want) {
			t.Errorf("body %q missing %q", gotBody, want)
		}
	}
}

func TestCreateOmitsUnsetOptionals(t *testing.T) {
	var gotBody string
	mock := &mockHTTPClient{doFunc: func(req *http.Request) (*http.Response, error) {
		data, _ := io.ReadAll(req.Body)
		gotBody = string(data)
		return jsonResponse(http.StatusOK, `{"id": 9, "status": "pending", "created_at": "2024-06-01T12:00:00Z"}`), nil
	}}
	client := New("https://api.example.com", &fakeCreds{orgID: 42, hasOrg: true}, mock, nil)

	if _, err := client.Create(context.Background(), "prompt", "", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if contains(gotBody, "model") || contains(gotBody, "repo_id") {
		t.Errorf("body %q should not carry unset optionals", gotBody)
	}
}

func TestGetBuildsRunPath(t *testing.T) {
	var gotURL string
	mock := &mockHTTPClient{doFunc: func(req *http.Request) (*http.Response, error) {
		gotURL = req.URL.String()
		return jsonResponse(http.StatusOK, `{"id": 55, "status": "completed", "created_at": "2024-06-01T12:00:00Z"}`), nil
	}}
	client := New("https://api.example.com", &fakeCreds{orgID: 42, hasOrg: true}, mock, nil)

	run, err := client.Get(context.Background(), 55)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotURL != "https://api.example.com/v1/organizations/42/agent/run/55" {
		t.Errorf("URL = %q", gotURL)
	}
	if run.ID != 55 {
		t.Errorf("run id = %d", run.ID)
	}
}

func TestNoAuthHeaderWithoutToken(t *testing.T) {
	mock := &mockHTTPClient{doFunc: func(req *http.Request) (*http.Response, error) {
		if req.Header.Get("Authorization") != "" {
			t.Error("Authorization header set without a stored token")
		}
		return jsonResponse(http.StatusOK, `{"items":[],"total":0,"page":1,"per_page":20}`), nil
	}}
	client := New("https://api.example.com", &fakeCreds{orgID: 42, hasOrg: true}, mock, nil)

	if _, err := client.List(context.Background(), 1, 20, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func contains(s, sub string) bool {
	return bytes.Contains([]byte(s), []byte(sub))
}
