package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/opst/relmon/cmd/relmond/handlers"
	"github.com/opst/relmon/pkg/bundle"
	"github.com/opst/relmon/pkg/controller"
	"github.com/opst/relmon/pkg/domain"
	"github.com/opst/relmon/pkg/domain/relmon/db/memory"
	rmock "github.com/opst/relmon/pkg/remote/mock"
)

func serve(e *echo.Echo, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	e.ServeHTTP(resp, req)
	return resp
}

func TestBuildServer(t *testing.T) {
	store := memory.New()
	ctrl := controller.New(controller.Deps{
		Store:  store,
		Remote: rmock.NewExecutor(),
		Files:  bundle.New(bundle.Config{LocalDirectory: t.TempDir(), RemoteDirectory: "relmon_test"}),
	})

	e := BuildServer(ctrl, Auth{AdminGroup: "admins", ServiceAccounts: []string{"pdmvserv"}}, "off")

	admin := map[string]string{
		handlers.HeaderLogin: "alice",
		handlers.HeaderEmail: "alice@example.com",
		handlers.HeaderGroup: "users;Admins",
	}
	user := map[string]string{handlers.HeaderLogin: "bob", handlers.HeaderGroup: "users"}

	t.Run("mutating endpoints are for admins", func(t *testing.T) {
		for _, r := range []struct{ method, target string }{
			{http.MethodPost, "/api/create"},
			{http.MethodPost, "/api/edit"},
			{http.MethodPost, "/api/reset"},
			{http.MethodDelete, "/api/delete"},
		} {
			resp := serve(e, r.method, r.target, `{"id": 1, "name": "x"}`, user)
			if resp.Code != http.StatusForbidden {
				t.Errorf("%s %s: status %d", r.method, r.target, resp.Code)
			}
		}
	})

	var id string
	t.Run("admin creates RelMon", func(t *testing.T) {
		resp := serve(e, http.MethodPost, "/api/create", `{"name": "sample", "categories": []}`, admin)
		if resp.Code != http.StatusOK {
			t.Fatalf("status %d: %s", resp.Code, resp.Body.String())
		}
		msg := handlers.Message{}
		if err := json.Unmarshal(resp.Body.Bytes(), &msg); err != nil {
			t.Fatal(err)
		}
		id = msg.Id

		if _, err := uuid.Parse(resp.Header().Get(echo.HeaderXRequestID)); err != nil {
			t.Errorf("request id: %v", err)
		}

		again := serve(e, http.MethodPost, "/api/create", `{"name": "sample"}`, admin)
		if again.Code != http.StatusUnprocessableEntity {
			t.Errorf("duplicated: status %d", again.Code)
		}
	})

	t.Run("anyone can list", func(t *testing.T) {
		resp := serve(e, http.MethodGet, "/api/get_relmons?q=new", "", map[string]string{echo.HeaderOrigin: "https://example.com"})
		if resp.Code != http.StatusOK {
			t.Fatalf("status %d", resp.Code)
		}
		if got := resp.Header().Get(echo.HeaderAccessControlAllowOrigin); got != "*" {
			t.Errorf("CORS: %q", got)
		}
		page := handlers.Page{}
		if err := json.Unmarshal(resp.Body.Bytes(), &page); err != nil {
			t.Fatal(err)
		}
		if page.TotalRows != 1 || page.Data[0].Id != id || page.Data[0].Status != domain.New {
			t.Errorf("page: %+v", page)
		}
	})

	t.Run("callback is for service accounts", func(t *testing.T) {
		body := `{"id": "` + id + `", "status": "running", "categories": []}`
		if resp := serve(e, http.MethodPost, "/api/update", body, admin); resp.Code != http.StatusForbidden {
			t.Errorf("admin: status %d", resp.Code)
		}

		// the RelMon is not submitted yet.
		resp := serve(e, http.MethodPost, "/api/update", body, map[string]string{handlers.HeaderLogin: "pdmvserv"})
		if resp.Code != http.StatusConflict {
			t.Errorf("service account: status %d", resp.Code)
		}
	})

	t.Run("user endpoint tells authorization", func(t *testing.T) {
		resp := serve(e, http.MethodGet, "/api/user", "", admin)
		body := map[string]any{}
		if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		if body["login"] != "alice" || body["authorized_user"] != true {
			t.Errorf("user: %v", body)
		}
	})

	t.Run("admin deletes RelMon", func(t *testing.T) {
		resp := serve(e, http.MethodDelete, "/api/delete", `{"id": `+id+`}`, admin)
		if resp.Code != http.StatusOK {
			t.Errorf("status %d: %s", resp.Code, resp.Body.String())
		}
		missing := serve(e, http.MethodDelete, "/api/delete", `{"id": 1}`, admin)
		if missing.Code != http.StatusNotFound {
			t.Errorf("missing: status %d", missing.Code)
		}
	})

	t.Run("tick wakes the controller", func(t *testing.T) {
		if resp := serve(e, http.MethodGet, "/api/tick", "", nil); resp.Code != http.StatusOK {
			t.Errorf("status %d", resp.Code)
		}
	})
}
