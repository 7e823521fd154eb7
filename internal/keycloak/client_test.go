package keycloak

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeKeycloak — token endpoint и Admin API realm "dh".
type fakeKeycloak struct {
	tokenCalls atomic.Int32
	// token — ответ token endpoint; nil — токен "sa-token" на 300 секунд.
	token http.HandlerFunc
	admin http.HandlerFunc
}

func (f *fakeKeycloak) start(t *testing.T) *Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/realms/dh/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		if f.token != nil {
			f.token(w, r)
			return
		}
		writeJSON(w, TokenResponse{AccessToken: "sa-token", TokenType: "Bearer", ExpiresIn: 300})
	})
	mux.HandleFunc("/admin/realms/dh/", func(w http.ResponseWriter, r *http.Request) {
		if f.admin == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		f.admin(w, r)
	})
	mux.HandleFunc("/admin/realms/dh", func(w http.ResponseWriter, r *http.Request) {
		if f.admin != nil {
			f.admin(w, r)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return New(srv.URL+"/", "dh", "dh-simulator", "sa-secret", srv.Client(),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestServiceAccount_ClientCredentials(t *testing.T) {
	f := &fakeKeycloak{token: func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatal(err)
		}
		want := map[string]string{"grant_type": "client_credentials", "client_id": "dh-simulator", "client_secret": "sa-secret"}
		for k, v := range want {
			if r.PostForm.Get(k) != v {
				t.Errorf("%s = %q, хотели %q", k, r.PostForm.Get(k), v)
			}
		}
		writeJSON(w, TokenResponse{AccessToken: "t1", ExpiresIn: 300})
	}}
	client := f.start(t)

	for range 3 {
		token, err := client.account.Token(context.Background())
		if err != nil || token != "t1" {
			t.Fatalf("Token() = %q, %v", token, err)
		}
	}
	if n := f.tokenCalls.Load(); n != 1 {
		t.Errorf("запросов токена: %d, ожидается 1", n)
	}
}

func TestServiceAccount_RenewsBeforeExpiry(t *testing.T) {
	f := &fakeKeycloak{token: func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, TokenResponse{AccessToken: "t", ExpiresIn: 60})
	}}
	client := f.start(t)
	now := time.Unix(1_700_000_000, 0)
	client.account.now = func() time.Time { return now }
	ctx := context.Background()

	_, _ = client.account.Token(ctx)
	now = now.Add(25 * time.Second) // осталось 35 секунд
	_, _ = client.account.Token(ctx)
	if n := f.tokenCalls.Load(); n != 1 {
		t.Fatalf("запросов токена: %d, ожидается 1", n)
	}

	now = now.Add(10 * time.Second) // осталось 25 секунд
	_, _ = client.account.Token(ctx)
	if n := f.tokenCalls.Load(); n != 2 {
		t.Errorf("запросов токена: %d, ожидается 2", n)
	}
}

func TestServiceAccount_SingleRequestUnderLoad(t *testing.T) {
	release := make(chan struct{})
	f := &fakeKeycloak{token: func(w http.ResponseWriter, _ *http.Request) {
		<-release
		writeJSON(w, TokenResponse{AccessToken: "shared", ExpiresIn: 300})
	}}
	client := f.start(t)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if token, err := client.account.Token(context.Background()); err != nil || token != "shared" {
				t.Errorf("Token() = %q, %v", token, err)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := f.tokenCalls.Load(); n != 1 {
		t.Errorf("запросов токена: %d, ожидается 1", n)
	}
}

func TestServiceAccount_Rejected(t *testing.T) {
	f := &fakeKeycloak{token: func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
	}}
	client := f.start(t)

	_, err := client.ListUsers(context.Background(), "", 0, 10)
	if err == nil || !strings.Contains(err.Error(), "401") || !strings.Contains(err.Error(), "invalid_client") {
		t.Errorf("ожидается ошибка 401 invalid_client, получено: %v", err)
	}
}

func TestClient_ListUsers(t *testing.T) {
	f := &fakeKeycloak{admin: func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sa-token" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		q := r.URL.Query()
		if r.URL.Path != "/admin/realms/dh/users" || q.Get("search") != "ana@dh.com" || q.Get("first") != "0" || q.Get("max") != "500" {
			t.Errorf("запрос: %s", r.URL)
		}
		writeJSON(w, []KeycloakUser{{ID: "u1", Email: "ana@dh.com", Enabled: true, CreatedAt: 1_708_617_600_000}})
	}}
	client := f.start(t)

	users, err := client.ListUsers(context.Background(), "ana@dh.com", 0, 500)
	if err != nil {
		t.Fatalf("ListUsers() вернул ошибку: %v", err)
	}
	if len(users) != 1 || users[0].ID != "u1" || users[0].CreatedAtTime().Year() != 2024 {
		t.Errorf("users = %+v", users)
	}
}

func TestClient_CreateUser(t *testing.T) {
	f := &fakeKeycloak{admin: func(w http.ResponseWriter, r *http.Request) {
		var req userCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if r.Method != http.MethodPost || req.Username != "ana@dh.com" || !req.Enabled || !req.EmailVerified {
			t.Errorf("запрос создания: %s %+v", r.Method, req)
		}
		if len(req.Credentials) != 1 || req.Credentials[0].Temporary || req.Credentials[0].Value != "secret1" {
			t.Errorf("credentials = %+v", req.Credentials)
		}
		w.Header().Set("Location", "http://"+r.Host+"/admin/realms/dh/users/kc-42")
		w.WriteHeader(http.StatusCreated)
	}}
	client := f.start(t)

	id, err := client.CreateUser(context.Background(), "ana@dh.com", "secret1")
	if err != nil || id != "kc-42" {
		t.Errorf("CreateUser() = %q, %v", id, err)
	}
}

func TestClient_CreateUser_NoLocation(t *testing.T) {
	f := &fakeKeycloak{admin: func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}}
	if _, err := f.start(t).CreateUser(context.Background(), "ana@dh.com", "secret1"); err == nil {
		t.Error("ожидается ошибка без Location")
	}
}

func TestClient_StatusErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
		msg    string
	}{
		{"email занят", http.StatusConflict, `{"errorMessage":"User exists with same email"}`, ErrUserExists, "same email"},
		{"нет пользователя", http.StatusNotFound, `{"error":"User not found"}`, ErrUserNotFound, "User not found"},
		{"политика паролей", http.StatusBadRequest, `{"errorMessage":"Password policy not met"}`, nil, "Password policy not met"},
		{"сбой Keycloak", http.StatusInternalServerError, `oops`, nil, "oops"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeKeycloak{admin: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}}
			err := f.start(t).ResetPassword(context.Background(), "u1", "newpass")

			var apiErr *APIError
			if !errors.As(err, &apiErr) || apiErr.Status != tt.status || apiErr.Op != "ResetPassword" {
				t.Fatalf("ожидается APIError %d, получено: %v", tt.status, err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("ожидается %v, получено: %v", tt.want, err)
			}
			if !strings.Contains(err.Error(), tt.msg) {
				t.Errorf("%q не содержит %q", err, tt.msg)
			}
		})
	}
}

func TestClient_RetriesAfterRevokedToken(t *testing.T) {
	var adminCalls atomic.Int32
	f := &fakeKeycloak{admin: func(w http.ResponseWriter, r *http.Request) {
		if adminCalls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodDelete || r.URL.Path != "/admin/realms/dh/users/u1" {
			t.Errorf("запрос: %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	}}
	client := f.start(t)

	if err := client.DeleteUser(context.Background(), "u1"); err != nil {
		t.Fatalf("DeleteUser() вернул ошибку: %v", err)
	}
	if f.tokenCalls.Load() != 2 || adminCalls.Load() != 2 {
		t.Errorf("токенов %d, вызовов API %d; ожидается 2 и 2", f.tokenCalls.Load(), adminCalls.Load())
	}
}

func TestClient_RetriesOnlyOnce(t *testing.T) {
	f := &fakeKeycloak{admin: func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}}
	err := f.start(t).DeleteUser(context.Background(), "u1")

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Errorf("ожидается APIError 401, получено: %v", err)
	}
}

func TestClient_CheckReady(t *testing.T) {
	var enabled atomic.Bool
	enabled.Store(true)
	f := &fakeKeycloak{admin: func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/admin/realms/dh" {
			t.Errorf("путь = %s", r.URL.Path)
		}
		writeJSON(w, RealmRepresentation{Realm: "dh", Enabled: enabled.Load()})
	}}
	client := f.start(t)
	ctx := context.Background()

	if status, msg := client.CheckReady(ctx); status != "ok" {
		t.Errorf("CheckReady() = %s: %s, хотели ok", status, msg)
	}
	enabled.Store(false)
	if status, _ := client.CheckReady(ctx); status != "degraded" {
		t.Errorf("CheckReady() = %s, хотели degraded", status)
	}
}

func TestClient_CheckReady_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client := New(srv.URL, "dh", "dh-simulator", "sa-secret", nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if status, _ := client.CheckReady(context.Background()); status != "fail" {
		t.Errorf("CheckReady() = %s, хотели fail", status)
	}
}
