package lobby

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"ogwatch/lib/telemetry"

	"github.com/stretchr/testify/require"
)

func TestLoginPassword(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:lib/scrapers/lobby")
	defer cleanup()

	var gotForm map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/users", r.URL.Path)
		require.NoError(t, r.ParseForm())

		gotForm = map[string]string{}
		for k := range r.PostForm {
			gotForm[k] = r.PostForm.Get(k)
		}
		http.SetCookie(w, &http.Cookie{Name: "PHPSESSID", Value: "abc"})
	}))
	defer server.Close()

	client, err := NewClient(context.Background(), ClientOptions{BaseUrl: server.URL})
	require.NoError(t, err)

	err = client.LoginPassword(context.Background(), "a@example.com", "hunter2")
	require.NoError(t, err)

	require.Equal(t, map[string]string{
		"autologin":             "false",
		"language":              "en",
		"kid":                   "",
		"credentials[email]":    "a@example.com",
		"credentials[password]": "hunter2",
	}, gotForm)
}

func TestLoginPasswordRejected(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:lib/scrapers/lobby")
	defer cleanup()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client, err := NewClient(context.Background(), ClientOptions{BaseUrl: server.URL})
	require.NoError(t, err)

	err = client.LoginPassword(context.Background(), "a@example.com", "wrong")
	require.ErrorIs(t, err, ErrLoginFailed)
}

func TestAccounts(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:lib/scrapers/lobby")
	defer cleanup()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/users/me/accounts", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[
			{"id": 104361, "name": "Commander A", "server": {"number": 123, "language": "en"}},
			{"id": 104362, "name": "Commander B", "server": {"number": 7, "language": "de"}}
		]`)
	}))
	defer server.Close()

	client, err := NewClient(context.Background(), ClientOptions{BaseUrl: server.URL})
	require.NoError(t, err)

	accounts, err := client.Accounts(context.Background())
	require.NoError(t, err)

	// source order governs check order, it must survive decoding
	require.Equal(t, []Account{
		{Id: 104361, Name: "Commander A", Server: Server{Number: 123, Language: "en"}},
		{Id: 104362, Name: "Commander B", Server: Server{Number: 7, Language: "de"}},
	}, accounts)
}

func TestAccountsUnavailable(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:lib/scrapers/lobby")
	defer cleanup()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client, err := NewClient(context.Background(), ClientOptions{BaseUrl: server.URL})
	require.NoError(t, err)

	_, err = client.Accounts(context.Background())
	require.ErrorIs(t, err, ErrLobbyUnavailable)
}

func TestLoginLink(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:lib/scrapers/lobby")
	defer cleanup()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/users/me/loginLink", r.URL.Path)
		require.Equal(t, "104361", r.URL.Query().Get("id"))
		require.Equal(t, "123", r.URL.Query().Get("server[number]"))
		require.Equal(t, "en", r.URL.Query().Get("server[language]"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"url": "https://s123-en.example.com/game/index.php?token=xyz"}`)
	}))
	defer server.Close()

	client, err := NewClient(context.Background(), ClientOptions{BaseUrl: server.URL})
	require.NoError(t, err)

	link, err := client.LoginLink(context.Background(), Account{
		Id:     104361,
		Server: Server{Number: 123, Language: "en"},
	})
	require.NoError(t, err)
	require.Equal(t, "https://s123-en.example.com/game/index.php?token=xyz", link)
}

func TestLoginFacebook(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:lib/scrapers/lobby")
	defer cleanup()

	var fbFormPosted, tokenPosted bool

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/fb/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<form id="login_form" action="/fb/login/device-based/regular/login/" method="post">
				<input type="hidden" name="lsd" value="AVq93e" />
				<input type="hidden" name="jazoest" value="2898" />
				<input type="text" name="email" />
				<input type="password" name="pass" />
			</form>
		</body></html>`)
	})
	mux.HandleFunc("/fb/login/device-based/regular/login/", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "AVq93e", r.PostForm.Get("lsd"))
		require.Equal(t, "2898", r.PostForm.Get("jazoest"))
		require.Equal(t, "a@example.com", r.PostForm.Get("email"))
		require.Equal(t, "hunter2", r.PostForm.Get("pass"))
		fbFormPosted = true
	})
	mux.HandleFunc("/users", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "bridge-token", r.PostForm.Get("token"))
		require.Equal(t, "false", r.PostForm.Get("autologin"))
		tokenPosted = true
	})

	client, err := NewClient(context.Background(), ClientOptions{
		BaseUrl:         server.URL,
		FacebookBaseUrl: server.URL + "/fb/",
	})
	require.NoError(t, err)

	err = client.LoginFacebook(context.Background(), "a@example.com", "hunter2", "bridge-token")
	require.NoError(t, err)
	require.True(t, fbFormPosted)
	require.True(t, tokenPosted)
}

func TestLoginFacebookMissingForm(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:lib/scrapers/lobby")
	defer cleanup()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>nothing here</body></html>`)
	}))
	defer server.Close()

	client, err := NewClient(context.Background(), ClientOptions{
		BaseUrl:         server.URL,
		FacebookBaseUrl: server.URL + "/fb/",
	})
	require.NoError(t, err)

	err = client.LoginFacebook(context.Background(), "a@example.com", "hunter2", "bridge-token")
	require.Error(t, err)
}
