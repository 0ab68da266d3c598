package browser

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/PanelGoat/internal/config"
	"github.com/IshaanNene/PanelGoat/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

const loginPage = `<html><head><title>Sign in</title></head><body>
<form action="/session" method="post">
  <input type="hidden" name="csrf" value="tok">
  <input name="username" placeholder="Username">
  <input type="password" name="password">
  <input type="checkbox" name="remember">
  <button type="submit" name="go" value="1">Login</button>
</form>
</body></html>`

func newPanelServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("sid"); err == nil && c.Value == "ok" {
			w.Write([]byte(`<html><head><title>Home</title></head><body><a href="/logout">Logout</a></body></html>`))
			return
		}
		w.Write([]byte(loginPage))
	})
	mux.HandleFunc("/session", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("username") != "admin" || r.PostForm.Get("password") != "secret" ||
			r.PostForm.Get("csrf") != "tok" || r.PostForm.Get("go") != "1" || r.PostForm.Has("remember") {
			http.Error(w, "bad credentials", http.StatusUnauthorized)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "ok", Path: "/"})
		http.Redirect(w, r, "/", http.StatusFound)
	})
	mux.HandleFunc("/compressed", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "br")
		bw := brotli.NewWriter(w)
		bw.Write([]byte(`<html><body><p id="msg">  brotli   body </p></body></html>`))
		bw.Close()
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func openStatic(t *testing.T) Page {
	t.Helper()
	cfg := config.DefaultConfig().Browser
	cfg.Driver = "static"
	d, err := NewDriver(&cfg, testLogger)
	require.NoError(t, err)
	assert.Equal(t, "static", d.Name())

	page, err := d.Open(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { page.Close() })
	return page
}

func TestStaticFormLogin(t *testing.T) {
	srv := newPanelServer(t)
	page := openStatic(t)
	ctx := context.Background()

	require.NoError(t, page.Navigate(ctx, srv.URL+"/", WaitNetworkIdle))
	title, err := page.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Sign in", title)

	user, err := page.WaitFor(ctx, CSS(`input[name="username"]`))
	require.NoError(t, err)
	require.NoError(t, user.Fill(ctx, "admin"))

	pass, err := page.WaitFor(ctx, CSS(`input[type="password"]`))
	require.NoError(t, err)
	require.NoError(t, pass.Fill(ctx, "secret"))

	submit, err := page.WaitFor(ctx, CSSText("button", "login"))
	require.NoError(t, err)
	require.NoError(t, submit.Click(ctx))

	_, err = page.WaitFor(ctx, CSS(`a[href*="logout"]`))
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/", page.URL())
}

func TestStaticBrotliBody(t *testing.T) {
	srv := newPanelServer(t)
	page := openStatic(t)
	ctx := context.Background()

	require.NoError(t, page.Navigate(ctx, srv.URL+"/compressed", WaitLoad))
	el, err := page.Query(ctx, "#msg")
	require.NoError(t, err)
	text, err := el.Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "brotli body", text)
}

func TestStaticLocators(t *testing.T) {
	doc := `<html><body>
<nav><a href="/home">Home</a><a class="nav" href="/analytics">View Analytics</a></nav>
<div><span>Total Accounts Created</span><span> 1,204 </span></div>
</body></html>`
	page, err := OpenDocument("https://panel.example/home", strings.NewReader(doc), testLogger)
	require.NoError(t, err)
	ctx := context.Background()

	el, err := page.WaitFor(ctx, XPath(`//span[normalize-space(text())="Total Accounts Created"]`))
	require.NoError(t, err)
	sib, ok, err := el.NextSiblingText(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, " 1,204 ", sib)

	el, err = page.WaitFor(ctx, CSSText("nav a", "analytics"))
	require.NoError(t, err)
	href, ok, err := el.Attribute(ctx, "href")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "/analytics", href)

	_, err = page.WaitFor(ctx, CSSText("nav a", "billing"))
	assert.True(t, errors.Is(err, types.ErrNotFound))

	_, err = page.WaitFor(ctx, XPath(`//*[`))
	assert.Error(t, err)

	all, err := page.QueryAll(ctx, "nav a")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStaticWaitForCancelled(t *testing.T) {
	page, err := OpenDocument("", strings.NewReader(`<p>x</p>`), testLogger)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	_, err = page.WaitFor(ctx, CSS("p"))
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestStaticFileURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.html")
	require.NoError(t, os.WriteFile(path, []byte(`<html><head><title>Saved</title></head></html>`), 0o644))

	page := openStatic(t)
	ctx := context.Background()
	require.NoError(t, page.Navigate(ctx, "file://"+path, WaitLoad))

	title, err := page.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Saved", title)
}

func TestNewDriverUnknown(t *testing.T) {
	cfg := config.DefaultConfig().Browser
	cfg.Driver = "selenium"
	_, err := NewDriver(&cfg, testLogger)
	assert.Error(t, err)
}

func TestLocatorString(t *testing.T) {
	assert.Equal(t, `css:a:has-text("Login")`, CSSText("a", "Login").String())
	assert.Equal(t, "xpath://span", XPath("//span").String())
	assert.Equal(t, "css:#id", Locator{Expr: "#id"}.String())
}
