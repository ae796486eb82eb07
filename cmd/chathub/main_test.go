// ABOUTME: Tests for the chathub CLI commands
// ABOUTME: Runs chat, history and init through cobra against a fake bootstrap endpoint and hub

package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/2389/chathub/internal/chathub/hubtest"
	"github.com/2389/chathub/internal/config"
)

func init() {
	color.NoColor = true
}

func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

// fakeService starts a bootstrap endpoint and a hub that answers every
// invocation with "echo: <text>" streamed in two deltas.
func fakeService(t *testing.T) (bootURL, hubURL string) {
	t.Helper()
	boot := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"conversationSignature":"sig","conversationId":"conv-cli","clientId":"cid","result":{"value":"Success"}}`))
	}))
	t.Cleanup(boot.Close)

	hub := hubtest.New(t, hubtest.Options{OnInvocation: func(c *hubtest.Conn, inv gjson.Result) {
		reply := "echo: " + inv.Get("arguments.0.message.text").String()
		_ = c.Send(
			fmt.Sprintf(`{"type":1,"arguments":[{"messages":[{"author":"bot","text":%q}]}]}`, reply[:5]),
			fmt.Sprintf(`{"type":1,"arguments":[{"messages":[{"author":"bot","text":%q}]}]}`, reply),
			fmt.Sprintf(`{"type":2,"item":{"messages":[{"author":"bot","text":%q}]}}`, reply),
		)
	}})
	return boot.URL, hub.URL
}

func writeTestConfig(t *testing.T, bootURL, hubURL string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`
service:
  host: %q
  socket_url: %q
  user_token: "tok"
chat:
  conversation_key: "cli"
cache:
  backend: "sqlite"
  path: %q
logging:
  level: "error"
`, bootURL, hubURL, filepath.Join(dir, "cache.db"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestChatThenHistory(t *testing.T) {
	bootURL, hubURL := fakeService(t)
	cfgPath := writeTestConfig(t, bootURL, hubURL)

	out, _, err := run(t, "", "--config", cfgPath, "chat", "hello", "world")
	require.NoError(t, err)
	assert.Equal(t, "echo: hello world\n", out)

	out, _, err = run(t, "", "--config", cfgPath, "history")
	require.NoError(t, err)
	assert.Equal(t, "Human B: hello world\nSydney: echo: hello world\n", out)
}

func TestChat_HTML(t *testing.T) {
	bootURL, hubURL := fakeService(t)
	cfgPath := writeTestConfig(t, bootURL, hubURL)

	out, _, err := run(t, "", "--config", cfgPath, "chat", "--html", "**bold**")
	require.NoError(t, err)
	assert.Equal(t, "<p>echo: <strong>bold</strong></p>\n", out)
}

func TestChat_RequiresCredential(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("service:\n  host: \"http://127.0.0.1:1\"\n"), 0o600))

	_, _, err := run(t, "", "--config", path, "chat", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user_token")
}

func TestRepl_CarriesConversation(t *testing.T) {
	bootURL, hubURL := fakeService(t)
	cfgPath := writeTestConfig(t, bootURL, hubURL)

	out, _, err := run(t, "first\n\nsecond\n/exit\nignored\n", "--config", cfgPath, "repl")
	require.NoError(t, err)
	assert.Equal(t, "echo: first\necho: second\n", out)

	out, _, err = run(t, "", "--config", cfgPath, "history")
	require.NoError(t, err)
	assert.Equal(t, "Human B: first\nSydney: echo: first\nHuman B: second\nSydney: echo: second\n", out)
}

func TestHistory_Empty(t *testing.T) {
	bootURL, hubURL := fakeService(t)
	cfgPath := writeTestConfig(t, bootURL, hubURL)

	out, _, err := run(t, "", "--config", cfgPath, "history", "--key", "never-used")
	require.NoError(t, err)
	assert.Equal(t, "(no messages)\n", out)
}

func TestInit_WritesLoadableConfig(t *testing.T) {
	for _, name := range []string{"config.yaml", "config.toml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)

			out, _, err := run(t, "", "--config", path, "init", "--token", "abc")
			require.NoError(t, err)
			assert.Contains(t, out, "Wrote "+path)

			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

			cfg, err := config.Load(path)
			require.NoError(t, err)
			assert.Equal(t, "abc", cfg.Service.UserToken)
			assert.Equal(t, config.DefaultSocketURL, cfg.Service.SocketURL)

			_, _, err = run(t, "", "--config", path, "init")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "already exists")

			_, _, err = run(t, "", "--config", path, "init", "--force")
			require.NoError(t, err)
		})
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("CHATHUB_CONFIG", "/tmp/explicit.yaml")
	assert.Equal(t, "/tmp/explicit.yaml", getConfigPath())

	t.Setenv("CHATHUB_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	assert.Equal(t, filepath.Join("/xdg", "chathub", "config.yaml"), getConfigPath())
}

func TestRenderHTML(t *testing.T) {
	html, err := renderHTML("# Title\n\n- a\n- b\n\n~~gone~~")
	require.NoError(t, err)
	assert.Contains(t, html, "<h1>Title</h1>")
	assert.Contains(t, html, "<li>a</li>")
	assert.Contains(t, html, "<del>gone</del>")
}
