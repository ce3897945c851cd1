package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/gatechat/internal/gateway/gatewaytest"
	"github.com/tOgg1/gatechat/internal/models"
	"github.com/tOgg1/gatechat/internal/testutil"
)

func newTestGateway(t *testing.T) *gatewaytest.Server {
	t.Helper()
	srv, _ := testutil.Gateway(t)
	srv.Token = "secret"

	var msgs []models.RawMessage
	for i := 1; i <= 12; i++ {
		msgs = append(msgs, models.RawMessage{
			ID:        fmt.Sprintf("m%d", i),
			Body:      fmt.Sprintf("mensagem %d", i),
			Timestamp: 1770000000 + int64(i),
			Status:    "delivered",
		})
	}
	srv.AddChat("c1", msgs...)
	srv.AddChat("c2", models.RawMessage{ID: "x1", Body: "oi", Timestamp: 1770000000})

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("GATECHAT_GATEWAY_BASE_URL", srv.URL())
	t.Setenv("GATECHAT_GATEWAY_TOKEN", srv.Token)
	t.Setenv("GATECHAT_GLOBAL_DATA_DIR", filepath.Join(home, "data"))
	t.Setenv("GATECHAT_GLOBAL_CONFIG_DIR", filepath.Join(home, "config"))
	t.Setenv("GATECHAT_LOGGING_LEVEL", "error")
	return srv
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd("test")
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestLogPrintsInitialWindow(t *testing.T) {
	newTestGateway(t)

	out, err := run(t, "", "log", "c1")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 6)
	require.True(t, strings.HasPrefix(lines[0], "ID"))
	require.Contains(t, lines[1], "m8")
	require.Contains(t, lines[5], "mensagem 12")
	require.Contains(t, lines[5], "text")
}

func TestLogLimitExpandsAndTranslates(t *testing.T) {
	newTestGateway(t)

	out, err := run(t, "", "log", "c1", "-n", "7", "--lang", "en", "--json")
	require.NoError(t, err)
	var msgs []struct {
		ID          string `json:"id"`
		DisplayBody string
		Translated  bool
	}
	require.NoError(t, json.Unmarshal([]byte(out), &msgs))
	require.Len(t, msgs, 7)
	require.Equal(t, "m6", msgs[0].ID)
	require.Equal(t, "[en] mensagem 12", msgs[6].DisplayBody)
	require.True(t, msgs[6].Translated)
}

func TestLogUnknownChatFails(t *testing.T) {
	newTestGateway(t)
	_, err := run(t, "", "log", "missing")
	require.Error(t, err)
}

func TestSendReplyPrintsID(t *testing.T) {
	srv := newTestGateway(t)

	out, err := run(t, "", "send", "c1", "bom dia", "--reply-to", "m3")
	require.NoError(t, err)
	id := strings.TrimSpace(out)
	require.NotEmpty(t, id)

	msgs := srv.Messages("c1")
	last := msgs[len(msgs)-1]
	require.Equal(t, id, last.ID)
	require.Equal(t, "bom dia", last.Body)
	require.Equal(t, "m3", last.ReplyTo)
	require.True(t, last.FromMe)
}

func TestSendReadsPipedStdin(t *testing.T) {
	srv := newTestGateway(t)

	_, err := run(t, "linha do stdin\n", "send", "c2")
	require.NoError(t, err)
	msgs := srv.Messages("c2")
	require.Equal(t, "linha do stdin", msgs[len(msgs)-1].Body)
}

func TestSendRequiresBody(t *testing.T) {
	newTestGateway(t)
	_, err := run(t, "", "send", "c2")
	require.ErrorContains(t, err, "message body is required")
}

func TestSendAttachment(t *testing.T) {
	srv := newTestGateway(t)
	path := filepath.Join(t.TempDir(), "nota.txt")
	require.NoError(t, os.WriteFile(path, []byte("conteúdo"), 0o644))

	out, err := run(t, "", "send", "c2", "--file", path, "--json")
	require.NoError(t, err)
	var sent models.Message
	require.NoError(t, json.Unmarshal([]byte(out), &sent))
	require.NotNil(t, sent.Media)
	require.Equal(t, models.RenderDocument, sent.RenderKind)

	data, ok := srv.Upload(sent.Media.URL)
	require.True(t, ok)
	require.Equal(t, "conteúdo", string(data))
}

func TestStarAndUnstar(t *testing.T) {
	srv := newTestGateway(t)

	out, err := run(t, "", "star", "c1", "m4")
	require.NoError(t, err)
	require.Equal(t, "m4 confirmed\n", out)
	require.Equal(t, []string{"m4"}, srv.StarredIDs("c1"))

	_, err = run(t, "", "star", "c1", "m4", "--off")
	require.NoError(t, err)
	require.Empty(t, srv.StarredIDs("c1"))
}

func TestStarRollbackExitsNonZero(t *testing.T) {
	srv := newTestGateway(t)
	srv.Fail("POST", "/api/messages/star", gatewaytest.Failure{Status: 500})

	out, err := run(t, "", "star", "c1", "m4", "--json")
	require.Error(t, err)
	require.Equal(t, 1, ExitCode(err))

	var payload mutationOutput
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	require.Equal(t, models.IntentRolledBack, payload.Status)
	require.NotNil(t, payload.Starred)
	require.False(t, *payload.Starred)
}

func TestStarUnknownMessage(t *testing.T) {
	newTestGateway(t)
	_, err := run(t, "", "star", "c1", "nope")
	require.ErrorContains(t, err, "nope")
}

func TestEditOwnMessage(t *testing.T) {
	srv := newTestGateway(t)
	out, err := run(t, "", "send", "c2", "rascunho")
	require.NoError(t, err)
	id := strings.TrimSpace(out)

	out, err = run(t, "", "edit", "c2", id, "versão final")
	require.NoError(t, err)
	require.Equal(t, id+" confirmed\n", out)
	msgs := srv.Messages("c2")
	require.Equal(t, "versão final", msgs[len(msgs)-1].Body)

	_, err = run(t, "", "edit", "c2", "x1", "não é meu")
	require.Error(t, err)
}

func TestTranslateCommand(t *testing.T) {
	newTestGateway(t)
	out, err := run(t, "", "translate", "bom", "dia", "--to", "en")
	require.NoError(t, err)
	require.Equal(t, "[en] bom dia\n", out)

	_, err = run(t, "", "translate", "bom")
	require.ErrorContains(t, err, "--to is required")
}

func TestChatsListsGatewayChats(t *testing.T) {
	newTestGateway(t)
	_, err := run(t, "", "star", "c1", "m1")
	require.NoError(t, err)

	out, err := run(t, "", "chats", "--json")
	require.NoError(t, err)
	var chats []chatSummary
	require.NoError(t, json.Unmarshal([]byte(out), &chats))
	require.Len(t, chats, 2)
	require.Equal(t, "c1", chats[0].ChatID)
	require.Equal(t, 1, chats[0].LocalStarred)
	require.True(t, chats[0].LastOpened)
}

func TestConfigInitAndShow(t *testing.T) {
	newTestGateway(t)
	path := filepath.Join(t.TempDir(), "config.yaml")

	out, err := run(t, "", "config", "init", "--path", path)
	require.NoError(t, err)
	require.Equal(t, path+"\n", out)

	_, err = run(t, "", "config", "init", "--path", path)
	require.ErrorContains(t, err, "--force")

	out, err = run(t, "", "--config", path, "config", "show")
	require.NoError(t, err)
	require.Contains(t, out, "base_url:")
	require.Contains(t, out, "********")
	require.NotContains(t, out, "secret")

	out, err = run(t, "", "--config", path, "config", "show", "--secrets")
	require.NoError(t, err)
	require.Contains(t, out, "secret")
}

func TestRootNeedsTerminal(t *testing.T) {
	newTestGateway(t)
	_, err := run(t, "", "c1")
	require.Error(t, err)
	require.Equal(t, 2, ExitCode(err))
}

func TestDemoGateway(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GATECHAT_LOGGING_LEVEL", "error")

	out, err := run(t, "", "--demo", "log", "feira@c.us", "--json")
	require.NoError(t, err)
	var msgs []models.Message
	require.NoError(t, json.Unmarshal([]byte(out), &msgs))
	require.Len(t, msgs, 5)

	kinds := make(map[models.RenderKind]bool)
	for _, m := range msgs {
		kinds[m.RenderKind] = true
	}
	require.True(t, kinds[models.RenderPoll])
	require.True(t, kinds[models.RenderImage])
	require.True(t, kinds[models.RenderAudio])
}

func TestWriteTableAlignsWithANSI(t *testing.T) {
	var buf bytes.Buffer
	rows := [][]string{
		{"m1", "alpha", "1"},
		{"\x1b[33mm22\x1b[0m", "beta", "22"},
	}
	require.NoError(t, writeTable(&buf, []string{"ID", "BODY", "N"}, rows))
	want := "" +
		"ID   BODY   N\n" +
		"m1   alpha  1\n" +
		"m22  beta   22\n"
	require.Equal(t, want, stripANSI(buf.String()))
}
