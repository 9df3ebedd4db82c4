package notifier

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hookgate/pkg/models"
	"hookgate/pkg/retry"
)

func newTestTelegramChannel(t *testing.T, apiURL, token string, client *http.Client) *TelegramChannel {
	t.Helper()
	ch, err := NewTelegramChannel(apiURL, token, client)
	require.NoError(t, err)
	return ch
}

func TestTelegramChannelDeliver(t *testing.T) {
	var path, chatID, parseMode, text string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		chatID = r.FormValue("chat_id")
		parseMode = r.FormValue("parse_mode")
		text = r.FormValue("text")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	}))
	defer srv.Close()

	ch := newTestTelegramChannel(t, srv.URL, "123:abc", srv.Client())
	assert.Equal(t, "telegram", ch.Name())

	err := ch.Deliver(context.Background(), models.NotificationTask{
		Recipient: "777",
		Template:  TemplatePaymentSuccess,
		Data:      map[string]interface{}{"order_id": "ord_<1>"},
	})
	require.NoError(t, err)

	assert.Equal(t, "/bot123:abc/sendMessage", path)
	assert.Equal(t, "777", chatID)
	assert.Equal(t, "HTML", parseMode)
	assert.Contains(t, text, "ord_&lt;1&gt;")
}

func TestTelegramChannelClassifiesFailures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		permanent bool
		contains  string
	}{
		{name: "server error", status: http.StatusBadGateway, body: `{"ok":false,"error_code":502,"description":"Bad Gateway"}`, permanent: false},
		{name: "html error page", status: http.StatusBadGateway, body: `<html>bad gateway</html>`, permanent: false},
		{
			name:      "flood control",
			status:    http.StatusTooManyRequests,
			body:      `{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 3","parameters":{"retry_after":3}}`,
			permanent: false,
			contains:  "retry after 3s",
		},
		{name: "chat not found", status: http.StatusBadRequest, body: `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`, permanent: true},
		{
			name:      "chat migrated",
			status:    http.StatusBadRequest,
			body:      `{"ok":false,"error_code":400,"description":"Bad Request: group chat was upgraded to a supergroup chat","parameters":{"migrate_to_chat_id":-100123}}`,
			permanent: true,
			contains:  "-100123",
		},
		{name: "bad token", status: http.StatusUnauthorized, body: `{"ok":false,"error_code":401,"description":"Unauthorized"}`, permanent: true},
		{name: "bot blocked", status: http.StatusForbidden, body: `{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`, permanent: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			ch := newTestTelegramChannel(t, srv.URL, "t", srv.Client())
			err := ch.Deliver(context.Background(), models.NotificationTask{Recipient: "1", Message: "hi"})
			require.Error(t, err)
			assert.Equal(t, tt.permanent, retry.IsPermanent(err))
			if tt.contains != "" {
				assert.Contains(t, err.Error(), tt.contains)
			}
		})
	}
}

func TestTelegramChannelNetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	ch := newTestTelegramChannel(t, url, "secret-token", nil)
	err := ch.Deliver(context.Background(), models.NotificationTask{Recipient: "1", Message: "hi"})
	require.Error(t, err)
	assert.False(t, retry.IsPermanent(err))
	assert.NotContains(t, err.Error(), "secret-token")
}

func TestTelegramChannelRejectsBadTask(t *testing.T) {
	ch := newTestTelegramChannel(t, "http://127.0.0.1:1", "t", nil)

	err := ch.Deliver(context.Background(), models.NotificationTask{Message: "hi"})
	assert.True(t, retry.IsPermanent(err), "empty recipient")

	err = ch.Deliver(context.Background(), models.NotificationTask{Recipient: "1", Template: "unknown"})
	assert.True(t, retry.IsPermanent(err), "unknown template")
}
