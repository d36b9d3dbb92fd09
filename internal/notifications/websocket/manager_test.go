package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"verdant-vault/vault-portal-backend/internal/ledger"
)

func dialTestClient(t *testing.T, m *Manager) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := m.HandleConnection(w, r, "0xTester")
		require.NoError(t, err)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestRelayDeliversLedgerEvents(t *testing.T) {
	m := NewManager(zap.NewNop())
	defer m.Stop()
	conn := dialTestClient(t, m)

	require.Eventually(t, func() bool { return m.ConnectionCount() == 1 },
		time.Second, 10*time.Millisecond)

	m.Relay(ledger.Event{
		Name:       ledger.EventInvestmentMade,
		CampaignID: 7,
		Actor:      "0xInvestor",
		Amount:     40,
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))

	assert.Equal(t, string(ledger.EventInvestmentMade), msg.Type)
	assert.Equal(t, uint64(7), msg.CampaignID)
	assert.Equal(t, uint64(40), msg.Event.Amount)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestDisconnectUnregistersClient(t *testing.T) {
	m := NewManager(zap.NewNop())
	defer m.Stop()
	conn := dialTestClient(t, m)

	require.Eventually(t, func() bool { return m.ConnectionCount() == 1 },
		time.Second, 10*time.Millisecond)

	conn.Close()

	assert.Eventually(t, func() bool { return m.ConnectionCount() == 0 },
		2*time.Second, 10*time.Millisecond)
}
