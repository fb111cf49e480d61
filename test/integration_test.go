package test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gorilla/websocket"
	"github.com/kelseyhightower/envconfig"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"telecare/auth"
	"telecare/domain"
	"telecare/domain/event"
	"telecare/internal"
	"telecare/moderation"
	"telecare/runtime"
	"telecare/services"
	"telecare/storage"
	"telecare/transport"
)

// testConfig keeps the knobs overridable from the environment when
// chasing flakes locally.
type testConfig struct {
	BufferSize      int           `default:"64"`
	SinkTimeout     time.Duration `default:"1s"`
	CallIdleTimeout time.Duration `default:"1m"`
	WaitTimeout     time.Duration `default:"2s"`
}

type stack struct {
	server   *httptest.Server
	verifier *auth.Verifier
	config   testConfig
}

func newStack(t *testing.T) *stack {
	t.Helper()
	req := require.New(t)

	var config testConfig
	req.NoError(envconfig.Process("TEST", &config))

	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	log := internal.GetLoggerFromString("error")
	filter, err := moderation.NewFilter([]string{"badword"}, '*')
	req.NoError(err)

	registry := runtime.NewRegistry(log, 0)
	store := storage.NewConversationRepository(db, log, lo.ToPtr(100))
	router := runtime.NewRouter(log, store, registry, filter)
	fanout := runtime.NewFanout(log, registry)
	relay := runtime.NewRelay(log, registry, config.CallIdleTimeout)
	registry.AddPresenceListener(relay)

	service := services.NewCoordinatorService(log, registry, router, fanout, relay)
	verifier := auth.NewVerifier("integration-test-secret")
	server := transport.NewServer(log, service, verifier, nil,
		config.BufferSize, config.SinkTimeout, 1<<20)

	mux := http.NewServeMux()
	server.Routes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return &stack{server: ts, verifier: verifier, config: config}
}

type wsClient struct {
	t        *testing.T
	conn     *websocket.Conn
	inbox    chan transport.Envelope
	deadline time.Duration
}

func (s *stack) connect(t *testing.T, identity domain.Identity) *wsClient {
	t.Helper()
	req := require.New(t)

	token, err := s.verifier.GenerateToken(identity, time.Hour)
	req.NoError(err)

	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	req.NoError(err)
	t.Cleanup(func() { _ = conn.Close() })

	client := &wsClient{
		t:        t,
		conn:     conn,
		inbox:    make(chan transport.Envelope, 64),
		deadline: s.config.WaitTimeout,
	}
	go func() {
		for {
			var env transport.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				close(client.inbox)
				return
			}
			client.inbox <- env
		}
	}()
	return client
}

func (c *wsClient) send(eventName string, payload any) {
	c.t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteJSON(transport.Envelope{Event: eventName, Data: data}))
}

// expect waits for the named event, skipping unrelated pushes.
func (c *wsClient) expect(eventName string) json.RawMessage {
	c.t.Helper()
	timeout := time.After(c.deadline)
	for {
		select {
		case env, ok := <-c.inbox:
			if !ok {
				require.Fail(c.t, "connection closed while waiting", "event %s", eventName)
				return nil
			}
			if env.Event == eventName {
				return env.Data
			}
		case <-timeout:
			require.Fail(c.t, "timeout waiting for event", "event %s", eventName)
			return nil
		}
	}
}

func Test_ChatScenario(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	patient := domain.Identity{Role: domain.RolePatient, ID: "alice"}
	provider := domain.Identity{Role: domain.RoleProvider, ID: "dr-bob"}

	conversation := string(domain.ConversationBetween(patient, provider))

	// Given both parties connect, they are seeded with their unread count
	alice := s.connect(t, patient)
	bob := s.connect(t, provider)
	alice.expect("notificationCountUpdate")
	bob.expect("notificationCountUpdate")

	// When bob opens the conversation, he learns alice is online
	bob.send(transport.EventJoin, transport.JoinPayload{ConversationID: conversation})
	var presence event.Presence
	req.NoError(json.Unmarshal(bob.expect("presence"), &presence))
	req.True(presence.Online)

	// When alice sends a message containing a censored word
	alice.send(transport.EventSendMessage, transport.SendMessagePayload{
		ConversationID: conversation,
		Kind:           "text",
		Payload:        "hello badword",
	})

	// Then bob receives it censored, with the first sequence number
	var received event.MessageReceived
	req.NoError(json.Unmarshal(bob.expect("receiveMessage"), &received))
	req.Equal("hello *******", received.Message.Payload)
	req.Equal(uint64(1), received.Message.SentSeq)

	// And alice sees bob's delivery receipt
	var delivered event.Delivered
	req.NoError(json.Unmarshal(alice.expect("delivered"), &delivered))
	req.Equal(provider, delivered.Identity)

	// When bob marks the conversation read, alice sees the batch
	bob.send(transport.EventRead, transport.ReadPayload{ConversationID: conversation})
	var readBy event.ReadBy
	req.NoError(json.Unmarshal(alice.expect("readBy"), &readBy))
	req.Equal(provider, readBy.Identity)
	req.Equal([]uint64{1}, readBy.Seqs)

	// When bob requests history, the page holds the censored message
	bob.send(transport.EventHistory, transport.HistoryPayload{ConversationID: conversation})
	var history event.History
	req.NoError(json.Unmarshal(bob.expect("history"), &history))
	req.Len(history.Messages, 1)
	req.Equal("hello *******", history.Messages[0].Payload)
}

func Test_CallScenario(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	patient := domain.Identity{Role: domain.RolePatient, ID: "alice"}
	provider := domain.Identity{Role: domain.RoleProvider, ID: "dr-bob"}
	alice := s.connect(t, patient)
	bob := s.connect(t, provider)

	// Given alice waits in the appointment room
	alice.send(transport.EventJoinVideoRoom, transport.JoinVideoRoomPayload{AppointmentID: "apt-42"})
	// Nothing is pushed back on a first join, so give the server time to
	// process it before the second join races it on another connection.
	time.Sleep(100 * time.Millisecond)

	// When bob joins, alice is told a peer arrived
	bob.send(transport.EventJoinVideoRoom, transport.JoinVideoRoomPayload{AppointmentID: "apt-42"})
	var joined event.PeerJoined
	req.NoError(json.Unmarshal(alice.expect("other-user-joined"), &joined))
	req.Equal(provider, joined.Identity)

	// When alice sends an offer, bob receives the payload verbatim
	offer := json.RawMessage(`{"sdp":"v=0 o=- 42","type":"offer"}`)
	alice.send(transport.EventWebrtcOffer, transport.SignalPayload{
		AppointmentID: "apt-42",
		Payload:       offer,
	})
	var signal event.CallSignal
	req.NoError(json.Unmarshal(bob.expect("webrtc-offer"), &signal))
	req.JSONEq(string(offer), string(signal.Payload))

	// When bob hangs up, alice gets exactly one end-call
	bob.send(transport.EventEndCall, transport.EndCallPayload{AppointmentID: "apt-42"})
	alice.expect("end-call")
}

func Test_CallRoomCapacity(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	patient := domain.Identity{Role: domain.RolePatient, ID: "alice"}
	provider := domain.Identity{Role: domain.RoleProvider, ID: "dr-bob"}
	admin := domain.Identity{Role: domain.RoleAdmin, ID: "eve"}
	alice := s.connect(t, patient)
	bob := s.connect(t, provider)
	eve := s.connect(t, admin)

	alice.send(transport.EventJoinVideoRoom, transport.JoinVideoRoomPayload{AppointmentID: "apt-42"})
	// Nothing is pushed back on a first join, so give the server time to
	// process it before the second join races it on another connection.
	time.Sleep(100 * time.Millisecond)
	bob.send(transport.EventJoinVideoRoom, transport.JoinVideoRoomPayload{AppointmentID: "apt-42"})
	alice.expect("other-user-joined")

	// When a third identity tries to join
	eve.send(transport.EventJoinVideoRoom, transport.JoinVideoRoomPayload{AppointmentID: "apt-42"})

	// Then only the intruder sees the rejection
	var wireErr event.WireError
	req.NoError(json.Unmarshal(eve.expect("error"), &wireErr))
	req.Equal("capacity-exceeded", wireErr.Code)
}

func Test_NotificationEndpoint(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	provider := domain.Identity{Role: domain.RoleProvider, ID: "dr-bob"}
	bob := s.connect(t, provider)
	bob.expect("notificationCountUpdate")

	// When the platform posts a notification for bob
	body, err := json.Marshal(transport.NotifyRequest{
		Role:    "provider",
		ID:      "dr-bob",
		Title:   "New appointment",
		Message: "Tomorrow at 9am",
	})
	req.NoError(err)
	resp, err := http.Post(s.server.URL+"/internal/notifications", "application/json", bytes.NewReader(body))
	req.NoError(err)
	req.Equal(http.StatusAccepted, resp.StatusCode)
	req.NoError(resp.Body.Close())

	// Then bob's connection gets the pass-through and the new count
	var notification event.NewNotification
	req.NoError(json.Unmarshal(bob.expect("newNotification"), &notification))
	req.Equal("New appointment", notification.Title)

	var count event.NotificationCount
	req.NoError(json.Unmarshal(bob.expect("notificationCountUpdate"), &count))
	req.Equal(1, count.UnreadCount)
}

func Test_RejectsUnauthenticatedHandshake(t *testing.T) {
	req := require.New(t)
	s := newStack(t)

	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)

	req.Error(err)
	req.Equal(http.StatusUnauthorized, resp.StatusCode)
}
