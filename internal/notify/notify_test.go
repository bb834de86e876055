package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"goodwill_sniper/internal/config"
	"goodwill_sniper/internal/logbus"
)

type recorder struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (r *recorder) Notify(_ context.Context, m Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
	return r.err
}

func TestMulti_FansOutAndJoinsErrors(t *testing.T) {
	a := &recorder{}
	b := &recorder{err: errors.New("b down")}
	c := &recorder{err: errors.New("c down")}

	err := Multi{a, nil, b, c}.Notify(context.Background(), Message{Kind: KindAlert, Title: "Lamp"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b down")
	assert.Contains(t, err.Error(), "c down")
	assert.Len(t, a.msgs, 1)
	assert.Len(t, c.msgs, 1)

	assert.NoError(t, Multi{a}.Notify(context.Background(), Message{}))
}

func TestBusNotifier(t *testing.T) {
	bus := logbus.New(10)
	defer bus.Close()

	require.NoError(t, BusNotifier{Bus: bus}.Notify(context.Background(), Message{Kind: KindError, Title: "Bid failed", Body: "timeout"}))
	msgs := bus.Snapshot()
	require.Len(t, msgs, 2)
	assert.Equal(t, "notify", msgs[0].Type)
	logData, ok := msgs[1].Data.(logbus.LogData)
	require.True(t, ok)
	assert.Equal(t, "error", logData.Level)
	assert.Equal(t, "Bid failed - timeout", logData.Msg)
}

func TestGotifyNotifier(t *testing.T) {
	var got gotifyMessage
	var token string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/message", r.URL.Path)
		token = r.URL.Query().Get("token")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":1}`))
	}))
	defer srv.Close()

	g := NewGotifyNotifier(config.GotifyConfig{URL: srv.URL + "/", Token: "app-token", Priority: 5})
	require.NoError(t, g.Notify(context.Background(), Message{Kind: KindBid, Title: "Bid placed", Body: "Lamp for 50.00"}))
	assert.Equal(t, "app-token", token)
	assert.Equal(t, gotifyMessage{Title: "Bid placed", Message: "Lamp for 50.00", Priority: 6}, got)

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer down.Close()
	bad := NewGotifyNotifier(config.GotifyConfig{URL: down.URL, Token: "x"})
	assert.Error(t, bad.Notify(context.Background(), Message{Title: "x"}))
}

func TestEmailNotifier_BatchesUntilClose(t *testing.T) {
	var (
		mu   sync.Mutex
		sent []*gomail.Message
	)
	window := 600
	n := newEmailNotifier(config.EmailConfig{Username: "me@example.com", SummarySeconds: &window}, nil, func(m *gomail.Message) error {
		mu.Lock()
		defer mu.Unlock()
		sent = append(sent, m)
		return nil
	})

	at := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	require.NoError(t, n.Notify(context.Background(), Message{Kind: KindAlert, Title: "Time alert", Body: "Lamp ending in 10m0s", At: at}))
	require.NoError(t, n.Notify(context.Background(), Message{Kind: KindBid, Title: "Bid placed", Body: "Lamp for 50.00", At: at.Add(time.Second)}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, n.Close(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"Goodwill sniper: 2 updates, 1 bids"}, sent[0].GetHeader("Subject"))
	assert.Equal(t, []string{"me@example.com"}, sent[0].GetHeader("To"))

	var buf bytes.Buffer
	_, err := sent[0].WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Lamp ending in 10m0s")
}

func TestEmailNotifier_ImmediateWithoutWindow(t *testing.T) {
	done := make(chan *gomail.Message, 1)
	zero := 0
	n := newEmailNotifier(config.EmailConfig{Username: "me@example.com", To: "you@example.com", SummarySeconds: &zero}, nil, func(m *gomail.Message) error {
		done <- m
		return nil
	})
	defer n.Close(context.Background())

	require.NoError(t, n.Notify(context.Background(), Message{Kind: KindAlert, Title: "Time alert"}))
	select {
	case m := <-done:
		assert.Equal(t, []string{"Time alert"}, m.GetHeader("Subject"))
		assert.Equal(t, []string{"you@example.com"}, m.GetHeader("To"))
	case <-time.After(5 * time.Second):
		t.Fatal("digest not sent")
	}
}

func TestNewEmailNotifier_Validates(t *testing.T) {
	_, err := NewEmailNotifier(config.EmailConfig{Enabled: true}, nil)
	require.Error(t, err)
	_, err = NewEmailNotifier(config.EmailConfig{Enabled: true, Username: "me@example.com"}, nil)
	require.Error(t, err)
	_, err = NewEmailNotifier(config.EmailConfig{Enabled: true, Username: "me@example.com", Password: "pw", To: "not an address"}, nil)
	require.Error(t, err)
}

func TestSMTPConfigForEmail(t *testing.T) {
	host, port, ssl, err := smtpConfigForEmail("me@gmail.com")
	require.NoError(t, err)
	assert.Equal(t, "smtp.gmail.com", host)
	assert.Equal(t, 587, port)
	assert.False(t, ssl)

	host, port, ssl, err = smtpConfigForEmail("me@example.org")
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.org", host)
	assert.Equal(t, 465, port)
	assert.True(t, ssl)

	_, _, _, err = smtpConfigForEmail("nobody")
	assert.Error(t, err)
}
