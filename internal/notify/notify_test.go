package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/types"
)

type recordingSink struct {
	mu    sync.Mutex
	msgs  []Message
	err   error
	block chan struct{}
}

func (r *recordingSink) Name() string { return "recording" }

func (r *recordingSink) Send(ctx context.Context, msg Message) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return r.err
}

func (r *recordingSink) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.msgs {
		out = append(out, m.Text)
	}
	return out
}

func TestNotifierDeliversInOrder(t *testing.T) {
	good := &recordingSink{}
	failing := &recordingSink{err: errors.New("webhook down")}
	n := New([]Sink{failing, good}, Options{QueueSize: 8})

	n.Send("giftbot", "one")
	n.Send("giftbot", "two")
	require.NoError(t, n.Close(context.Background()))

	assert.Equal(t, []string{"one", "two"}, good.texts())
	assert.Equal(t, []string{"one", "two"}, failing.texts(), "errors are swallowed and delivery continues")

	n.Send("giftbot", "after close")
	assert.Len(t, good.texts(), 2)
}

func TestNotifierDropsWhenFull(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	n := New([]Sink{sink}, Options{QueueSize: 1})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			n.Send("giftbot", "burst")
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Send blocked on a full queue")
	}
	assert.Greater(t, n.Dropped(), int64(0))

	close(sink.block)
	require.NoError(t, n.Close(context.Background()))
}

func TestNilNotifier(t *testing.T) {
	var n *Notifier
	n.Send("giftbot", "ignored")
	assert.NoError(t, n.Close(context.Background()))
	assert.Zero(t, n.Dropped())
}

func TestParseWebhookURL(t *testing.T) {
	id, token, err := ParseWebhookURL("https://discord.com/api/webhooks/1234/abcDEF")
	require.NoError(t, err)
	assert.Equal(t, "1234", id)
	assert.Equal(t, "abcDEF", token)

	_, _, err = ParseWebhookURL("https://discord.com/api/channels/1234")
	assert.Error(t, err)
}

type fakeWebhook struct {
	id, token string
	params    *discordgo.WebhookParams
}

func (f *fakeWebhook) WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.id, f.token, f.params = webhookID, token, data
	return nil, nil
}

func TestDiscordSink(t *testing.T) {
	hook := &fakeWebhook{}
	sink := &DiscordSink{session: hook, webhookID: "1", token: "t"}

	require.NoError(t, sink.Send(context.Background(), Message{Identity: "giftbot", Text: "alice asked to send a slice to bob"}))
	assert.Equal(t, "1", hook.id)
	assert.Equal(t, "giftbot", hook.params.Username)
	assert.Equal(t, "alice asked to send a slice to bob", hook.params.Content)
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaSinkEnvelope(t *testing.T) {
	w := &fakeWriter{}
	sink := &KafkaSink{writer: w, sender: "giftbot"}

	require.NoError(t, sink.Send(context.Background(), Message{Identity: "giftbot", Text: "hi", TraceID: "tr-1"}))
	require.Len(t, w.msgs, 1)

	var env Envelope
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &env))
	assert.Equal(t, EnvelopeNotification, env.Type)
	assert.Equal(t, "tr-1", env.CorrelationID)
	assert.Equal(t, "giftbot", env.SenderID)
	assert.Equal(t, "hi", env.Payload.Text)
}

func TestWhatsAppSinkSendsToEveryRecipient(t *testing.T) {
	_, err := NewWhatsAppSink(WhatsAppConfig{})
	assert.Error(t, err)

	sink, err := NewWhatsAppSink(WhatsAppConfig{Recipients: []string{"111@s.whatsapp.net", "222@s.whatsapp.net"}})
	require.NoError(t, err)

	var got []string
	sink.sendFn = func(ctx context.Context, to types.JID, text string) error {
		got = append(got, to.User+"|"+text)
		if to.User == "222" {
			return errors.New("offline")
		}
		return nil
	}

	err = sink.Send(context.Background(), Message{Identity: "giftbot", Text: "out of PIZZA"})
	assert.Error(t, err)
	assert.Equal(t, []string{"111|giftbot: out of PIZZA", "222|giftbot: out of PIZZA"}, got)
}

func TestWhatsAppSinkNotStarted(t *testing.T) {
	sink, err := NewWhatsAppSink(WhatsAppConfig{Recipients: []string{"111@s.whatsapp.net"}})
	require.NoError(t, err)
	assert.Error(t, sink.Send(context.Background(), Message{Text: "x"}))
}

func TestWhatsAppPairingResult(t *testing.T) {
	assert.ErrorIs(t, pairingResult(nil), ErrNotPaired)

	jid := types.NewJID("4915112345678", types.DefaultUserServer)
	assert.NoError(t, pairingResult(&jid))
}
