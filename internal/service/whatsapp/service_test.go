package whatsapp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/farmtrace/internal/config"
	"github.com/mamadbah2/farmtrace/internal/domain/models"
	"github.com/mamadbah2/farmtrace/internal/service/commands"
	client "github.com/mamadbah2/farmtrace/pkg/clients/whatsapp"
)

type recordingClient struct {
	sent []client.SendTextMessageRequest
	err  error
}

func (c *recordingClient) SendTextMessage(_ context.Context, req client.SendTextMessageRequest) (*client.SendTextMessageResponse, error) {
	c.sent = append(c.sent, req)
	if c.err != nil {
		return nil, c.err
	}
	return &client.SendTextMessageResponse{}, nil
}

type stubDispatcher struct {
	reply string
	err   error
	got   []models.Command
}

func (d *stubDispatcher) HandleCommand(_ context.Context, cmd models.Command, _ string) (string, error) {
	d.got = append(d.got, cmd)
	return d.reply, d.err
}

func newTestService(d *stubDispatcher, c *recordingClient) *MetaWhatsAppService {
	cfg := config.WhatsAppConfig{VerifyToken: "secret", ManagerID: "2210000000"}
	return NewMetaWhatsAppService(cfg, c, d, nil)
}

func textPayload(from string, bodies ...string) models.WebhookPayload {
	var msgs []models.InboundMessage
	for i, body := range bodies {
		msgs = append(msgs, models.InboundMessage{
			From: from,
			ID:   string(rune('a' + i)),
			Type: "text",
			Text: &models.TextContent{Body: body},
		})
	}
	return models.WebhookPayload{Entry: []models.WebhookEntry{{
		Changes: []models.WebhookChange{{Value: models.WebhookValue{MessagingProduct: "whatsapp", Messages: msgs}}},
	}}}
}

func TestVerifyWebhookToken(t *testing.T) {
	svc := newTestService(&stubDispatcher{}, &recordingClient{})

	challenge, err := svc.VerifyWebhookToken("subscribe", "secret", "42")
	require.NoError(t, err)
	assert.Equal(t, "42", challenge)

	_, err = svc.VerifyWebhookToken("subscribe", "wrong", "42")
	assert.Error(t, err)
	_, err = svc.VerifyWebhookToken("unsubscribe", "secret", "42")
	assert.Error(t, err)
	_, err = svc.VerifyWebhookToken("", "", "")
	assert.Error(t, err)
}

func TestHandleWebhook_RepliesWithDispatcherOutput(t *testing.T) {
	d := &stubDispatcher{reply: "Lineage L1: 2 stages"}
	c := &recordingClient{}

	require.NoError(t, newTestService(d, c).HandleWebhook(context.Background(), textPayload("221777", "/cost L1")))

	require.Len(t, d.got, 1)
	assert.Equal(t, models.CommandCost, d.got[0].Type)
	require.Len(t, c.sent, 1)
	assert.Equal(t, client.SendTextMessageRequest{To: "221777", Body: "Lineage L1: 2 stages"}, c.sent[0])
}

func TestHandleWebhook_HelpOnBadCommand(t *testing.T) {
	c := &recordingClient{}
	svc := newTestService(&stubDispatcher{err: commands.ErrUnsupportedCommand}, c)

	require.NoError(t, svc.HandleWebhook(context.Background(), textPayload("1", "hello")))

	require.Len(t, c.sent, 1)
	assert.Equal(t, commands.HelpText, c.sent[0].Body)
}

func TestHandleWebhook_ApologisesOnFailure(t *testing.T) {
	c := &recordingClient{}
	svc := newTestService(&stubDispatcher{err: errors.New("db down")}, c)

	require.NoError(t, svc.HandleWebhook(context.Background(), textPayload("1", "/cost L1")))

	require.Len(t, c.sent, 1)
	assert.Contains(t, c.sent[0].Body, "could not be computed")
}

func TestHandleWebhook_ReturnsFirstError(t *testing.T) {
	sendErr := errors.New("meta unavailable")
	c := &recordingClient{err: sendErr}
	svc := newTestService(&stubDispatcher{reply: "ok"}, c)

	payload := textPayload("1", "/cost A", "/cost B")
	payload.Entry[0].Changes[0].Value.Messages = append(payload.Entry[0].Changes[0].Value.Messages, models.InboundMessage{ID: "empty"})

	err := svc.HandleWebhook(context.Background(), payload)

	assert.ErrorIs(t, err, sendErr)
	assert.Len(t, c.sent, 2)
}

func TestHandleWebhook_InteractiveReply(t *testing.T) {
	d := &stubDispatcher{reply: "ok"}
	svc := newTestService(d, &recordingClient{})

	payload := textPayload("1")
	payload.Entry[0].Changes[0].Value.Messages = []models.InboundMessage{{
		From:        "1",
		Type:        "interactive",
		Interactive: &models.InteractiveContent{Type: "button_reply", ButtonReply: &models.ReplyItem{ID: "/cost L9", Title: "Cost L9"}},
	}}

	require.NoError(t, svc.HandleWebhook(context.Background(), payload))
	require.Len(t, d.got, 1)
	assert.Equal(t, []string{"L9"}, d.got[0].Args)
}

func TestNotifyManager(t *testing.T) {
	c := &recordingClient{}
	svc := newTestService(&stubDispatcher{}, c)

	require.NoError(t, svc.NotifyManager(context.Background(), "run finished"))
	require.Len(t, c.sent, 1)
	assert.Equal(t, "2210000000", c.sent[0].To)

	noManager := NewMetaWhatsAppService(config.WhatsAppConfig{}, c, &stubDispatcher{}, nil)
	require.NoError(t, noManager.NotifyManager(context.Background(), "ignored"))
	assert.Len(t, c.sent, 1)
}
