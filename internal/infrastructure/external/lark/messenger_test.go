package lark

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeMessages struct {
	last *larkim.CreateMessageReq
	resp *larkim.CreateMessageResp
	err  error
}

func (f *fakeMessages) Create(ctx context.Context, req *larkim.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.CreateMessageResp, error) {
	f.last = req
	return f.resp, f.err
}

func okResp() *larkim.CreateMessageResp {
	id := "om_123"
	return &larkim.CreateMessageResp{Data: &larkim.CreateMessageRespData{MessageId: &id}}
}

func TestMessenger_SendText(t *testing.T) {
	fake := &fakeMessages{resp: okResp()}
	m := &Messenger{messages: fake, logger: zap.NewNop()}

	require.NoError(t, m.SendText(context.Background(), "ou_abc", "Demande \"DA-M-2025-0001\"\nà valider"))

	require.NotNil(t, fake.last)
	require.NotNil(t, fake.last.Body)
	assert.Equal(t, "ou_abc", *fake.last.Body.ReceiveId)
	assert.Equal(t, larkim.MsgTypeText, *fake.last.Body.MsgType)

	var content map[string]string
	require.NoError(t, json.Unmarshal([]byte(*fake.last.Body.Content), &content))
	assert.Equal(t, "Demande \"DA-M-2025-0001\"\nà valider", content["text"])
}

func TestMessenger_SendTextErrors(t *testing.T) {
	tests := []struct {
		name    string
		openID  string
		content string
		fake    *fakeMessages
	}{
		{"empty open id", "", "hello", &fakeMessages{resp: okResp()}},
		{"empty content", "ou_abc", "", &fakeMessages{resp: okResp()}},
		{"transport error", "ou_abc", "hello", &fakeMessages{err: errors.New("dial tcp: timeout")}},
		{"api failure", "ou_abc", "hello", &fakeMessages{resp: &larkim.CreateMessageResp{
			CodeError: larkcore.CodeError{Code: 230002, Msg: "bot not in chat"},
		}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Messenger{messages: tt.fake, logger: zap.NewNop()}
			assert.Error(t, m.SendText(context.Background(), tt.openID, tt.content))
		})
	}
}
