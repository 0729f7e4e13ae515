package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name string
		data string
		want any
	}{
		{
			name: "authenticate",
			data: `{"type":"authenticate","accessToken":"tok-1"}`,
			want: &AuthenticateFrame{AccessToken: "tok-1"},
		},
		{
			name: "authenticate anonymously",
			data: `{"type":"authenticate-anonymously","email":"a@b.com"}`,
			want: &AuthenticateAnonymouslyFrame{Email: "a@b.com"},
		},
		{
			name: "history before",
			data: `{"type":"history-before","messageId":"42"}`,
			want: &HistoryBeforeFrame{MessageID: "42"},
		},
		{
			name: "new thread",
			data: `{"type":"new-thread","title":"Help","content":"Hi"}`,
			want: &NewThreadFrame{Title: "Help", Content: "Hi"},
		},
		{
			name: "rename thread",
			data: `{"type":"rename-thread","threadId":"100","title":"Billing"}`,
			want: &RenameThreadFrame{ThreadID: "100", Title: "Billing"},
		},
		{
			name: "switch thread",
			data: `{"type":"switch-thread","threadId":"100"}`,
			want: &SwitchThreadFrame{ThreadID: "100"},
		},
		{
			name: "message",
			data: `{"type":"message","threadId":"100","content":"hello"}`,
			want: &MessageFrame{ThreadID: "100", Content: "hello"},
		},
		{
			name: "reaction",
			data: `{"type":"reaction","messageId":"42","reaction":"👍"}`,
			want: &ReactionFrame{MessageID: "42", Reaction: "👍"},
		},
		{
			name: "remove reaction",
			data: `{"type":"remove-reaction","messageId":"42","reaction":"👍"}`,
			want: &RemoveReactionFrame{MessageID: "42", Reaction: "👍"},
		},
		{
			name: "mark as read",
			data: `{"type":"mark-as-read","threadId":"100","messageId":"42"}`,
			want: &MarkAsReadFrame{ThreadID: "100", MessageID: "42"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeFrame([]byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeFrameRejectsUnknownType(t *testing.T) {
	_, err := decodeFrame([]byte(`{"type":"upload-file","path":"/etc/passwd"}`))
	assert.Error(t, err)
}

func TestDecodeFrameRejectsMalformedJSON(t *testing.T) {
	_, err := decodeFrame([]byte(`{"type":`))
	assert.Error(t, err)

	_, err = decodeFrame([]byte(`{"type":"message","threadId":7}`))
	assert.Error(t, err)
}
