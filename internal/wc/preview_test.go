package wc

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestPreviewPayload(t *testing.T) {
	tests := []struct {
		name     string
		kind     ActionKind
		payload  string
		expected string
	}{
		{
			name:     "sign message",
			kind:     KindSignMessage,
			payload:  `{"message":"hello world"}`,
			expected: "hello world",
		},
		{
			name:     "sign message msg fallback",
			kind:     KindSignMessage,
			payload:  `{"msg":"short form"}`,
			expected: "short form",
		},
		{
			name:     "typed data",
			kind:     KindSignTypedData,
			payload:  `{"message":"order #42"}`,
			expected: "order #42",
		},
		{
			name:     "transaction",
			kind:     KindSendTransaction,
			payload:  `{"to":"0xdead","value":"0x1","data":"0x"}`,
			expected: "to 0xdead value 0x1",
		},
		{
			name:     "transaction without recipient",
			kind:     KindSendTransaction,
			payload:  `{"value":"0x1"}`,
			expected: "",
		},
		{
			name:     "switch chain",
			kind:     KindSwitchChain,
			payload:  `{"chainId":"137"}`,
			expected: "chain 137",
		},
		{
			name:     "unknown kind",
			kind:     KindOther,
			payload:  `{"message":"ignored"}`,
			expected: "",
		},
		{
			name:     "empty payload",
			kind:     KindSignMessage,
			payload:  "",
			expected: "",
		},
		{
			name:     "invalid json",
			kind:     KindSignMessage,
			payload:  `{"message":`,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, PreviewPayload(tt.kind, []byte(tt.payload)))
		})
	}
}

func TestPreviewPayload_TruncatesLongSummaries(t *testing.T) {
	long := strings.Repeat("a", 200)
	got := PreviewPayload(KindSignMessage, []byte(`{"message":"`+long+`"}`))
	assert.Len(t, got, maxSummaryLen)
}

func TestPreviewPayload_TruncatesOnRuneBoundary(t *testing.T) {
	long := strings.Repeat("日", 200)
	got := PreviewPayload(KindSignMessage, []byte(`{"message":"`+long+`"}`))
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, maxSummaryLen, utf8.RuneCountInString(got))
}
