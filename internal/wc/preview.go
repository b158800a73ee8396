package wc

import (
	"fmt"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

const maxSummaryLen = 80

// PreviewPayload extracts a short display summary from an opaque action
// payload. Display only: the payload itself is never modified or
// interpreted beyond these lookups.
func PreviewPayload(kind ActionKind, payload []byte) string {
	if len(payload) == 0 || !gjson.ValidBytes(payload) {
		return ""
	}
	var summary string
	switch kind {
	case KindSignMessage, KindSignTypedData:
		summary = gjson.GetBytes(payload, "message").String()
		if summary == "" {
			summary = gjson.GetBytes(payload, "msg").String()
		}
	case KindSendTransaction:
		to := gjson.GetBytes(payload, "to").String()
		value := gjson.GetBytes(payload, "value").String()
		if to != "" {
			summary = fmt.Sprintf("to %s value %s", to, value)
		}
	case KindSwitchChain:
		if chain := gjson.GetBytes(payload, "chainId").String(); chain != "" {
			summary = "chain " + chain
		}
	}
	if utf8.RuneCountInString(summary) > maxSummaryLen {
		runes := []rune(summary)
		summary = string(runes[:maxSummaryLen])
	}
	return summary
}
