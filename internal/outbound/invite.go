package outbound

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/asima2006/fiora-sync/internal/store"
)

// inviteLinkPattern matches a pasted group invite link: the whole text must
// be the link, nothing around it.
var inviteLinkPattern = regexp.MustCompile(`^https?://\S+/invite/group/([0-9a-zA-Z]+)$`)

// InviteContent is the structured payload of an inviteV2 message.
type InviteContent struct {
	Group string `json:"group"`
}

// recognizeInvite rewrites a text message that is exactly a group invite
// link into a structured inviteV2 message. Runs before the optimistic
// insert so the local echo already shows the structured form.
func recognizeInvite(typ store.MessageType, content string) (store.MessageType, string) {
	if typ != store.MessageTypeText {
		return typ, content
	}
	match := inviteLinkPattern.FindStringSubmatch(strings.TrimSpace(content))
	if match == nil {
		return typ, content
	}
	structured, err := json.Marshal(InviteContent{Group: match[1]})
	if err != nil {
		return typ, content
	}
	return store.MessageTypeInviteV2, string(structured)
}
