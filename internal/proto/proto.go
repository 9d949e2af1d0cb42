package proto

import "encoding/json"

// Event names for client -> hub calls. Each call carries a JSON payload and
// expects an acknowledgement: either a success payload or an error string.
const (
	EventRegister                  = "register"
	EventLogin                     = "login"
	EventLoginByToken              = "loginByToken"
	EventGuest                     = "guest"
	EventSendMessage               = "sendMessage"
	EventGetLinkmansLastMessagesV2 = "getLinkmansLastMessagesV2"
	EventGetLinkmanHistoryMessages = "getLinkmanHistoryMessages"
	EventGetGroupOnlineMembersV2   = "getGroupOnlineMembersV2"
	EventSendTypingIndicator       = "sendTypingIndicator"
	EventSendReadReceipt           = "sendReadReceipt"
	EventSendDeliveryReceipt       = "sendDeliveryReceipt"
	EventUpdateHistory             = "updateHistory"
)

// Event names pushed by the hub. No acknowledgement is expected.
const (
	PushMessage         = "message"
	PushTyping          = "typing"
	PushReadReceipt     = "readReceipt"
	PushDeliveryReceipt = "deliveryReceipt"
	PushChangeGroupName = "changeGroupName"
	PushDeleteGroup     = "deleteGroup"
	PushDeleteMessage   = "deleteMessage"
	PushChangeTag       = "changeTag"
)

// MutedSentinel is the exact error string the hub returns when the sender is
// muted or banned. The channel seals outbound emits for a cooldown window
// when it sees this string in an acknowledgement.
const MutedSentinel = "you have been muted, please try again later"

// IsMuted reports whether an acknowledgement error text is the mute sentinel.
func IsMuted(errText string) bool {
	return errText == MutedSentinel
}

// Frame is the wire envelope in both directions. Client calls carry a
// positive Seq; the hub echoes it on the acknowledgement. Hub pushes carry
// Seq zero and a non-empty Event.
type Frame struct {
	Seq   uint64          `json:"seq,omitempty"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// Sender is the denormalized author snapshot embedded in every message.
type Sender struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
	Tag      string `json:"tag,omitempty"`
}

// Message is the wire form of a chat message.
type Message struct {
	ID         string `json:"_id"`
	To         string `json:"to,omitempty"`
	From       Sender `json:"from"`
	Type       string `json:"type"`
	Content    string `json:"content"`
	CreateTime int64  `json:"createTime"` // unix milliseconds
	Deleted    bool   `json:"deleted,omitempty"`
}

// User is the session payload returned by register/login/loginByToken/guest.
type User struct {
	ID       string          `json:"_id"`
	Username string          `json:"username"`
	Avatar   string          `json:"avatar"`
	Tag      string          `json:"tag,omitempty"`
	Token    string          `json:"token,omitempty"`
	IsAdmin  bool            `json:"isAdmin,omitempty"`
	Friends  []LinkmanBrief  `json:"friends,omitempty"`
	Groups   []LinkmanBrief  `json:"groups,omitempty"`
	Channels []LinkmanBrief  `json:"channels,omitempty"`
	Extra    json.RawMessage `json:"extra,omitempty"`
}

// LinkmanBrief is the roster entry shape: enough to seed a linkman before
// its history arrives.
type LinkmanBrief struct {
	ID         string `json:"_id"`
	Name       string `json:"name"`
	Avatar     string `json:"avatar"`
	Type       string `json:"type"` // friend, group, channel, community
	Creator    string `json:"creator,omitempty"`
	CreateTime int64  `json:"createTime"`
}

// RegisterRequest creates an account.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginRequest authenticates with credentials.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginByTokenRequest resumes a previous session.
type LoginByTokenRequest struct {
	Token string `json:"token"`
}

// GuestRequest provisions an anonymous session. DeviceID lets the hub
// reattach the same guest identity across reconnects.
type GuestRequest struct {
	DeviceID string `json:"deviceId"`
}

// SendMessageRequest transmits one message to a linkman.
type SendMessageRequest struct {
	To      string `json:"to"`
	Type    string `json:"type"`
	Content string `json:"content"`
}

// LastMessagesRequest asks for the newest messages of every listed linkman
// in one batched call.
type LastMessagesRequest struct {
	Linkmans []string `json:"linkmans"`
}

// LinkmanMessages is one entry of the batched last-messages response.
type LinkmanMessages struct {
	Messages []Message `json:"messages"`
	Unread   int       `json:"unread"`
}

// LastMessagesResponse maps linkman id to its newest messages and the
// server-side unread count.
type LastMessagesResponse map[string]LinkmanMessages

// HistoryRequest asks for messages older than the existCount already held.
type HistoryRequest struct {
	LinkmanID  string `json:"linkmanId"`
	ExistCount int    `json:"existCount"`
}

// OnlineMembersRequest carries the last-known cache token so the hub can
// short-circuit when nothing changed.
type OnlineMembersRequest struct {
	GroupID string `json:"groupId"`
	Cache   string `json:"cache,omitempty"`
}

// OnlineMember is one entry of a group's online roster.
type OnlineMember struct {
	UserID   string `json:"_id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
	Browser  string `json:"browser,omitempty"`
	OS       string `json:"os,omitempty"`
}

// OnlineMembersResponse either carries the full member list with a fresh
// token, or only the matched token when the client's cache is still valid.
type OnlineMembersResponse struct {
	Cache   string         `json:"cache"`
	Members []OnlineMember `json:"members,omitempty"`
}

// TypingRequest signals a typing start or stop to a linkman.
type TypingRequest struct {
	To       string `json:"to"`
	IsTyping bool   `json:"isTyping"`
}

// ReceiptRequest acknowledges delivery or read of a message.
type ReceiptRequest struct {
	MessageID string `json:"messageId"`
	LinkmanID string `json:"linkmanId"`
}

// UpdateHistoryRequest bumps the server-side read position for a linkman.
// Idempotent; last write wins on the hub.
type UpdateHistoryRequest struct {
	LinkmanID string `json:"linkmanId"`
	MessageID string `json:"messageId"`
}

// MessagePush delivers one message to a client. LinkmanID names the
// conversation the message belongs to from this client's perspective: the
// group/channel id, or the peer's id for direct messages.
type MessagePush struct {
	LinkmanID string  `json:"linkmanId"`
	Message   Message `json:"message"`
}

// TypingPush is the hub push for a remote user's typing transition.
type TypingPush struct {
	LinkmanID string `json:"linkmanId"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	IsTyping  bool   `json:"isTyping"`
}

// ReceiptPush is the hub push for a delivery or read receipt.
type ReceiptPush struct {
	MessageID string `json:"messageId"`
	LinkmanID string `json:"linkmanId"`
	UserID    string `json:"userId"`
}

// ChangeGroupNamePush renames a group for all members.
type ChangeGroupNamePush struct {
	GroupID string `json:"groupId"`
	Name    string `json:"name"`
}

// DeleteGroupPush removes a group from every member's roster.
type DeleteGroupPush struct {
	GroupID string `json:"groupId"`
}

// DeleteMessagePush removes or tombstones a message for all holders.
type DeleteMessagePush struct {
	LinkmanID string `json:"linkmanId"`
	MessageID string `json:"messageId"`
	Hard      bool   `json:"hard,omitempty"`
}

// ChangeTagPush updates a user's tag on messages rendered from the snapshot.
type ChangeTagPush struct {
	UserID string `json:"userId"`
	Tag    string `json:"tag"`
}
