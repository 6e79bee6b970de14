package domain

type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

type ChatTurn struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}

type AssistantContext struct {
	ChatHistory []ChatTurn `json:"chat_history"`
}

type AssistantRequest struct {
	Message string           `json:"message"`
	UserID  string           `json:"user_id,omitempty"`
	Context AssistantContext `json:"context"`
}

type AssistantReply struct {
	Text        string   `json:"text"`
	Suggestions []string `json:"suggestions"`
}
