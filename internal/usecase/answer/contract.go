package answer

import "context"

// ChatModel generates text from a system and user message pair.
type ChatModel interface {
	Complete(ctx context.Context, system, user string) (string, error)
}
