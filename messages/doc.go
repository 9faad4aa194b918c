// Package messages holds the canonical conversation model shared by every backend.
//
// A conversation is an ordered slice of Message values, each carrying a role and
// an ordered list of content blocks. Blocks are a closed set: Text, ToolUse,
// ToolResult, Thinking, Image and Document. Backend translators map these blocks
// to and from their wire formats; nothing in this package knows about a backend.
//
// Key concepts:
//   - ContentBlock: sealed interface implemented by the six block types
//   - SystemPrompt: plain text or structured blocks, placed by each backend its own way
//   - Tool and ToolChoice: the tool catalogue offered to the model and how it may use it
//   - Response and StopReason: the result of one completion
//
// All types serialise to a stable JSON form with a "type" discriminator so that
// histories can be stored and replayed:
//
//	msgs := []messages.Message{
//	    messages.UserText("What is 2+2?"),
//	}
//	data, _ := json.Marshal(msgs)
//
// Tool call pairing is the one cross-message invariant: every ToolResult must refer
// to a ToolUse emitted earlier in the history. CheckToolPairing validates it.
package messages
