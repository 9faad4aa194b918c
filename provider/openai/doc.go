/*
Package openai translates the canonical model to and from the OpenAI chat
completions protocol, and to any deployment speaking it.

# Translation

  - The system prompt becomes a leading message with the system role.
  - Tool uses become the tool_calls array of the assistant message; tool
    results become separate messages with the tool role, placed after any
    content that preceded them in the same canonical message.
  - Thinking blocks have no native channel and are sent as text wrapped in
    the [Internal reasoning: ...] marker.
  - Documents are omitted. Cache directives are dropped.
  - Reasoning models (o1, o3, o4, gpt-5) receive max_completion_tokens instead
    of max_tokens.

# Streaming

The fragment parser opens a text block on the first content delta and a tool
use block for every new tool call index, closing the previous block first. The
finish_reason chunk becomes a MessageDelta, the trailing usage chunk a Usage
event and the [DONE] marker MessageStop.

# Models

	client, err := openai.New(provider.WithAPIKey(key))
	mini, err := openai.GPT4oMini(provider.WithAPIKey(key))
*/
package openai
