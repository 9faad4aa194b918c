// Package anthropic translates the canonical model to and from the Anthropic
// messages protocol.
//
// The protocol is the closest to the canonical model: system prompts, tool use,
// tool results, thinking, images and documents all have native block types, and
// cache directives are passed through. Thinking blocks without a signature
// cannot be replayed natively and are sent as marker text instead.
//
// Streams use named SSE events (message_start, content_block_start,
// content_block_delta, content_block_stop, message_delta, message_stop) that map
// one to one onto canonical events; ping frames are ignored and error frames
// end the stream with a provider.TransportError.
package anthropic
