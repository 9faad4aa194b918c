/*
Package gemini translates the canonical model to and from the Gemini
generateContent protocol.

The model is part of the request path rather than the body, so a decoded
request carries no model. Tool results are sent as functionResponse parts
named after the tool call they answer; the name is recovered from the history.
Gemini has no tool call ids on older models, so missing ids are synthesized.

Cache directives are dropped. Auto tool choice with parallel calls disabled has
no equivalent and fails translation.
*/
package gemini
