// Package provider is the abstraction layer between an agent loop and model backends.
//
// A Provider exposes three operations over the canonical model in package messages:
// Send, SendWithTools and Stream. Client is the HTTP implementation; it binds a
// backend Translator (see the openai, anthropic and gemini subpackages) to a
// transport, credentials, a model identifier, a base URL and a default max token count.
//
// Streams are iter.Seq2 sequences. Nothing is sent until iteration starts, every
// failure is yielded as the final item and breaking out of the loop releases the
// connection:
//
//	for ev, err := range client.Stream(ctx, provider.Params{Messages: history}) {
//	    if err != nil {
//	        return err
//	    }
//	    if d, ok := ev.(provider.ContentBlockDelta); ok {
//	        if t, ok := d.Delta.(provider.TextDelta); ok {
//	            fmt.Print(t.Text)
//	        }
//	    }
//	}
//
// Raw backend frames are turned into canonical events by the translator's
// FragmentParser and then validated by a Reconstructor, which enforces block
// ordering, completes tool input JSON at block close and emits usage exactly once
// before MessageStop.
//
// Every error returned here is typed. StageOf attributes one to the stage that
// produced it: translation, transport, reconstruction or auth.
//
// Handle and Swapper let a running program replace the active provider without
// coordinating with requests already in flight.
package provider
