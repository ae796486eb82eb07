// Package client runs conversational turns against the chat hub.
//
// # Overview
//
// A Client ties the engine together for one turn:
//
//  1. Bootstrap a session when the caller did not supply a complete one
//  2. Load (or create) the cached conversation and rebuild the thread
//  3. Compose the chat envelope, priming the transcript on the first turn
//  4. Dial the hub, send the invocation and stream deltas to OnProgress
//  5. Race the terminal frame against the turn timeout and ctx
//  6. Append the user and bot messages and persist the conversation
//
// One socket is opened per turn and closed when the turn settles. The
// returned Response carries the continuation fields (session triple,
// next invocation id, message id) a caller passes back in SendOptions to
// continue the same conversation.
//
// # Errors
//
// Errors from the collaborating packages are wrapped with %w, so callers
// match them with errors.Is against session.ErrUnauthorized,
// turn.ErrTimeout, turn.ErrAborted, turn.ErrInvalidSession and friends.
//
// # Usage
//
//	c, err := client.New(cfg, cacheBackend, metrics.New(), logger)
//	resp, err := c.SendMessage(ctx, "hello", client.SendOptions{
//	    OnProgress: func(s string) { fmt.Print(s) },
//	})
//	// next turn
//	resp, err = c.SendMessage(ctx, "and then?", resp.Continue(nil))
package client
