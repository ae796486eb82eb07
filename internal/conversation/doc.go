// Package conversation holds cached conversations and rebuilds their threads.
//
// # Overview
//
// A Conversation is a flat, append-only list of messages. Each message
// may point at a parent, so the list encodes a tree: replying to an older
// bot message starts a sibling branch. ThreadFrom recovers one branch by
// walking parent links from a starting message back to the root and
// returning the result root-first.
//
// # Thread Walk
//
// The walk is bounded by the number of messages and tracks visited ids,
// so a parent cycle in cached data fails with ErrCorruptThread instead of
// looping. A parent id that does not resolve ends the walk; that message
// is treated as the root.
//
// # Store
//
// Store loads and persists whole conversations as JSON through a minimal
// Cache contract:
//
//	store := conversation.NewStore(backend, logger)
//	conv := store.LoadOrCreate(ctx, "main")
//	thread, err := store.ThreadFrom(conv, conv.LastBotMessageID())
//	store.Append(conv, userMsg)
//	store.Append(conv, botMsg)
//	err = store.Persist(ctx, conv)
//
// There is no per-key locking; concurrent turns on one key are
// last-writer-wins.
package conversation
