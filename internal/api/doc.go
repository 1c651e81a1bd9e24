// Package api exposes the channel session and the dispatch pipeline over
// HTTP. Handlers translate requests into calls on the session and the
// dispatch service, and map their errors to status codes and safe messages.
// Live channel and dispatch events are streamed over a websocket.
package api
