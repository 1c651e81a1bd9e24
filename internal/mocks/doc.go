// Package mocks provides hand-written fakes for the interfaces used across
// the dispatch subsystem.
//
// Each fake carries overridable function fields (SendFn, ListOccurrencesFn,
// ...) and a sensible in-memory default, plus call tracking for assertions:
//
//	client := mocks.NewMockChannelClient()
//	client.SendFn = func(ctx context.Context, to, text string) error {
//	    return errors.New("Protocol error (Runtime.callFunctionOn): Target closed")
//	}
//
// Mocks built on testify/mock are prefixed with Testify.
package mocks
