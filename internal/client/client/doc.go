// Package client is the device side of the altair.v1.Altair service.
//
// GRPCClient manages one connection, injects the access token through a
// unary interceptor, transparently refreshes an expired access token once
// per call and rebuilds typed *common.Error values from the error trailer.
// It satisfies syncer.Remote, so the sync engine talks to it directly.
//
// Tokens live in memory; callers persist them through the OnTokens hook.
package client
