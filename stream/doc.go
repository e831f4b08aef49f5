/*
Package stream resolves logical destinations to bound channel names and relays
messages through them on behalf of contract tests.
It depends only on the contracts in contract/messaging; binders are injected.
*/
package stream
