/*
Package harness is the base for generated stream contract tests.

It boots a small web application whose only endpoint runs through a circuit
breaker, publishes the breaker's command metrics as stream messages and
exposes a message verifier plus the origin, data and event checks that
contracts call on received metrics messages.
*/
package harness
