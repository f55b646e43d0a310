/*
Package inmem implements the coordinator Backend interface inside a single process.
It lets a one-node deployment (and the test suites) run the full coordinator with
identical lease and map semantics without a dedicated database. State is lost when the
process exits and is not shared with other nodes.
*/
package inmem
