// Package registry maps wallet addresses to identity (DID) document URIs.
//
// The mapping has create-or-update semantics under a single ownership rule:
// only the address itself may set its document. Documents are stored in a
// Badger key-value store, on disk or in memory.
//
// Updates are observable: Subscribe returns a channel that receives a
// DocumentUpdated notification for every successful SetDocument, in commit
// order. Subscribers that fall behind lose notifications rather than block
// writers.
package registry
