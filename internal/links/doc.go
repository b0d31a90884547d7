// Package links manages the public share behind each task folder.
//
// A task never has two believed-valid shares: replacing a link always revokes
// the journaled share first. When the tracker reports a task missing while a
// link is pushed, the binding is released and the newly minted share revoked.
package links
