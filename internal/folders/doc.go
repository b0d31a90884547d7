// Package folders owns the remote folder behind every task: where it lives
// (PathFor) and how it is created or renamed.
package folders
