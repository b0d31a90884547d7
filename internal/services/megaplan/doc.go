// Package megaplan is the HTTP client for the task tracker. linkrelay only ever
// writes one field: the HTML anchor pointing at the task's public folder.
package megaplan
