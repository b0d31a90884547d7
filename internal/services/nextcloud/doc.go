// Package nextcloud is the HTTP client for a Nextcloud account: WebDAV folder
// creation and moves, plus OCS public link shares.
package nextcloud
