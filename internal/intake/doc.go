// Package intake decodes tracker lifecycle webhooks and turns them into
// background units of work: creating a task folder and its public link, or
// releasing both when the task is dropped.
package intake
