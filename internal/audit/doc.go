// Package audit keeps a durable journal of safety, alarm and automation
// events in the audit_logs table.
//
// Journal subscribes to the event bus and writes asynchronously, so the
// control path never waits on SQLite. SQLiteRepository reads the journal
// back for the API.
package audit
