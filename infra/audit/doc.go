// Package audit provides durable decision log backends: an append-only JSON
// lines file, SQLite and PostgreSQL. Each backend registers itself with
// core/audit under the name used in the audit.store.type setting.
package audit
