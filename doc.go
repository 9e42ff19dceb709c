// Package chatuser provides a per-user data-access layer for chat-bot platforms.
//
// Each chat participant is represented by a User façade backed by two stores: a
// relational table (GORM) holding durable attributes such as points, level and
// subscriber status, and a Redis keyspace holding high-churn attributes such as
// message counters, activity timestamps and moderation flags. Both sides load
// lazily, at most once per User instance, and a short-lived in-process field
// cache absorbs the most frequent relational reads. On top of the raw
// attributes the User façade implements graduated timeout warnings, point
// spending with debt tracking and rollback, and a per-stream token ledger.
package chatuser
