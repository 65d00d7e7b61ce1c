// Package world is a minimal host entity registry: generational entity
// ids and component columns, plus a SQLite loader for seeding a roster of
// named, aged entities.
//
// Columns implement targeted.Lookup, so a targeted.Reader can join events
// with component data. Lookups of despawned entities miss, which is how a
// Reader learns that a target went away between production and drain.
package world
