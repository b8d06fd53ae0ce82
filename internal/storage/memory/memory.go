// Package memory provides map-backed repositories guarded by mutexes.
//
// They back unit tests and local development without a database, and keep
// exactly the semantics of the postgres implementations: copies in, copies
// out, sentinel errors on missing rows.
package memory
