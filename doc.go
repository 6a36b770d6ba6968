/*
Package bucketstore implements a schema-aware, JSON-object key-value store
layered on top of PostgreSQL.

Clients create named buckets whose records are JSON objects identified by a
string key. A bucket declares indexed fields, projected out of the JSON into
typed relational columns, so callers can filter, sort, paginate and issue
conditional (etag-guarded) writes without a general SQL surface.

# Components

Bucket descriptors are validated (schema.go), persisted in buckets_config
and fronted by an LRU cache (catalog.go). Changing a bucket's index map
goes through the schema-evolution engine (evolve.go), which diffs the old
and new index maps and applies column/index DDL and reindex bookkeeping in
one transaction.

Every object operation builds a *Request (request.go) that runs inside one
transaction (op*.go): acquire a session, load the bucket descriptor, check
preconditions, execute, run triggers, commit or roll back. The bucket
operations (opbucket.go) run their own transaction without a Request.

Filters use an LDAP-style grammar (filter/) compiled to a parameterised SQL
WHERE clause; only indexed, non-reindexing fields may appear as filter
leaves.

# Triggers

Pre/post triggers are registered out of band by name (trigger.go); bucket
descriptors reference triggers by name rather than embedding code.
*/
package bucketstore
