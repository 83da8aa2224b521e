/*
Package ports defines the boundary interfaces of the Parley core.

Following Hexagonal Architecture, the orchestration runtime depends only
on these interfaces; adapters (memory, redis, http, mcp) implement or
consume them. External collaborators — the compliance hook and the
authorization matrix — are injected at construction time, with allow-all
implementations for development.
*/
package ports
