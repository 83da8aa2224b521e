/*
Package session provides session persistence with graceful degradation
and per-session serialization.

Cache layers an optional distributed backend over an in-memory fallback;
backend failures degrade the affected session to memory transparently,
logged once. Manager guarantees that no two orchestration turns mutate
the same session concurrently while leaving different sessions free to
proceed in parallel.
*/
package session
