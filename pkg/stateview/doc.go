/*
Package stateview shields every consumer of WorkflowState from its
representation. A state handed to or returned from a graph-execution host
may arrive back as a generic key-value map; a View reads both backings
identically and never fails on a missing or renamed key.

Updates go through View.Update, which is copy-on-write and invokes the
compliance hook before the new instance is considered valid. Rejected
updates leave the state untouched apart from a recorded violation.
*/
package stateview
