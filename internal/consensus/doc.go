// Package consensus holds the pure decision logic of the alert engine: the
// threshold rule that moves an alert between lifecycle states as votes
// accumulate, and the gate that decides which actor may perform which
// operation on an alert. Nothing in this package touches storage.
package consensus
