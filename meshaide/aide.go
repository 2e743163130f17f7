// Package meshaide implements the MeshAide external collaborator (§6): the
// peer-info oracle the driver consults for safe transaction watermarks and
// uses to keep heartbeats flowing during arbitration.
package meshaide

import "meshfail/network"

// MeshAide is the contract the arbiter driver depends on.
type MeshAide interface {
	// NewestSafeTransactionForInitiator returns the newest transaction id
	// known safe for the given site, or ok=false if the oracle has no
	// record (the driver then uses configs.I64Min).
	NewestSafeTransactionForInitiator(site network.HSID) (txn int64, ok bool)

	// SendHeartbeats pings every site in hsIds so the dead-host timer stays
	// fed while the arbitration thread is blocked resolving a round.
	SendHeartbeats(hsIds []network.HSID)
}
