// Command meshd runs one site's Mesh Failure Arbiter, mirroring the
// teacher's fc-server/main.go flag-driven dispatch (node "p"/"c") but with
// a single role: every site runs the same arbiter loop.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set"

	"meshfail/arbiter"
	"meshfail/configs"
	"meshfail/meshaide"
	"meshfail/network"
	"meshfail/network/mailbox"
)

var (
	addr      string
	self      uint64
	mesh      string
	debug     bool
	oracleDSN string
	walDir    string
)

func usage() {
	flag.PrintDefaults()
}

func init() {
	flag.StringVar(&addr, "addr", "127.0.0.1:5001", "the mailbox listen address for this site")
	flag.Uint64Var(&self, "self", 0, "this site's hsid")
	flag.StringVar(&mesh, "mesh", "", "comma-separated hsid=addr pairs for every mesh member, e.g. 1=host1:5001,2=host2:5001")
	flag.BoolVar(&debug, "debug", false, "enable debug/classifier/stall logging")
	flag.StringVar(&oracleDSN, "oracle-dsn", "", "postgres DSN for the MeshAide oracle; empty uses an in-memory fake")
	flag.StringVar(&walDir, "wal-dir", "", "directory for the round audit log; empty disables it")
	flag.Usage = usage
}

func parseMesh(spec string) map[network.HSID]string {
	addresses := make(map[network.HSID]string)
	if spec == "" {
		return addresses
	}
	for _, pair := range strings.Split(spec, ",") {
		kv := strings.SplitN(pair, "=", 2)
		configs.Assert(len(kv) == 2, "malformed -mesh entry: "+pair)
		id, err := strconv.ParseUint(kv[0], 10, 64)
		configs.CheckError(err)
		addresses[network.HSID(id)] = kv[1]
	}
	return addresses
}

func mapsetFromAddresses(addresses map[network.HSID]string) mapset.Set {
	s := mapset.NewThreadUnsafeSet()
	for id := range addresses {
		s.Add(id)
	}
	return s
}

func main() {
	flag.Parse()

	configs.ShowDebugInfo = debug
	configs.ShowWarnings = debug
	configs.ShowStallInfo = debug
	configs.ShowClassifierInfo = debug

	addresses := parseMesh(mesh)
	configs.Assert(len(addresses) > 0, "-mesh must name at least one site")

	mb := mailbox.NewTCPMailbox(addr)

	var aide meshaide.MeshAide
	if oracleDSN != "" {
		pg, err := meshaide.NewPostgresAide(oracleDSN)
		configs.CheckError(err)
		aide = pg
	} else {
		aide = meshaide.NewInMemoryAide()
	}

	a, err := arbiter.New(network.HSID(self), addresses, mb, aide, walDir)
	configs.CheckError(err)

	fmt.Fprintf(os.Stderr, "meshd: site %d listening on %s, %d peers known\n", self, addr, len(addresses))

	// Fault notifications arrive on the FAILURE subject from an upstream
	// fault detector (out of scope, §1); meshd's job ends at wiring the
	// arbiter to its collaborators and pumping that subject into
	// ReconfigureOnFault.
	hsIds := mapsetFromAddresses(addresses)
	for {
		subject, msg, ok := mb.RecvBlocking(configs.ReceiveTick)
		if !ok || subject != configs.Failure {
			if ok {
				mb.DeliverFront(subject, msg)
			}
			continue
		}
		fm, err := network.DecodeFaultMessage(msg)
		if err != nil {
			configs.Warn(false, err.Error())
			continue
		}
		result := a.ReconfigureOnFault(hsIds, fm)
		if len(result) > 0 {
			configs.ArbPrintf(self, "resolved round: %s", configs.JToString(result))
		}
	}
}
