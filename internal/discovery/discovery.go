/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package discovery is a development convenience, never used by the node
runtime itself: a real cluster always learns its membership from the
init message's node_ids, exactly as spec.md §3 requires. This package
exists only so an operator running several raftkv-node processes by
hand on one LAN can find each other's addresses with mDNS
(github.com/hashicorp/mdns) instead of wiring node_ids together
manually, and so raftkv-discover has something to call.
*/
package discovery

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

// serviceName is the mDNS service type Advertise registers and Discover
// browses, following the "_service._proto" convention mDNS expects.
const serviceName = "_raftkv._tcp"

// Advertisement is a running mDNS responder for one node. Shutdown
// stops it.
type Advertisement struct {
	server *mdns.Server
}

// Advertise registers nodeID on the local network as reachable at
// port, with meta attached as TXT records (e.g. a stdio socket path or
// a node_ids hint for a peer running raftkv-discover).
func Advertise(nodeID string, port int, meta map[string]string) (*Advertisement, error) {
	txt := make([]string, 0, len(meta))
	for k, v := range meta {
		txt = append(txt, fmt.Sprintf("%s=%s", k, v))
	}

	svc, err := mdns.NewMDNSService(nodeID, serviceName, "", "", port, nil, txt)
	if err != nil {
		return nil, fmt.Errorf("building mdns service for %s: %w", nodeID, err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: svc})
	if err != nil {
		return nil, fmt.Errorf("starting mdns responder for %s: %w", nodeID, err)
	}

	return &Advertisement{server: server}, nil
}

// Shutdown stops advertising this node.
func (a *Advertisement) Shutdown() error {
	return a.server.Shutdown()
}

// Peer is one node discovered on the network.
type Peer struct {
	NodeID string
	Addr   net.IP
	Port   int
	Meta   map[string]string
}

// Discover queries the network for raftkv-node advertisements for up
// to timeout and returns whatever peers answered.
func Discover(timeout time.Duration) ([]Peer, error) {
	entries := make(chan *mdns.ServiceEntry, 32)

	params := mdns.DefaultParams(serviceName)
	params.Timeout = timeout
	params.Entries = entries

	done := make(chan error, 1)
	go func() {
		done <- mdns.Query(params)
		close(entries)
	}()

	var peers []Peer
	for entry := range entries {
		addr := entry.AddrV4
		if addr == nil {
			addr = entry.AddrV6
		}
		peers = append(peers, Peer{
			NodeID: entry.Name,
			Addr:   addr,
			Port:   entry.Port,
			Meta:   parseTXT(entry.InfoFields),
		})
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("mdns query for %s: %w", serviceName, err)
	}
	return peers, nil
}

func parseTXT(fields []string) map[string]string {
	meta := make(map[string]string, len(fields))
	for _, f := range fields {
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			continue
		}
		meta[k] = v
	}
	return meta
}
