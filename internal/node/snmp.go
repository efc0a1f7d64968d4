package node

import (
	"context"

	"beacon/internal/models"
	"beacon/internal/snmp"
)

// OIDSource yields the roots to walk on each poll
type OIDSource func(id models.DeviceID) []string

// NewSNMP starts a node that, once liveness succeeds, walks the roots from
// oids and reports every binding followed by the walk status.
func NewSNMP(id models.DeviceID, liveness Prober, walker *snmp.Walker, target snmp.Target, oids OIDSource, listener Listener, cfg Config) *Node {
	target.DeviceID = id

	poll := func(ctx context.Context, n *Node) {
		t := target
		t.Timeout = n.Timeout()
		t.Retries = n.Retry()

		code := walker.Walk(ctx, t, oids(id), func(root, index, value string) {
			if !n.closed() {
				listener.OnSample(id, root, index, value)
			}
		})
		if !n.closed() {
			listener.OnStatus(id, code)
		}
	}

	return newNode(id, models.ProtocolSNMP, liveness, listener, cfg, poll)
}
