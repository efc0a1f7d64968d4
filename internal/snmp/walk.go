package snmp

import (
	"context"

	"github.com/gosnmp/gosnmp"
	"github.com/rs/zerolog"

	"beacon/internal/catalog"
	"beacon/internal/logger"
	"beacon/internal/metrics"
)

// DefaultMaxRounds bounds a walk when the caller does not
const DefaultMaxRounds = 2048

// EmitFunc receives each accepted binding: the root it was requested
// under, the instance suffix and the decoded value.
type EmitFunc func(root, index, value string)

// Walker retrieves whole subtrees with repeated GETNEXT requests.
type Walker struct {
	requester Requester
	catalog   *catalog.Catalog
	maxRounds int
	log       zerolog.Logger
}

func NewWalker(r Requester, c *catalog.Catalog, maxRounds int) *Walker {
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}
	return &Walker{
		requester: r,
		catalog:   c,
		maxRounds: maxRounds,
		log:       logger.WithComponent("snmp_walk"),
	}
}

// Walk requests every root, then keeps asking for the successor of each
// returned OID until its branch leaves the root's subtree. A branch ends on an
// end-of-tree marker, an OID outside its root, or an OID that does not advance.
// It returns StatusSuccess, StatusTimeout or the agent's error-status.
func (w *Walker) Walk(ctx context.Context, t Target, roots []string, emit EmitFunc) int {
	// queried OID -> root it belongs to
	correlation := make(map[string]string, len(roots))
	request := make([]string, 0, len(roots))
	for _, r := range roots {
		r = catalog.Trim(r)
		if _, dup := correlation[r]; dup || r == "" {
			continue
		}
		correlation[r] = r
		request = append(request, r)
	}

	rounds := 0
	for ; len(request) > 0; rounds++ {
		if rounds >= w.maxRounds {
			metrics.WalkTruncated.Inc()
			w.log.Warn().
				Int64("device_id", int64(t.DeviceID)).
				Int("rounds", rounds).
				Int("pending", len(request)).
				Msg("walk stopped at round limit")
			break
		}

		resp, err := w.requester.GetNext(ctx, t, request)
		if err != nil || resp.Report {
			w.log.Debug().
				Err(err).
				Int64("device_id", int64(t.DeviceID)).
				Str("address", t.Address).
				Int("round", rounds).
				Msg("walk timed out")
			metrics.WalkStatus.WithLabelValues("timeout").Inc()
			return StatusTimeout
		}
		if resp.ErrorStatus != 0 {
			metrics.WalkStatus.WithLabelValues("error").Inc()
			return resp.ErrorStatus
		}

		next := make(map[string]string, len(request))
		nextRequest := make([]string, 0, len(request))

		for i, b := range resp.Bindings {
			if i >= len(request) {
				break
			}
			queried := request[i]
			root := correlation[queried]

			if endOfTree(b.Type) {
				continue
			}
			if !HasPrefix(b.OID, root) || Compare(b.OID, queried) <= 0 {
				continue
			}
			if _, dup := next[b.OID]; dup {
				continue
			}

			rule, _ := w.catalog.Lookup(root)
			emit(root, Suffix(b.OID, root), Decode(rule.Decode, b))
			metrics.WalkBindings.Inc()

			next[b.OID] = root
			nextRequest = append(nextRequest, b.OID)
		}

		correlation, request = next, nextRequest
	}

	metrics.WalkRounds.Observe(float64(rounds))
	metrics.WalkStatus.WithLabelValues("success").Inc()
	return StatusSuccess
}

func endOfTree(t gosnmp.Asn1BER) bool {
	switch t {
	case gosnmp.EndOfMibView, gosnmp.NoSuchObject, gosnmp.NoSuchInstance:
		return true
	default:
		return false
	}
}
