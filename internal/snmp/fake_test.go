package snmp_test

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/gosnmp/gosnmp"

	"beacon/internal/snmp"
)

// fakeAgent answers GETNEXT from a sorted, in-memory MIB view
type fakeAgent struct {
	mu       sync.Mutex
	bindings []snmp.Binding
	status   int
	fail     error
	calls    int
}

func newFakeAgent(bindings ...snmp.Binding) *fakeAgent {
	sort.Slice(bindings, func(i, j int) bool {
		return snmp.Compare(bindings[i].OID, bindings[j].OID) < 0
	})
	return &fakeAgent{bindings: bindings}
}

func (a *fakeAgent) GetNext(ctx context.Context, t snmp.Target, oids []string) (*snmp.Response, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++

	if a.fail != nil {
		return nil, a.fail
	}
	if a.status != 0 {
		return &snmp.Response{ErrorStatus: a.status}, nil
	}

	resp := &snmp.Response{}
	for _, oid := range oids {
		next := snmp.Binding{OID: oid, Type: gosnmp.EndOfMibView}
		for _, b := range a.bindings {
			if snmp.Compare(b.OID, oid) > 0 {
				next = b
				break
			}
		}
		resp.Bindings = append(resp.Bindings, next)
	}
	return resp, nil
}

func (a *fakeAgent) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

var errNoResponse = errors.New("request timeout (after 0 retries)")

func counter(oid string, v uint) snmp.Binding {
	return snmp.Binding{OID: oid, Type: gosnmp.Counter32, Value: v}
}

func octets(oid, v string) snmp.Binding {
	return snmp.Binding{OID: oid, Type: gosnmp.OctetString, Value: []byte(v)}
}
