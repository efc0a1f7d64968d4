// Package catalog holds the static metric rule table and the per-device
// request set built from it.
package catalog

import (
	"strings"

	"beacon/internal/models"
)

// Catalog maps canonical OIDs to their rules. It is immutable after construction.
type Catalog struct {
	rules       map[string]models.MetricRule
	aliases     map[string]string
	requestable []string
}

// New builds a catalog. requestable lists, in order, the OIDs walked on every
// device; aliases maps a vendor or 64-bit OID onto the canonical OID it is stored under.
func New(rules []models.MetricRule, requestable []string, aliases map[string]string) *Catalog {
	c := &Catalog{
		rules:       make(map[string]models.MetricRule, len(rules)),
		aliases:     make(map[string]string, len(aliases)),
		requestable: make([]string, 0, len(requestable)),
	}

	for _, r := range rules {
		r.OID = Trim(r.OID)
		c.rules[r.OID] = r
	}
	for from, to := range aliases {
		c.aliases[Trim(from)] = Trim(to)
	}
	for _, oid := range requestable {
		c.requestable = append(c.requestable, Trim(oid))
	}

	return c
}

// Default returns the catalog of standard MIB-2, HOST-RESOURCES and vendor CPU metrics.
func Default() *Catalog {
	text := func(oid, name string) models.MetricRule {
		return models.MetricRule{OID: oid, Name: name, Decode: models.DecodeText}
	}
	raw := func(oid, name string, series bool) models.MetricRule {
		return models.MetricRule{OID: oid, Name: name, Decode: models.DecodeRaw, PersistAsSeries: series}
	}
	ticks := func(oid, name string) models.MetricRule {
		return models.MetricRule{OID: oid, Name: name, Decode: models.DecodeTimeTicks}
	}

	requested := []models.MetricRule{
		text(SysDescr, "sysDescr"),
		raw(SysObjectID, "sysObjectID", false),
		ticks(SysUpTime, "sysUpTime"),
		text(SysName, "sysName"),
		text(IfDescr, "ifDescr"),
		raw(IfType, "ifType", false),
		raw(IfSpeed, "ifSpeed", false),
		raw(IfPhysAddress, "ifPhysAddress", false),
		raw(IfAdminStatus, "ifAdminStatus", false),
		{OID: IfOperStatus, Name: "ifOperStatus", Decode: models.DecodeRaw, AlertOnChange: true},
		raw(IfInOctets, "ifInOctets", true),
		raw(IfInErrors, "ifInErrors", true),
		raw(IfOutOctets, "ifOutOctets", true),
		raw(IfOutErrors, "ifOutErrors", true),
		raw(IPNetToMediaPhysAddress, "ipNetToMediaPhysAddress", false),
		raw(IPNetToMediaType, "ipNetToMediaType", false),
		ticks(HrSystemUptime, "hrSystemUptime"),
		raw(HrStorageType, "hrStorageType", false),
		text(HrStorageDescr, "hrStorageDescr"),
		raw(HrStorageAllocationUnits, "hrStorageAllocationUnits", false),
		raw(HrStorageSize, "hrStorageSize", false),
		raw(HrStorageUsed, "hrStorageUsed", true),
		raw(HrProcessorLoad, "hrProcessorLoad", true),
		text(IfName, "ifName"),
		raw(IfHCInOctets, "ifHCInOctets", true),
		raw(IfHCOutOctets, "ifHCOutOctets", true),
		raw(IfHighSpeed, "ifHighSpeed", false),
		text(IfAlias, "ifAlias"),
		raw(CpmCPUTotal5sec, "cpmCPUTotal5sec", true),
		raw(CpmCPUTotal5secRev, "cpmCPUTotal5secRev", true),
		raw(DsCPULoad5s, "dsCpuLoad5s", true),
		raw(AxgateCPU, "axgateCPU", true),
	}

	derived := []models.MetricRule{
		raw(ResponseTime, "responseTime", true),
		raw(LastResponse, "lastResponse", false),
		raw(InBPS, "inBPS", true),
		raw(OutBPS, "outBPS", true),
		raw(InErrs, "inErrs", true),
		raw(OutErrs, "outErrs", true),
		raw(Bandwidth, "bandwidth", true),
	}

	requestable := make([]string, 0, len(requested))
	for _, r := range requested {
		requestable = append(requestable, r.OID)
	}

	aliases := map[string]string{
		CpmCPUTotal5sec:    HrProcessorLoad,
		CpmCPUTotal5secRev: HrProcessorLoad,
		DsCPULoad5s:        HrProcessorLoad,
		AxgateCPU:          HrProcessorLoad,
		IfHCInOctets:       IfInOctets,
		IfHCOutOctets:      IfOutOctets,
	}

	return New(append(requested, derived...), requestable, aliases)
}

// Lookup returns the rule registered for an OID, without alias resolution.
func (c *Catalog) Lookup(oid string) (models.MetricRule, bool) {
	r, ok := c.rules[Trim(oid)]
	return r, ok
}

// Canonical resolves aliases; unknown OIDs are returned unchanged.
func (c *Catalog) Canonical(oid string) string {
	oid = Trim(oid)
	if to, ok := c.aliases[oid]; ok {
		return to
	}
	return oid
}

// Requestable returns a copy of the OIDs walked on every device.
func (c *Catalog) Requestable() []string {
	out := make([]string, len(c.requestable))
	copy(out, c.requestable)
	return out
}

// Rules returns every rule in the catalog.
func (c *Catalog) Rules() []models.MetricRule {
	out := make([]models.MetricRule, 0, len(c.rules))
	for _, r := range c.rules {
		out = append(out, r)
	}
	return out
}

// Trim strips surrounding space and the leading dot SNMP libraries put on OIDs.
func Trim(oid string) string {
	return strings.TrimPrefix(strings.TrimSpace(oid), ".")
}
