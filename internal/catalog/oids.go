package catalog

// Well-known object identifiers, without the leading dot.
const (
	SysDescr    = "1.3.6.1.2.1.1.1"
	SysObjectID = "1.3.6.1.2.1.1.2"
	SysUpTime   = "1.3.6.1.2.1.1.3"
	SysName     = "1.3.6.1.2.1.1.5"

	IfDescr       = "1.3.6.1.2.1.2.2.1.2"
	IfType        = "1.3.6.1.2.1.2.2.1.3"
	IfSpeed       = "1.3.6.1.2.1.2.2.1.5"
	IfPhysAddress = "1.3.6.1.2.1.2.2.1.6"
	IfAdminStatus = "1.3.6.1.2.1.2.2.1.7"
	IfOperStatus  = "1.3.6.1.2.1.2.2.1.8"
	IfInOctets    = "1.3.6.1.2.1.2.2.1.10"
	IfInErrors    = "1.3.6.1.2.1.2.2.1.14"
	IfOutOctets   = "1.3.6.1.2.1.2.2.1.16"
	IfOutErrors   = "1.3.6.1.2.1.2.2.1.20"

	IPNetToMediaPhysAddress = "1.3.6.1.2.1.4.22.1.2"
	IPNetToMediaType        = "1.3.6.1.2.1.4.22.1.4"

	HrSystemUptime           = "1.3.6.1.2.1.25.1.1"
	HrStorageType            = "1.3.6.1.2.1.25.2.3.1.2"
	HrStorageDescr           = "1.3.6.1.2.1.25.2.3.1.3"
	HrStorageAllocationUnits = "1.3.6.1.2.1.25.2.3.1.4"
	HrStorageSize            = "1.3.6.1.2.1.25.2.3.1.5"
	HrStorageUsed            = "1.3.6.1.2.1.25.2.3.1.6"
	HrProcessorLoad          = "1.3.6.1.2.1.25.3.3.1.2"

	// hrStorageType values
	HrStorageRAM       = "1.3.6.1.2.1.25.2.1.2"
	HrStorageFixedDisk = "1.3.6.1.2.1.25.2.1.4"

	IfName        = "1.3.6.1.2.1.31.1.1.1.1"
	IfHCInOctets  = "1.3.6.1.2.1.31.1.1.1.6"
	IfHCOutOctets = "1.3.6.1.2.1.31.1.1.1.10"
	IfHighSpeed   = "1.3.6.1.2.1.31.1.1.1.15"
	IfAlias       = "1.3.6.1.2.1.31.1.1.1.18"

	CpmCPUTotal5sec    = "1.3.6.1.4.1.9.9.109.1.1.1.1.3"
	CpmCPUTotal5secRev = "1.3.6.1.4.1.9.9.109.1.1.1.1.6"
	DsCPULoad5s        = "1.3.6.1.4.1.6296.9.1.1.1.8"
	AxgateCPU          = "1.3.6.1.4.1.37288.1.1.3.1.1"

	// Derived metrics live under a private enterprise arc and are never requested.
	ResponseTime = "1.3.6.1.4.1.49447.1"
	LastResponse = "1.3.6.1.4.1.49447.2"
	InBPS        = "1.3.6.1.4.1.49447.3.1"
	OutBPS       = "1.3.6.1.4.1.49447.3.2"
	InErrs       = "1.3.6.1.4.1.49447.3.3"
	OutErrs      = "1.3.6.1.4.1.49447.3.4"
	Bandwidth    = "1.3.6.1.4.1.49447.3.5"

	// MIB-2 root used by reachability probes
	MIB2 = "1.3.6.1.2.1"
)
