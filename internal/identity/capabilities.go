package identity

// Capability names a mutation a role may perform. Services check
// capabilities, not roles, so policy lives in one table.
type Capability string

const (
	CapProjectCreate     Capability = "project:create"
	CapProjectUpdate     Capability = "project:update"
	CapProjectStatus     Capability = "project:status"
	CapMeasurementSubmit Capability = "measurement:submit"
	CapMeasurementSync   Capability = "measurement:sync"
	CapVerificationOpen  Capability = "verification:open"
	CapVerificationClose Capability = "verification:close"
	CapLedgerMint        Capability = "ledger:mint"
	CapLedgerTransfer    Capability = "ledger:transfer"
	CapLedgerRetire      Capability = "ledger:retire"
	CapViewAllProjects   Capability = "project:view_all"
)

// project:status and ledger:mint are held by no interactive role; the
// verification workflow and ledger act through service-internal capability
// grants instead.
var roleCapabilities = map[Role][]Capability{
	RoleAdmin: {
		CapProjectCreate, CapProjectUpdate, CapViewAllProjects,
		CapLedgerTransfer, CapLedgerRetire,
	},
	RoleNGO: {
		CapProjectCreate, CapProjectUpdate,
		CapMeasurementSubmit, CapMeasurementSync,
		CapLedgerTransfer, CapLedgerRetire,
	},
	RolePanchayat: {
		CapProjectCreate, CapProjectUpdate,
		CapMeasurementSubmit, CapMeasurementSync,
		CapLedgerTransfer, CapLedgerRetire,
	},
	RoleGovernment: {
		CapProjectCreate, CapProjectUpdate, CapViewAllProjects,
		CapLedgerTransfer, CapLedgerRetire,
	},
	RoleVerifier: {
		CapViewAllProjects, CapVerificationOpen, CapVerificationClose,
	},
}

// Can reports whether the role holds the capability
func (r Role) Can(cap Capability) bool {
	for _, c := range roleCapabilities[r] {
		if c == cap {
			return true
		}
	}
	return false
}

// SeesAllProjects reports whether the role bypasses organization scoping
func (r Role) SeesAllProjects() bool {
	return r.Can(CapViewAllProjects)
}
