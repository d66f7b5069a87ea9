package rbac

// Scope says where an assignment or grant applies: everywhere in the tenant,
// or inside one organization. The zero value is the global scope.
type Scope struct {
	organizationID string
	scoped         bool
}

func Global() Scope {
	return Scope{}
}

func InOrganization(organizationID string) Scope {
	return Scope{organizationID: organizationID, scoped: true}
}

// ScopeFromOrganization converts a wire value where an absent organization
// means global.
func ScopeFromOrganization(organizationID string) Scope {
	if organizationID == "" {
		return Global()
	}
	return InOrganization(organizationID)
}

func (s Scope) IsGlobal() bool {
	return !s.scoped
}

// Organization returns the organization id and whether the scope has one.
func (s Scope) Organization() (string, bool) {
	return s.organizationID, s.scoped
}

// AppliesTo reports whether something granted in s is in effect for a
// request made in requested. Global grants apply everywhere; organization
// grants apply only to requests in that same organization.
func (s Scope) AppliesTo(requested Scope) bool {
	if s.IsGlobal() {
		return true
	}
	return requested.scoped && requested.organizationID == s.organizationID
}

func (s Scope) String() string {
	if s.IsGlobal() {
		return "global"
	}
	return "org:" + s.organizationID
}
