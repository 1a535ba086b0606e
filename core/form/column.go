package form

import "strings"

// ColumnRole tags the storage and lifecycle role of a field.
type ColumnRole int

const (
	// None marks a field that is not persisted.
	None ColumnRole = iota
	PrimaryKey
	GeneratedPrimaryKey
	PrimaryAndParentKey
	ParentKey
	UniqueKey
	TenantKey
	CreatedBy
	CreatedAt
	ModifiedBy
	ModifiedAt
	RequiredData
	OptionalData
)

// Capabilities are the fixed flags attached to a role.
type Capabilities struct {
	Selected      bool
	Inserted      bool
	Updated       bool
	Input         bool
	ClientVisible bool
	Required      bool
	// DBValue is a SQL expression written instead of a parameter.
	DBValue string
}

const currentTimestamp = "CURRENT_TIMESTAMP"

var roles = [...]struct {
	name string
	caps Capabilities
}{
	None:                {"none", Capabilities{Input: true, ClientVisible: true}},
	PrimaryKey:          {"primaryKey", Capabilities{Selected: true, Inserted: true, Input: true, ClientVisible: true, Required: true}},
	GeneratedPrimaryKey: {"generatedPrimaryKey", Capabilities{Selected: true, Input: true, ClientVisible: true, Required: true}},
	PrimaryAndParentKey: {"primaryAndParentKey", Capabilities{Selected: true, Inserted: true, Input: true, ClientVisible: true, Required: true}},
	ParentKey:           {"parentKey", Capabilities{Selected: true, Inserted: true, Input: true, ClientVisible: true, Required: true}},
	UniqueKey:           {"uniqueKey", Capabilities{Selected: true, Inserted: true, Input: true, ClientVisible: true, Required: true}},
	TenantKey:           {"tenantKey", Capabilities{Selected: true, Inserted: true, Required: true}},
	CreatedBy:           {"createdBy", Capabilities{Selected: true, Inserted: true, ClientVisible: true, Required: true}},
	CreatedAt:           {"createdAt", Capabilities{Selected: true, Inserted: true, ClientVisible: true, Required: true, DBValue: currentTimestamp}},
	ModifiedBy:          {"modifiedBy", Capabilities{Selected: true, Inserted: true, Updated: true, ClientVisible: true, Required: true}},
	ModifiedAt:          {"modifiedAt", Capabilities{Selected: true, Inserted: true, Updated: true, ClientVisible: true, Required: true, DBValue: currentTimestamp}},
	RequiredData:        {"requiredData", Capabilities{Selected: true, Inserted: true, Updated: true, Input: true, ClientVisible: true, Required: true}},
	OptionalData:        {"optionalData", Capabilities{Selected: true, Inserted: true, Updated: true, Input: true, ClientVisible: true}},
}

func (r ColumnRole) valid() bool {
	return r >= 0 && int(r) < len(roles)
}

// Capabilities returns the flags of the role. An unknown role has none.
func (r ColumnRole) Capabilities() Capabilities {
	if !r.valid() {
		return Capabilities{}
	}
	return roles[r].caps
}

func (r ColumnRole) String() string {
	if !r.valid() {
		return "unknown"
	}
	return roles[r].name
}

// IsKey reports whether the role is part of the primary key.
func (r ColumnRole) IsKey() bool {
	return r == PrimaryKey || r == GeneratedPrimaryKey || r == PrimaryAndParentKey
}

// IsPersisted reports whether the field maps to a column.
func (r ColumnRole) IsPersisted() bool {
	return r != None && r.valid()
}

// ParseColumnRole finds a role by its name, ignoring case.
func ParseColumnRole(name string) (ColumnRole, bool) {
	for i, r := range roles {
		if strings.EqualFold(r.name, name) {
			return ColumnRole(i), true
		}
	}
	return None, false
}
