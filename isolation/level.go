package isolation

// Level identifies a point in the multi-tenant hierarchy.
//
// Ordering is load-bearing for shared-data access checks: a more specific
// level implies membership in every broader one above it.
type Level int

const (
	LevelUnspecified Level = iota
	LevelPlatform
	LevelTenant
	LevelOrganization
	LevelDepartment
	LevelUser
)

var levelNames = map[Level]string{
	LevelUnspecified:  "UNSPECIFIED",
	LevelPlatform:     "PLATFORM",
	LevelTenant:       "TENANT",
	LevelOrganization: "ORGANIZATION",
	LevelDepartment:   "DEPARTMENT",
	LevelUser:         "USER",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNSPECIFIED"
}

// ParseLevel maps a level name (as used in configuration and stored sharing
// policies) back to a Level. Unknown names yield LevelUnspecified.
func ParseLevel(name string) Level {
	for level, n := range levelNames {
		if n == name {
			return level
		}
	}
	return LevelUnspecified
}
