package entity

// Setting value types, matching the original settings service's TYPES map.
const (
	SettingTypeNumber      = "number"
	SettingTypeTime        = "time"
	SettingTypeBoolean     = "boolean"
	SettingTypeMultiselect = "multiselect"
	SettingTypeText        = "text"
)

// Setting is a single stored key/value pair plus the metadata needed to
// validate and describe it (spec's settings table).
type Setting struct {
	Key         string
	Value       interface{}
	Default     interface{}
	Description string
	Type        string
	Options     []string
	IsDefault   bool
}
