package types

// ModuleDescriptor is the static configuration entity for a memory module.
// SearchableFields and IndexedFields are documentation hints for callers,
// never constraints enforced by the central index.
type ModuleDescriptor struct {
	ModuleID    string `json:"module_id" yaml:"module_id"`
	DisplayName string `json:"display_name" yaml:"display_name"`
	Description string `json:"description,omitempty" yaml:"description"`
	Active      bool   `json:"active" yaml:"active"`

	SearchableFields []string `json:"searchable_fields,omitempty" yaml:"searchable_fields"`
	IndexedFields    []string `json:"indexed_fields,omitempty" yaml:"indexed_fields"`
}
