package record

import (
	"fmt"

	"github.com/yashagw/herondb/internal/types"
)

// FieldInfo describes a single column: its declared value kind.
type FieldInfo struct {
	fieldType types.Kind
}

func (fi FieldInfo) Type() types.Kind { return fi.fieldType }

type fieldDef struct {
	relation string // qualifier, empty until the schema is bound to a table
	column   string
	info     FieldInfo
}

// Schema is an ordered list of named, typed columns. Base relation schemas
// hold unique bare names; joined schemas may repeat a column name across
// relations, so joined-row lookups resolve by relation and column together.
// A schema is immutable once the relation it describes has been opened.
type Schema struct {
	fields []fieldDef
}

// NewSchema creates a new empty schema.
func NewSchema() *Schema {
	return &Schema{fields: make([]fieldDef, 0)}
}

func (s *Schema) AddField(name string, fieldType types.Kind) {
	s.addQualified("", name, fieldType)
}

func (s *Schema) addQualified(relation, column string, fieldType types.Kind) {
	for i, f := range s.fields {
		if f.relation == relation && f.column == column {
			s.fields[i].info = FieldInfo{fieldType: fieldType}
			return
		}
	}
	s.fields = append(s.fields, fieldDef{
		relation: relation,
		column:   column,
		info:     FieldInfo{fieldType: fieldType},
	})
}

func (s *Schema) AddInt64Field(name string) {
	s.AddField(name, types.KindInt64)
}

func (s *Schema) AddFloat64Field(name string) {
	s.AddField(name, types.KindFloat64)
}

func (s *Schema) AddTextField(name string) {
	s.AddField(name, types.KindText)
}

// Qualify tags every unqualified field with the relation name, binding the
// schema to the table that owns it. Already-qualified fields keep their
// relation.
func (s *Schema) Qualify(relation string) {
	for i := range s.fields {
		if s.fields[i].relation == "" {
			s.fields[i].relation = relation
		}
	}
}

// Copy adds the named field from another schema into this one.
func (s *Schema) Copy(other *Schema, fieldName string) {
	for _, f := range other.fields {
		if f.column == fieldName {
			s.addQualified(f.relation, f.column, f.info.fieldType)
			return
		}
	}
}

// CopyAll adds all fields from another schema into this one, preserving order.
func (s *Schema) CopyAll(other *Schema) {
	for _, f := range other.fields {
		s.addQualified(f.relation, f.column, f.info.fieldType)
	}
}

// Fields returns a copy of the column names slice in declaration order.
func (s *Schema) Fields() []string {
	fields := make([]string, len(s.fields))
	for i, f := range s.fields {
		fields[i] = f.column
	}
	return fields
}

// FieldCount returns the number of columns in the schema.
func (s *Schema) FieldCount() int {
	return len(s.fields)
}

// HasField checks if the schema contains the specified field.
func (s *Schema) HasField(name string) bool {
	return s.Offset(name) >= 0
}

// Type returns the value kind declared for the field. Unknown fields
// report KindNull.
func (s *Schema) Type(name string) types.Kind {
	if i := s.Offset(name); i >= 0 {
		return s.fields[i].info.fieldType
	}
	return types.KindNull
}

// Offset returns the ordinal position of the first field with the bare
// column name, or -1 if absent. Joined schemas with a repeated column name
// must resolve through OffsetRef instead.
func (s *Schema) Offset(name string) int {
	for i, f := range s.fields {
		if f.column == name {
			return i
		}
	}
	return -1
}

// OffsetRef returns the ordinal position of the relation's column. Fields
// never bound to a relation match on column name alone, so schemas built
// without Qualify keep working.
func (s *Schema) OffsetRef(relation, column string) int {
	for i, f := range s.fields {
		if f.column == column && f.relation == relation {
			return i
		}
	}
	for i, f := range s.fields {
		if f.column == column && f.relation == "" {
			return i
		}
	}
	return -1
}

// Join returns a new schema holding this schema's columns followed by the
// other schema's columns, the shape a joined row carries. Fields are kept
// verbatim, duplicates included, so ordinal positions stay aligned with
// Row.Concat.
func (s *Schema) Join(other *Schema) *Schema {
	joined := &Schema{fields: make([]fieldDef, 0, len(s.fields)+len(other.fields))}
	joined.fields = append(joined.fields, s.fields...)
	joined.fields = append(joined.fields, other.fields...)
	return joined
}

func (s *Schema) String() string {
	out := ""
	for i, f := range s.fields {
		if i > 0 {
			out += ", "
		}
		name := f.column
		if f.relation != "" {
			name = f.relation + "." + f.column
		}
		out += fmt.Sprintf("%s %s", name, f.info.fieldType)
	}
	return "(" + out + ")"
}
