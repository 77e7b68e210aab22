package typesystem

// The types below are a small in-memory System/Type/Field/Method
// implementation used by layout's tests and anywhere else that already
// holds a fully materialized type graph in memory rather than a live
// metadata loader. They are not meant to parse anything; callers build the
// graph by hand (see layout's tests for the construction pattern).

// MemSystem is an in-memory System.
type MemSystem struct {
	Modules []*MemModule
}

func (s *MemSystem) AllTypes() []Type {
	var out []Type
	for _, m := range s.Modules {
		for _, t := range m.TypeList {
			out = append(out, t)
		}
	}
	return out
}

func (s *MemSystem) TypeModules() []Module {
	out := make([]Module, len(s.Modules))
	for i, m := range s.Modules {
		out[i] = m
	}
	return out
}

func (s *MemSystem) GetOpenGeneric(t Type) Type {
	mt, ok := t.(*MemType)
	if !ok {
		return nil
	}
	return mt.OpenGeneric
}

// MemModule is an in-memory Module.
type MemModule struct {
	ModuleName string
	TypeList   []*MemType
}

func (m *MemModule) Name() string { return m.ModuleName }
func (m *MemModule) Types() []Type {
	out := make([]Type, len(m.TypeList))
	for i, t := range m.TypeList {
		out[i] = t
	}
	return out
}

// MemType is an in-memory Type. Zero value fields default to "not set"
// (ClassSize defaults to 0, which callers must set to -1 explicitly for
// "unset" per the Type.ClassSize contract).
type MemType struct {
	TypeName, TypeFullName    string
	Base                      *MemType
	IfaceList                 []*MemType
	Interface, ValueType, Primitive, Module, Ghost bool
	Elem                      *MemType
	PrimSize                  int
	FieldList                 []*MemField
	MethodList                []*MemMethod
	ExplicitLayout            bool
	Packing                   int
	Class                     int // -1 means unset.
	GenericParams             []*MemType
	OpenGeneric                *MemType
}

func (t *MemType) Name() string     { return t.TypeName }
func (t *MemType) FullName() string { return t.TypeFullName }

func (t *MemType) BaseType() Type {
	if t.Base == nil {
		return nil
	}
	return t.Base
}

func (t *MemType) Interfaces() []Type {
	out := make([]Type, len(t.IfaceList))
	for i, f := range t.IfaceList {
		out[i] = f
	}
	return out
}

func (t *MemType) IsInterface() bool { return t.Interface }
func (t *MemType) IsValueType() bool { return t.ValueType }
func (t *MemType) IsPrimitive() bool { return t.Primitive }
func (t *MemType) IsModule() bool    { return t.Module }
func (t *MemType) IsGhost() bool     { return t.Ghost }

func (t *MemType) ElementType() Type {
	if t.Elem == nil {
		return nil
	}
	return t.Elem
}

func (t *MemType) PrimitiveSize() int { return t.PrimSize }

func (t *MemType) Fields() []Field {
	out := make([]Field, len(t.FieldList))
	for i, f := range t.FieldList {
		out[i] = f
	}
	return out
}

func (t *MemType) Methods() []Method {
	out := make([]Method, len(t.MethodList))
	for i, m := range t.MethodList {
		out[i] = m
	}
	return out
}

func (t *MemType) IsExplicitLayout() bool { return t.ExplicitLayout }
func (t *MemType) PackingSize() int       { return t.Packing }
func (t *MemType) ClassSize() int         { return t.Class }

func (t *MemType) GenericParameters() []Type {
	out := make([]Type, len(t.GenericParams))
	for i, p := range t.GenericParams {
		out[i] = p
	}
	return out
}

// MemField is an in-memory Field.
type MemField struct {
	FieldName       string
	Type            Type
	Static          bool
	ExplicitOffset  bool
	FieldOffset     int
}

func (f *MemField) Name() string             { return f.FieldName }
func (f *MemField) FieldType() Type           { return f.Type }
func (f *MemField) IsStatic() bool            { return f.Static }
func (f *MemField) HasExplicitOffset() bool   { return f.ExplicitOffset }
func (f *MemField) Offset() int               { return f.FieldOffset }

// MemMethod is an in-memory Method.
type MemMethod struct {
	MethodName                                            string
	Declaring                                              Type
	Sig                                                    Signature
	Virtual, NewSlot, Static, RTSpecialName, Internal, Extern bool
	Overridden                                             []Method
	IsGeneric                                              bool
}

func (m *MemMethod) Name() string             { return m.MethodName }
func (m *MemMethod) DeclaringType() Type      { return m.Declaring }
func (m *MemMethod) Signature() Signature     { return m.Sig }
func (m *MemMethod) IsVirtual() bool          { return m.Virtual }
func (m *MemMethod) IsNewSlot() bool          { return m.NewSlot }
func (m *MemMethod) IsStatic() bool           { return m.Static }
func (m *MemMethod) IsRTSpecialName() bool    { return m.RTSpecialName }
func (m *MemMethod) IsInternalCall() bool     { return m.Internal }
func (m *MemMethod) IsExternal() bool         { return m.Extern }
func (m *MemMethod) Overrides() []Method      { return m.Overridden }
func (m *MemMethod) Generic() bool            { return m.IsGeneric }
