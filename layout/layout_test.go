package layout

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stjordanis/MOSA-Project/typesystem"
)

func primType(name string, size int) *typesystem.MemType {
	return &typesystem.MemType{TypeName: name, TypeFullName: name, Primitive: true, PrimSize: size, Class: -1}
}

// TestSequentialLayout is §8 scenario 1: S{i4 a; i1 b; i4 c}, native
// pointer = 4, default packing gives offsets 0/4/8 and size 12; packing=1
// gives offsets 0/4/5 and size 9.
func TestSequentialLayout(t *testing.T) {
	i4 := primType("i4", 4)
	i1 := primType("i1", 1)

	build := func(packing int) *typesystem.MemType {
		s := &typesystem.MemType{TypeName: "S", TypeFullName: "S", ValueType: true, Class: -1, Packing: packing}
		s.FieldList = []*typesystem.MemField{
			{FieldName: "a", Type: i4},
			{FieldName: "b", Type: i1},
			{FieldName: "c", Type: i4},
		}
		return s
	}

	t.Run("default packing", func(t *testing.T) {
		s := build(0)
		sys := &typesystem.MemSystem{Modules: []*typesystem.MemModule{{ModuleName: "m", TypeList: []*typesystem.MemType{i4, i1, s}}}}
		l, err := New(sys, 4, 4)
		require.NoError(t, err)

		tl, err := l.Get(s)
		require.NoError(t, err)
		require.Equal(t, 12, tl.Size)
		require.Equal(t, 0, tl.FieldOffset(s.FieldList[0]))
		require.Equal(t, 4, tl.FieldOffset(s.FieldList[1]))
		require.Equal(t, 8, tl.FieldOffset(s.FieldList[2]))
	})

	t.Run("packing 1", func(t *testing.T) {
		s := build(1)
		sys := &typesystem.MemSystem{Modules: []*typesystem.MemModule{{ModuleName: "m", TypeList: []*typesystem.MemType{i4, i1, s}}}}
		l, err := New(sys, 4, 4)
		require.NoError(t, err)

		tl, err := l.Get(s)
		require.NoError(t, err)
		require.Equal(t, 9, tl.Size)
		require.Equal(t, 0, tl.FieldOffset(s.FieldList[0]))
		require.Equal(t, 4, tl.FieldOffset(s.FieldList[1]))
		require.Equal(t, 5, tl.FieldOffset(s.FieldList[2]))
	})
}

// TestExplicitLayout is §8 scenario 2: E{[0] i4 x; [0] i4 y; [8] i1 z} with
// ClassSize=16 gives size=16, offset(x)=0, offset(y)=0, offset(z)=8.
func TestExplicitLayout(t *testing.T) {
	i4 := primType("i4", 4)
	i1 := primType("i1", 1)

	e := &typesystem.MemType{TypeName: "E", TypeFullName: "E", ValueType: true, ExplicitLayout: true, Class: 16}
	e.FieldList = []*typesystem.MemField{
		{FieldName: "x", Type: i4, ExplicitOffset: true, FieldOffset: 0},
		{FieldName: "y", Type: i4, ExplicitOffset: true, FieldOffset: 0},
		{FieldName: "z", Type: i1, ExplicitOffset: true, FieldOffset: 8},
	}

	sys := &typesystem.MemSystem{Modules: []*typesystem.MemModule{{ModuleName: "m", TypeList: []*typesystem.MemType{i4, i1, e}}}}
	l, err := New(sys, 4, 4)
	require.NoError(t, err)

	tl, err := l.Get(e)
	require.NoError(t, err)
	require.Equal(t, 16, tl.Size)
	require.Equal(t, 0, tl.FieldOffset(e.FieldList[0]))
	require.Equal(t, 0, tl.FieldOffset(e.FieldList[1]))
	require.Equal(t, 8, tl.FieldOffset(e.FieldList[2]))
}

// TestVirtualDispatch is §8 scenario 3: class A{virtual M1(); virtual M2();}
// class B:A{override M1(); virtual M3();} gives methodTable(B) =
// [B.M1, A.M2, B.M3] and IsMethodOverridden(A.M1) = true.
func TestVirtualDispatch(t *testing.T) {
	a := &typesystem.MemType{TypeName: "A", TypeFullName: "A", Class: -1}
	aM1 := &typesystem.MemMethod{MethodName: "M1", Declaring: a, Virtual: true, NewSlot: true}
	aM2 := &typesystem.MemMethod{MethodName: "M2", Declaring: a, Virtual: true, NewSlot: true}
	a.MethodList = []*typesystem.MemMethod{aM1, aM2}

	b := &typesystem.MemType{TypeName: "B", TypeFullName: "B", Base: a, Class: -1}
	bM1 := &typesystem.MemMethod{MethodName: "M1", Declaring: b, Virtual: true}
	bM3 := &typesystem.MemMethod{MethodName: "M3", Declaring: b, Virtual: true, NewSlot: true}
	b.MethodList = []*typesystem.MemMethod{bM1, bM3}

	sys := &typesystem.MemSystem{Modules: []*typesystem.MemModule{{ModuleName: "m", TypeList: []*typesystem.MemType{a, b}}}}
	l, err := New(sys, 4, 4)
	require.NoError(t, err)

	tl, err := l.Get(b)
	require.NoError(t, err)
	require.Equal(t, []typesystem.Method{bM1, aM2, bM3}, tl.MethodTable)
	require.True(t, l.IsMethodOverridden(aM1))
	require.False(t, l.IsMethodOverridden(aM2))
	require.False(t, l.IsMethodOverridden(bM3))

	aTl, err := l.Get(a)
	require.NoError(t, err)
	require.Equal(t, []typesystem.Method{aM1, aM2}, aTl.MethodTable)
}

func TestIsCompoundType(t *testing.T) {
	i4 := primType("i4", 4)
	big := &typesystem.MemType{TypeName: "Big", TypeFullName: "Big", ValueType: true, Class: -1}
	big.FieldList = []*typesystem.MemField{
		{FieldName: "a", Type: i4},
		{FieldName: "b", Type: i4},
		{FieldName: "c", Type: i4},
	}

	sys := &typesystem.MemSystem{Modules: []*typesystem.MemModule{{ModuleName: "m", TypeList: []*typesystem.MemType{i4, big}}}}
	l, err := New(sys, 4, 4)
	require.NoError(t, err)

	compound, err := l.IsCompoundType(big)
	require.NoError(t, err)
	require.True(t, compound, "a 12-byte value type must be compound on a 4-byte-pointer target")

	compound, err = l.IsCompoundType(i4)
	require.NoError(t, err)
	require.False(t, compound)
}
