package object

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTruthiness(t *testing.T) {
	require.True(t, (&Integer{Value: 0}).Truthy())
	require.True(t, (&String{Value: ""}).Truthy())
	require.True(t, (&List{}).Truthy())
	require.False(t, NilValue.Truthy())
	require.False(t, False.Truthy())
	require.True(t, True.Truthy())
}

func TestListDisplayQuotesNestedStringsNotTopLevel(t *testing.T) {
	str := &String{Value: "three"}
	require.Equal(t, "three", str.Display())
	require.Equal(t, `"three"`, str.Repr())

	list := &List{Items: []Value{&Integer{Value: 2}, str}}
	require.Equal(t, `[2, "three"]`, list.Display())
}

func TestEnvironmentScopingAndSharedFrames(t *testing.T) {
	global := NewGlobalEnvironment()
	global.Store("x", &Integer{Value: 5})

	inner := global.Extend()
	inner.Store("x", &Integer{Value: 10})

	v, ok := inner.Lookup("x")
	require.True(t, ok)
	require.Equal(t, int64(10), v.(*Integer).Value)

	v, ok = global.Lookup("x")
	require.True(t, ok)
	require.Equal(t, int64(5), v.(*Integer).Value, "inner STORE must not leak into the outer frame")
}

func TestEnvironmentMutualRecursionSharesGlobalFrame(t *testing.T) {
	global := NewGlobalEnvironment()
	snapshotA := global.Snapshot()
	global.Store("late", &Integer{Value: 1})

	v, ok := snapshotA.Lookup("late")
	require.True(t, ok, "a closure's captured chain must observe later STOREs into the shared global frame")
	require.Equal(t, int64(1), v.(*Integer).Value)
}

func TestStructDescriptorFieldIndex(t *testing.T) {
	d := NewStructDescriptor("Vec2", []string{"x", "y"})
	idx, ok := d.FieldIndex("y")
	require.True(t, ok)
	require.Equal(t, 1, idx)

	_, ok = d.FieldIndex("z")
	require.False(t, ok)
}

func TestStructInstanceMutationAliasing(t *testing.T) {
	desc := NewStructDescriptor("Counter", []string{"n"})
	inst := &StructInstance{Descriptor: desc, Values: []Value{&Integer{Value: 0}}}

	alias := inst
	inst.Values[0] = &Integer{Value: 42}

	require.Equal(t, int64(42), alias.Values[0].(*Integer).Value)
}
