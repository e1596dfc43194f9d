package cache

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func joinWithSeparator(parts ...string) string {
	return strings.Join(parts, KeySeparator)
}

type serializerCase struct {
	name      string
	namespace string
	parts     []any
	want      string
}

func runSerializerCases(t *testing.T, tests []serializerCase) {
	t.Helper()
	serializer := NewDefaultKeySerializer()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := serializer.SerializeKey(tt.namespace, tt.parts...)
			if got != tt.want {
				t.Errorf("SerializeKey() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultKeySerializer_BasicTypes(t *testing.T) {
	runSerializerCases(t, []serializerCase{
		{
			name:      "no parts",
			namespace: "entity:user",
			want:      "entity:user",
		},
		{
			name:      "single int",
			namespace: "entity:user",
			parts:     []any{42},
			want:      joinWithSeparator("entity:user", "42"),
		},
		{
			name:      "multiple basic types",
			namespace: "entity:user",
			parts:     []any{int64(1), "id", true, 3.14},
			want:      joinWithSeparator("entity:user", "1", "id", "true", "3.14"),
		},
		{
			name:      "string with separator chars",
			namespace: "entity:user",
			parts:     []any{"hello:world"},
			want:      joinWithSeparator("entity:user", "hello:world"),
		},
	})
}

func TestDefaultKeySerializer_NilValues(t *testing.T) {
	runSerializerCases(t, []serializerCase{
		{name: "nil interface", namespace: "ns", parts: []any{nil}, want: joinWithSeparator("ns", "nil")},
		{name: "nil pointer", namespace: "ns", parts: []any{(*int)(nil)}, want: joinWithSeparator("ns", "nil")},
		{name: "nil slice", namespace: "ns", parts: []any{([]int)(nil)}, want: joinWithSeparator("ns", "slice:nil")},
		{name: "nil map", namespace: "ns", parts: []any{(map[string]int)(nil)}, want: joinWithSeparator("ns", "map:nil")},
	})
}

func TestDefaultKeySerializer_Collections(t *testing.T) {
	runSerializerCases(t, []serializerCase{
		{name: "empty slice", namespace: "ns", parts: []any{[]int{}}, want: joinWithSeparator("ns", "slice[0]:{}")},
		{name: "string slice", namespace: "ns", parts: []any{[]string{"email", "org_id"}}, want: joinWithSeparator("ns", "slice[2]:{email,org_id}")},
		{name: "nested slice", namespace: "ns", parts: []any{[][]int{{1, 2}, {3}}}, want: joinWithSeparator("ns", "slice[2]:{slice[2]:{1,2},slice[1]:{3}}")},
		{name: "int array", namespace: "ns", parts: []any{[3]int{1, 2, 3}}, want: joinWithSeparator("ns", "array[3]:{1,2,3}")},
		{name: "sorted map", namespace: "ns", parts: []any{map[string]int{"b": 2, "a": 1}}, want: joinWithSeparator("ns", "map[2]:{a=1,b=2}")},
	})
}

func TestDefaultKeySerializer_CanonicalText(t *testing.T) {
	id := uuid.MustParse("7f1b1a52-54a4-4f3e-9d55-2a4c1c0f7e11")
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))

	runSerializerCases(t, []serializerCase{
		{name: "uuid uses its string form", namespace: "ns", parts: []any{id}, want: joinWithSeparator("ns", id.String())},
		{name: "time is normalized to UTC", namespace: "ns", parts: []any{ts}, want: joinWithSeparator("ns", "2024-03-01T11:00:00Z")},
		{name: "bytes are hex encoded", namespace: "ns", parts: []any{[]byte{0xde, 0xad}}, want: joinWithSeparator("ns", "bytes:dead")},
	})
}

func TestDefaultKeySerializer_Structs(t *testing.T) {
	type compositeValue struct {
		OrgID int
		Email string
		note  string
	}

	runSerializerCases(t, []serializerCase{
		{
			name:      "exported fields only",
			namespace: "ns",
			parts:     []any{compositeValue{OrgID: 1, Email: "a@b.c", note: "ignored"}},
			want:      joinWithSeparator("ns", "struct:{OrgID:1,Email:a@b.c}"),
		},
		{
			name:      "pointer is dereferenced",
			namespace: "ns",
			parts:     []any{&compositeValue{OrgID: 2}},
			want:      joinWithSeparator("ns", "struct:{OrgID:2,Email:}"),
		},
	})
}

func TestDefaultKeySerializer_Stability(t *testing.T) {
	serializer := NewDefaultKeySerializer()
	parts := []any{1, "hello", []int{1, 2, 3}, map[string]int{"a": 1, "b": 2}}

	key1 := serializer.SerializeKey("entity:user", parts...)
	key2 := serializer.SerializeKey("entity:user", parts...)

	if key1 != key2 {
		t.Errorf("Key serialization should be stable across runs: %v != %v", key1, key2)
	}
}

func TestDefaultKeySerializer_ChannelFallback(t *testing.T) {
	serializer := NewDefaultKeySerializer()
	key := serializer.SerializeKey("ns", make(chan int))

	if !strings.HasPrefix(key, joinWithSeparator("ns", "chan")+":") {
		t.Errorf("Channel should be serialized with chan: prefix, got: %v", key)
	}
}

func BenchmarkDefaultKeySerializer(b *testing.B) {
	serializer := NewDefaultKeySerializer()
	parts := []any{"v1", "id", uuid.New()}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		serializer.SerializeKey("entity:user", parts...)
	}
}
