package orm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func userSchema() *Schema {
	return NewSchema("User").
		Field("uid", FieldSpec{}).
		Field("role", FieldSpec{Value: "member"}).
		Field("info", FieldSpec{Default: func(Record) any { return map[string]any{} }}).
		IKeys("user-uid-model-test")
}

func TestSchemaNewFillsDefaultsAndTimestamp(t *testing.T) {
	s := userSchema()

	row, err := s.New(Record{"uid": int64(42)})
	require.NoError(t, err)
	require.Equal(t, int64(42), row["uid"])
	require.Equal(t, "member", row["role"])
	require.NotNil(t, row["info"])
	require.NotNil(t, row["timestamp"])
}

func TestSchemaNewMandatoryFieldMissing(t *testing.T) {
	s := userSchema()

	_, err := s.New(Record{"role": "admin"})
	require.ErrorIs(t, err, ErrMandatoryField)
}

func TestSchemaNewCallableDefaultSeesPriorFields(t *testing.T) {
	s := NewSchema("Derived").
		Field("base", FieldSpec{Value: int64(10)}).
		Field("doubled", FieldSpec{Default: func(r Record) any {
			base, _ := r["base"].(int64)
			return base * 2
		}})

	row, err := s.New(Record{})
	require.NoError(t, err)
	require.EqualValues(t, 20, row["doubled"])
}

func TestSchemaEqualIgnoresIDAndTimestamp(t *testing.T) {
	s := userSchema()

	a := Record{"id": "0000000000000000", "uid": int64(42), "role": "admin", "info": map[string]any{}, "timestamp": int64(1)}
	b := Record{"id": "0000000000000001", "uid": int64(42), "role": "admin", "info": map[string]any{}, "timestamp": int64(2)}
	require.True(t, s.Equal(a, b))
	require.Equal(t, s.Hash(a), s.Hash(b))

	c := Record{"id": "0000000000000002", "uid": int64(42), "role": "owner", "info": map[string]any{}, "timestamp": int64(3)}
	require.False(t, s.Equal(a, c))
}

func TestTableInsertModelAppliesSchemaAndIndex(t *testing.T) {
	RegisterPredicate("user-uid-model-test", func(r Record) string {
		uid, _ := r["uid"].(int64)
		return "uid:" + itoaInt64(uid)
	})

	schema := userSchema()
	tbl := newTestTable(t, "UserModel")

	row, err := tbl.InsertModel(schema, Record{"uid": int64(7)})
	require.NoError(t, err)
	require.Equal(t, "member", row["role"])
	require.NotEmpty(t, row.ID())

	found, err := tbl.Select(false, "inter", []string{"uid:7"}, "", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, row.ID(), found[0].ID())
}

func itoaInt64(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	if neg {
		b = append([]byte{'-'}, b...)
	}
	return string(b)
}
