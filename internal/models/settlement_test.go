package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSettlement_UnmarshalLegacyShapes(t *testing.T) {
	raw := `{
  "id": "s1",
  "driverId": "d1",
  "loadId": "L1",
  "loadIds": ["L2", 7, {"bad": true}, ""],
  "loads": [{"loadId": "L3"}, {"id": "L4"}, "L5", 42, {"loadId": {"nested": 1}}, null],
  "grossPay": "1200.50",
  "netPay": 1100
}`
	var s Settlement
	require.NoError(t, json.Unmarshal([]byte(raw), &s))
	require.Equal(t, []string{"42", "7", "L1", "L2", "L3", "L4", "L5"}, s.Loads.Sorted())
	require.Equal(t, "1200.5", s.GrossPay.String())
	require.Equal(t, "1100", s.NetPay.String())
}

func TestSettlement_NoReferences(t *testing.T) {
	var s Settlement
	require.NoError(t, json.Unmarshal([]byte(`{"id":"s1","loadIds":null,"loads":"oops"}`), &s))
	require.Len(t, s.Loads, 0)
}

func TestSettlement_MarshalWritesNormalizedIDs(t *testing.T) {
	s := Settlement{ID: "s1", DriverID: "d1", Loads: NewLoadSet("b", "a")}
	b, err := json.Marshal(s)
	require.NoError(t, err)

	var back Settlement
	require.NoError(t, json.Unmarshal(b, &back))
	require.Equal(t, []string{"a", "b"}, back.Loads.Sorted())
}

func TestLoadSet_SubsetOf(t *testing.T) {
	all := NewLoadSet("a", "b", "c")
	require.True(t, NewLoadSet("a", "c").SubsetOf(all))
	require.False(t, NewLoadSet("a", "z").SubsetOf(all))
	require.True(t, NewLoadSet().SubsetOf(all))
}
