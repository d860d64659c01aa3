package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLoadStatus(t *testing.T) {
	cases := []struct {
		in   string
		want LoadStatus
	}{
		{"delivered", LoadStatusDelivered},
		{"Delivered", LoadStatusDelivered},
		{" COMPLETED ", LoadStatusCompleted},
		{"InTransit", LoadStatusInTransit},
		{"in-transit", LoadStatusInTransit},
		{"In Transit", LoadStatusInTransit},
		{"TONU", LoadStatusTONU},
		{"Canceled", LoadStatusCancelled},
		{"on_hold", LoadStatus("on_hold")},
		{"", LoadStatus("")},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			require.Equal(t, tc.want, ParseLoadStatus(tc.in))
		})
	}
}

func TestLoad_UnmarshalNormalizesStatus(t *testing.T) {
	var l Load
	require.NoError(t, json.Unmarshal([]byte(`{"id":"L1","status":"Delivered","rate":"500","customerName":"ACME"}`), &l))
	require.Equal(t, LoadStatusDelivered, l.Status)
	require.True(t, l.Status.RevenueEligible())
	require.Equal(t, "500", l.GrandTotal().String())

	b, err := json.Marshal(l)
	require.NoError(t, err)
	require.Contains(t, string(b), `"status":"delivered"`)
}

func TestWorkflowFilter_StatusesNormalized(t *testing.T) {
	var f RuleFilter
	require.NoError(t, json.Unmarshal([]byte(`{"loadStatuses":["Completed","in-transit"]}`), &f))
	require.Equal(t, []LoadStatus{LoadStatusCompleted, LoadStatusInTransit}, f.LoadStatuses)
}
