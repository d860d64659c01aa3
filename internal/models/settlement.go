package models

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LoadSet is a set of load ids.
type LoadSet map[string]struct{}

func NewLoadSet(ids ...string) LoadSet {
	s := make(LoadSet, len(ids))
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

func (s LoadSet) Add(id string) {
	id = strings.TrimSpace(id)
	if id == "" {
		return
	}
	s[id] = struct{}{}
}

func (s LoadSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// SubsetOf reports whether every id in s is in other. An empty set is a subset of anything.
func (s LoadSet) SubsetOf(other LoadSet) bool {
	for id := range s {
		if !other.Has(id) {
			return false
		}
	}
	return true
}

// Sorted returns the ids in lexical order.
func (s LoadSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

type Settlement struct {
	ID          string          `json:"id"`
	DriverID    string          `json:"driverId"`
	Loads       LoadSet         `json:"-"`
	GrossPay    decimal.Decimal `json:"grossPay"`
	Deductions  decimal.Decimal `json:"deductions"`
	NetPay      decimal.Decimal `json:"netPay"`
	Status      string          `json:"status,omitempty"`
	PeriodStart *time.Time      `json:"periodStart,omitempty"`
	PeriodEnd   *time.Time      `json:"periodEnd,omitempty"`
	CreatedAt   time.Time       `json:"createdAt,omitempty"`
}

type settlementAlias Settlement

func (s Settlement) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		settlementAlias
		LoadIDs []string `json:"loadIds"`
	}{settlementAlias(s), s.Loads.Sorted()})
}

// UnmarshalJSON unions the three stored reference shapes (loadId, loadIds,
// loads[].loadId) into Loads. Elements it cannot read are dropped.
func (s *Settlement) UnmarshalJSON(b []byte) error {
	var raw struct {
		settlementAlias
		LoadID  json.RawMessage `json:"loadId"`
		LoadIDs json.RawMessage `json:"loadIds"`
		Loads   json.RawMessage `json:"loads"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*s = Settlement(raw.settlementAlias)
	s.Loads = NewLoadSet()
	if id, ok := refString(raw.LoadID); ok {
		s.Loads.Add(id)
	}
	for _, r := range refList(raw.LoadIDs) {
		if id, ok := refString(r); ok {
			s.Loads.Add(id)
		}
	}
	for _, r := range refList(raw.Loads) {
		if id, ok := refString(r); ok {
			s.Loads.Add(id)
			continue
		}
		var obj struct {
			LoadID json.RawMessage `json:"loadId"`
			ID     json.RawMessage `json:"id"`
		}
		if json.Unmarshal(r, &obj) != nil {
			continue
		}
		if id, ok := refString(obj.LoadID); ok {
			s.Loads.Add(id)
		} else if id, ok := refString(obj.ID); ok {
			s.Loads.Add(id)
		}
	}
	return nil
}

func refList(r json.RawMessage) []json.RawMessage {
	var out []json.RawMessage
	if len(r) == 0 || json.Unmarshal(r, &out) != nil {
		return nil
	}
	return out
}

func refString(r json.RawMessage) (string, bool) {
	if len(r) == 0 || string(r) == "null" {
		return "", false
	}
	var str string
	if json.Unmarshal(r, &str) == nil {
		str = strings.TrimSpace(str)
		return str, str != ""
	}
	var n json.Number
	if json.Unmarshal(r, &n) == nil {
		return n.String(), true
	}
	return "", false
}
