package models

// Snapshot is the read-only set of tenant records a computation runs over.
type Snapshot struct {
	Loads              []Load             `json:"loads"`
	Drivers            []Driver           `json:"drivers"`
	Settlements        []Settlement       `json:"settlements"`
	Expenses           []Expense          `json:"expenses"`
	Invoices           []Invoice          `json:"invoices"`
	FactoringCompanies []FactoringCompany `json:"factoringCompanies"`
	Rules              []WorkflowRule     `json:"rules,omitempty"`
	Tasks              []Task             `json:"tasks,omitempty"`
}

func (s Snapshot) DriversByID() map[string]Driver {
	out := make(map[string]Driver, len(s.Drivers))
	for _, d := range s.Drivers {
		out[d.ID] = d
	}
	return out
}

func (s Snapshot) FactoringByID() map[string]FactoringCompany {
	out := make(map[string]FactoringCompany, len(s.FactoringCompanies))
	for _, f := range s.FactoringCompanies {
		out[f.ID] = f
	}
	return out
}

func (s Snapshot) LoadByID(id string) (Load, bool) {
	for _, l := range s.Loads {
		if l.ID == id {
			return l, true
		}
	}
	return Load{}, false
}
