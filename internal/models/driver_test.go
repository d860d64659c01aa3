package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/suite"
)

type DriverSuite struct {
	suite.Suite
}

func (s *DriverSuite) decode(raw string) Driver {
	var d Driver
	s.Require().NoError(json.Unmarshal([]byte(raw), &d))
	return d
}

func (s *DriverSuite) TestPerMile() {
	d := s.decode(`{"id":"d1","type":"company","payment":{"type":"per_mile","rate":0.55}}`)
	p, ok := d.Payment.(PerMile)
	s.Require().True(ok)
	s.Equal("0.55", p.Rate.String())
	s.Equal(DriverTypeCompany, d.Type)
}

func (s *DriverSuite) TestPercentageNormalizedOnRead() {
	d := s.decode(`{"id":"d1","type":"company","payment":{"type":"percentage","rate":"30"}}`)
	p, ok := d.Payment.(Percentage)
	s.Require().True(ok)
	s.Equal("0.3", p.Rate.String())
}

func (s *DriverSuite) TestLegacyEmployeeTypeAndPayPercentage() {
	d := s.decode(`{"id":"d2","employeeType":"owner-operator","payPercentage":88}`)
	s.True(d.IsOwnerOperator())
	frac, ok := d.PayFraction()
	s.True(ok)
	s.Equal("0.88", frac.String())
}

func (s *DriverSuite) TestMalformedPayment() {
	d := s.decode(`{"id":"d3","type":"company","payment":"fast"}`)
	s.Equal(UnknownPayment{Type: "malformed"}, d.Payment)

	d = s.decode(`{"id":"d3","type":"company","payment":{"type":"hourly","rate":20}}`)
	s.Equal(PaymentType("hourly"), d.Payment.PaymentType())
}

func (s *DriverSuite) TestRoundTripKeepsPayment() {
	d := s.decode(`{"id":"d1","type":"company","payment":{"type":"flat_rate","rate":400}}`)
	b, err := json.Marshal(d)
	s.Require().NoError(err)

	back := s.decode(string(b))
	fr, ok := back.Payment.(FlatRate)
	s.Require().True(ok)
	s.Equal("400", fr.Rate.String())
}

func (s *DriverSuite) TestDeductionPreferencesCovers() {
	p := DeductionPreferences{Fuel: true, ELD: true}
	s.True(p.Covers(ExpenseFuel))
	s.True(p.Covers(ExpenseELD))
	s.False(p.Covers(ExpenseInsurance))
	s.False(p.Covers(ExpenseLumper))
}

func TestDriverSuite(t *testing.T) {
	suite.Run(t, new(DriverSuite))
}
