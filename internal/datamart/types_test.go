package datamart

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPeriod(t *testing.T) {
	tests := []struct {
		name    string
		year    int
		month   int
		key     string
		quarter int
		half    int
	}{
		{name: "january", year: 2015, month: 1, key: "2015-01", quarter: 1, half: 1},
		{name: "march closes q1", year: 2015, month: 3, key: "2015-03", quarter: 1, half: 1},
		{name: "april opens q2", year: 2015, month: 4, key: "2015-04", quarter: 2, half: 1},
		{name: "june closes h1", year: 2015, month: 6, key: "2015-06", quarter: 2, half: 1},
		{name: "july opens h2", year: 2015, month: 7, key: "2015-07", quarter: 3, half: 2},
		{name: "december", year: 2019, month: 12, key: "2019-12", quarter: 4, half: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPeriod(tt.year, tt.month)
			assert.Equal(t, tt.key, p.PeriodKey)
			assert.Equal(t, tt.quarter, p.Quarter)
			assert.Equal(t, tt.half, p.Half)
		})
	}
}

func TestServiceFor(t *testing.T) {
	smp := ServiceFor(ServiceSMP)
	assert.Equal(t, "Serviço Móvel Pessoal", smp.DisplayName)

	other := ServiceFor("TVA")
	assert.Equal(t, "TVA", other.Code)
	assert.Equal(t, "Other", other.Category)
}

func TestFactMetricKey(t *testing.T) {
	f := FactMetric{PeriodKey: "2015-01", EntityName: "TIM", ServiceCode: "SMP"}
	assert.Equal(t, "2015-01|TIM|SMP", f.Key())
}
