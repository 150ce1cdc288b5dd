package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "date", input: "2025-06-20", want: "2025-06-20"},
		{name: "padded", input: " 2025-06-20 ", want: "2025-06-20"},
		{name: "timestamp", input: "2025-06-20T08:15:00Z", want: "2025-06-20"},
		{name: "timestamp with offset", input: "2025-06-20T23:30:00+05:30", want: "2025-06-20"},
		{name: "local timestamp", input: "2025-06-20 23:59:59", want: "2025-06-20"},
		{name: "invalid", input: "20/06/2025", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got.String() != tt.want {
				t.Errorf("ParseDate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestToday(t *testing.T) {
	now := time.Date(2025, time.June, 1, 22, 0, 0, 0, time.UTC)
	assert.Equal(t, NewDate(2025, time.June, 1), Today(now, nil))
	assert.Equal(t, NewDate(2025, time.June, 2), Today(now, time.FixedZone("EAT", 3*60*60)))
	assert.Equal(t, NewDate(2025, time.June, 1), Today(now, time.FixedZone("WAT", 1*60*60)))
}

func TestDate_arithmetic(t *testing.T) {
	june1st := NewDate(2025, time.June, 1)
	june16th := june1st.AddDays(15)

	assert.Equal(t, "2025-06-16", june16th.String())
	assert.Equal(t, 15, june1st.DaysUntil(june16th))
	assert.Equal(t, -15, june16th.DaysUntil(june1st))
	assert.True(t, june1st.Before(june16th))
	assert.True(t, june16th.After(june1st))
	assert.True(t, june1st.AddDays(30).Equal(NewDate(2025, time.July, 1)))
}

func TestDate_JSON(t *testing.T) {
	type payload struct {
		Date  Date  `json:"date"`
		Other *Date `json:"other"`
	}

	data, err := json.Marshal(payload{Date: NewDate(2025, time.June, 20)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"date": "2025-06-20", "other": null}`, string(data))

	var p payload
	require.NoError(t, json.Unmarshal([]byte(`{"date": "2025-06-20T10:00:00Z", "other": ""}`), &p))
	assert.Equal(t, "2025-06-20", p.Date.String())
	require.NotNil(t, p.Other)
	assert.True(t, p.Other.IsZero())

	assert.Error(t, json.Unmarshal([]byte(`{"date": "tomorrow"}`), &p))
	assert.Error(t, json.Unmarshal([]byte(`{"date": 20250620}`), &p))
}

func TestDate_Scan(t *testing.T) {
	tests := []struct {
		name    string
		src     interface{}
		want    string
		wantErr bool
	}{
		{name: "nil", src: nil, want: ""},
		{name: "time", src: time.Date(2025, time.June, 20, 0, 0, 0, 0, time.UTC), want: "2025-06-20"},
		{name: "bytes", src: []byte("2025-06-20"), want: "2025-06-20"},
		{name: "string", src: "2025-06-20", want: "2025-06-20"},
		{name: "int", src: 20250620, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Date
			if err := d.Scan(tt.src); (err != nil) != tt.wantErr {
				t.Fatalf("Scan() error = %v, wantErr %v", err, tt.wantErr)
			}
			if d.String() != tt.want {
				t.Errorf("Scan() = %v, want %v", d, tt.want)
			}
		})
	}

	v, err := Date{}.Value()
	assert.NoError(t, err)
	assert.Nil(t, v)
	v, err = NewDate(2025, time.June, 20).Value()
	assert.NoError(t, err)
	assert.Equal(t, "2025-06-20", v)
}
