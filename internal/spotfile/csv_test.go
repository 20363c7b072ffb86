package spotfile

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/spotgrid/internal/model"
)

const sample = `id,market,air_date,time_in,time_out,duration,kind,revenue,revenue_type,agency,sector,billing_code,language
1,DAL,2024-01-01,20:00:00,21:00:00,,Commercial,100.00,Standard,,RETAIL,Acme:Local,Mandarin
2,LAX,2024-01-02,00:00:00,23:59:59,86400,,200,Standard,Media Co,MEDIA,,
3,HOU,2024-01-03,23:30,00:15,,,12.5,,,,,
`

func TestParseCSV(t *testing.T) {
	spots, err := ParseCSV(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, spots, 3)

	first := spots[0]
	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, "DAL", first.Market)
	assert.Equal(t, time.Monday, first.DayOfWeek)
	assert.Equal(t, time.Hour, first.Duration)
	assert.Equal(t, model.KindCommercial, first.Kind)
	assert.True(t, decimal.NewFromInt(100).Equal(first.Revenue))
	assert.Nil(t, first.Agency)
	require.NotNil(t, first.Language)
	assert.Equal(t, "Mandarin", *first.Language)

	assert.Equal(t, 24*time.Hour, spots[1].Duration)
	require.NotNil(t, spots[1].Sector)
	assert.Equal(t, "MEDIA", *spots[1].Sector)
	assert.Nil(t, spots[1].Language)

	assert.Equal(t, 45*time.Minute, spots[2].Duration)
	assert.Equal(t, model.KindCommercial, spots[2].Kind)
}

func TestParseCSV_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"missing column", "id,market\n1,DAL\n", `missing column "air_date"`},
		{"bad id", "id,market,air_date,time_in,time_out,revenue\nx,DAL,2024-01-01,20:00,21:00,1\n", "row 2"},
		{"bad date", "id,market,air_date,time_in,time_out,revenue\n1,DAL,01/01/2024,20:00,21:00,1\n", "air_date"},
		{"bad revenue", "id,market,air_date,time_in,time_out,revenue\n1,DAL,2024-01-01,20:00,21:00,abc\n", "revenue"},
		{"bad duration", "id,market,air_date,time_in,time_out,revenue,duration\n1,DAL,2024-01-01,20:00,21:00,1,forever\n", "duration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCSV(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseCSV_MalformedWindowKeepsZeroDuration(t *testing.T) {
	spots, err := ParseCSV(strings.NewReader("id,market,air_date,time_in,time_out,revenue\n5,DAL,2024-01-01,20:00,20:00,10\n"))
	require.NoError(t, err)
	require.Len(t, spots, 1)
	assert.Zero(t, spots[0].Duration)
}

func TestParseCSV_Empty(t *testing.T) {
	spots, err := ParseCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, spots)
}

func TestParseCSV_SkipsBlankRows(t *testing.T) {
	spots, err := ParseCSV(strings.NewReader("id,market,air_date,time_in,time_out,revenue\n1,DAL,2024-01-01,20:00,21:00,1\n,,,,,\n"))
	require.NoError(t, err)
	assert.Len(t, spots, 1)
}
