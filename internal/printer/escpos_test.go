package printer

import (
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"counter-system/internal/config"
	"counter-system/internal/domain"
)

func testBusiness() config.Business {
	return config.Business{
		Name:    "Heros Burger",
		Address: "Rua Antonio Moreira, 123",
		TaxID:   "00.000.000/0001-00",
	}
}

func testJob() Job {
	return Job{
		Order: domain.Order{
			Number:       "482",
			CustomerName: "Cliente",
			Items: []domain.LineItem{
				{Name: "Burger", Price: decimal.RequireFromString("18.00"), Qty: 2},
				{Name: "Soda", Price: decimal.RequireFromString("6.00"), Qty: 1},
			},
		},
		Operator:  "maria",
		PrintedAt: time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC),
	}
}

// stripControls drops the ESC/POS command bytes, leaving the printed text.
func stripControls(payload []byte) string {
	var sb strings.Builder
	for i := 0; i < len(payload); {
		switch payload[i] {
		case 0x1B:
			if i+1 < len(payload) && payload[i+1] == 0x40 {
				i += 2
			} else {
				i += 3
			}
		case 0x1D:
			i += 3
		default:
			sb.WriteByte(payload[i])
			i++
		}
	}
	return sb.String()
}

func TestEncodeDeterministic(t *testing.T) {
	enc := NewEncoder(testBusiness(), 32)
	assert.Equal(t, enc.Encode(testJob()), enc.Encode(testJob()))
}

func TestEncodeGolden(t *testing.T) {
	enc := NewEncoder(testBusiness(), 32)
	g := goldie.New(t)
	g.Assert(t, "receipt", enc.Encode(testJob()))
}

func TestEncodeContent(t *testing.T) {
	enc := NewEncoder(testBusiness(), 32)
	text := stripControls(enc.Encode(testJob()))
	lines := strings.Split(text, "\n")

	rule := strings.Repeat("-", 32)
	require.GreaterOrEqual(t, len(lines), 16)
	assert.Equal(t, "HEROS BURGER", lines[0])
	assert.Equal(t, "Rua Antonio Moreira, 123", lines[1])
	assert.Equal(t, "CNPJ: 00.000.000/0001-00", lines[2])
	assert.Equal(t, rule, lines[3])
	assert.Equal(t, "PEDIDO: 482", lines[4])
	assert.Equal(t, "CLIENTE: CLIENTE", lines[5])
	assert.Equal(t, "CAIXA: MARIA", lines[6])
	assert.Equal(t, "Data: 14/03/2026 18:30:00", lines[7])
	assert.Equal(t, rule, lines[8])

	// item lines carry the line price (qty * unit) right-aligned at width 32
	assert.Len(t, lines[9], 32)
	assert.True(t, strings.HasPrefix(lines[9], "2x Burger"))
	assert.True(t, strings.HasSuffix(lines[9], "36,00"))
	assert.Len(t, lines[10], 32)
	assert.True(t, strings.HasPrefix(lines[10], "1x Soda"))
	assert.True(t, strings.HasSuffix(lines[10], "6,00"))
	assert.Equal(t, rule, lines[11])

	// total is recomputed from the items: 2*18 + 6
	assert.Len(t, lines[12], 32)
	assert.True(t, strings.HasPrefix(lines[12], "TOTAL"))
	assert.True(t, strings.HasSuffix(lines[12], "R$ 42,00"))
}

func TestEncodeObservations(t *testing.T) {
	job := testJob()
	job.Order.Items[0].Observation = "sem cebola"
	note := "entregar na mesa 4"
	job.Order.Observation = &note

	enc := NewEncoder(testBusiness(), 32)
	text := stripControls(enc.Encode(job))

	assert.Contains(t, text, "\n  > sem cebola\n")
	assert.Contains(t, text, "\nObs: entregar na mesa 4\n")
}

func TestEncodeSkipsOperatorWhenEmpty(t *testing.T) {
	job := testJob()
	job.Operator = ""
	enc := NewEncoder(testBusiness(), 32)
	assert.NotContains(t, stripControls(enc.Encode(job)), "CAIXA")
}

func TestEncodeTruncatesLongItemName(t *testing.T) {
	job := testJob()
	job.Order.Items = []domain.LineItem{{
		Name:  strings.Repeat("X", 60),
		Price: decimal.RequireFromString("1.00"),
		Qty:   1,
	}}
	enc := NewEncoder(testBusiness(), 32)
	for _, line := range strings.Split(stripControls(enc.Encode(job)), "\n") {
		assert.LessOrEqual(t, len(line), 32)
	}
}

func TestEncodeOverlongPriceClipsLine(t *testing.T) {
	job := testJob()
	job.Order.Items = []domain.LineItem{{
		Name:  "Catering",
		Price: decimal.RequireFromString("99999999999999999999999999999999.00"),
		Qty:   1,
	}}
	enc := NewEncoder(testBusiness(), 32)

	var payload []byte
	require.NotPanics(t, func() { payload = enc.Encode(job) })
	for _, line := range strings.Split(stripControls(payload), "\n") {
		assert.LessOrEqual(t, len(line), 32)
	}
}

func TestEncodeFramedByInitAndCut(t *testing.T) {
	enc := NewEncoder(testBusiness(), 32)
	payload := enc.Encode(testJob())
	assert.Equal(t, []byte{0x1B, 0x40}, payload[:2])
	assert.Equal(t, []byte{0x1D, 0x56, 0x01}, payload[len(payload)-3:])
}

func TestMoney(t *testing.T) {
	assert.Equal(t, "42,00", money(decimal.NewFromInt(42)))
	assert.Equal(t, "0,50", money(decimal.RequireFromString("0.5")))
	assert.Equal(t, "1234,99", money(decimal.RequireFromString("1234.99")))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "Acai com granola", Normalize("Açaí com granola"))
	assert.Equal(t, "Pao de queijo", Normalize("Pão de queijo"))
	assert.Equal(t, "cafe", Normalize("café"))
	assert.Equal(t, "plain ascii!", Normalize("plain ascii!"))
	assert.Equal(t, "snow", Normalize("snow☃"), "unmappable runes dropped")
}
