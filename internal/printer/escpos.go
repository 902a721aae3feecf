package printer

import (
	"bytes"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"counter-system/internal/config"
	"counter-system/internal/domain"
)

// ESC/POS control sequences. Field printers only implement the common core,
// so nothing fancier than alignment, emphasis, double size, feed and cut.
var (
	escInit      = []byte{0x1B, 0x40}
	escAlignLeft = []byte{0x1B, 0x61, 0x00}
	escAlignMid  = []byte{0x1B, 0x61, 0x01}
	escBoldOn    = []byte{0x1B, 0x45, 0x01}
	escBoldOff   = []byte{0x1B, 0x45, 0x00}
	gsDoubleSize = []byte{0x1D, 0x21, 0x11}
	gsNormalSize = []byte{0x1D, 0x21, 0x00}
	escFeedLines = []byte{0x1B, 0x64, 0x04}
	gsPartialCut = []byte{0x1D, 0x56, 0x01}
)

// Job is the transient projection handed to the print pipeline: the order
// plus the identity of the printing terminal. Never persisted.
type Job struct {
	Order     domain.Order
	Operator  string // empty for self-service terminals
	PrintedAt time.Time
}

// Encoder turns a Job into the exact byte sequence for the printer. Pure
// and deterministic: identical input yields identical bytes.
type Encoder struct {
	business config.Business
	width    int
}

func NewEncoder(business config.Business, width int) *Encoder {
	if width <= 0 {
		width = 32
	}
	return &Encoder{business: business, width: width}
}

func (e *Encoder) Encode(job Job) []byte {
	var b bytes.Buffer
	o := job.Order

	b.Write(escInit)

	// Header: centered, bold, business name double width.
	b.Write(escAlignMid)
	b.Write(escBoldOn)
	b.Write(gsDoubleSize)
	e.line(&b, strings.ToUpper(e.business.Name))
	b.Write(gsNormalSize)
	if e.business.Address != "" {
		e.line(&b, e.business.Address)
	}
	if e.business.TaxID != "" {
		e.line(&b, "CNPJ: "+e.business.TaxID)
	}
	b.Write(escBoldOff)

	b.Write(escAlignLeft)
	e.rule(&b)

	b.Write(escBoldOn)
	e.line(&b, "PEDIDO: "+o.Number)
	b.Write(escBoldOff)
	e.line(&b, "CLIENTE: "+strings.ToUpper(o.CustomerName))
	if job.Operator != "" {
		e.line(&b, "CAIXA: "+strings.ToUpper(job.Operator))
	}
	e.line(&b, "Data: "+job.PrintedAt.Format("02/01/2006 15:04:05"))
	e.rule(&b)

	// Item block: qty x name padded left, line price right-aligned. A
	// preparation note is indented under its item.
	for _, it := range o.Items {
		left := strconv.Itoa(it.Qty) + "x " + it.Name
		price := money(it.Price.Mul(decimal.NewFromInt(int64(it.Qty))))
		e.line(&b, e.columns(left, price))
		if it.Observation != "" {
			e.line(&b, "  > "+it.Observation)
		}
	}
	if o.Observation != nil && *o.Observation != "" {
		e.line(&b, "Obs: "+*o.Observation)
	}
	e.rule(&b)

	// Total is recomputed from the items, never the stored value.
	b.Write(escBoldOn)
	e.line(&b, e.columns("TOTAL", "R$ "+money(o.ItemsTotal())))
	b.Write(escBoldOff)

	b.Write(escAlignMid)
	e.line(&b, "")
	e.line(&b, "Obrigado pela preferencia!")
	e.line(&b, "Aguarde chamarmos sua senha.")

	b.Write(escFeedLines)
	b.Write(gsPartialCut)
	return b.Bytes()
}

func (e *Encoder) line(b *bytes.Buffer, s string) {
	s = Normalize(s)
	if len(s) > e.width {
		s = s[:e.width]
	}
	b.WriteString(s)
	b.WriteByte('\n')
}

func (e *Encoder) rule(b *bytes.Buffer) {
	b.WriteString(strings.Repeat("-", e.width))
	b.WriteByte('\n')
}

// columns lays out a left field and a right-aligned field on one line,
// truncating the left field when both do not fit. A right field wider than
// the line keeps a single separating space; line() clips the overflow.
func (e *Encoder) columns(left, right string) string {
	left = Normalize(left)
	right = Normalize(right)
	room := e.width - len(right) - 1
	if room < 0 {
		room = 0
	}
	if len(left) > room {
		left = left[:room]
	}
	pad := e.width - len(left) - len(right)
	if pad < 1 {
		pad = 1
	}
	return left + strings.Repeat(" ", pad) + right
}

// money renders a decimal with two places and a comma separator, the format
// on the paper receipt (42 -> "42,00").
func money(d decimal.Decimal) string {
	return strings.Replace(d.StringFixed(2), ".", ",", 1)
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize folds text down to the printable ASCII the printer firmware can
// render: diacritics are decomposed and dropped, anything else outside the
// base set is removed.
func Normalize(s string) string {
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		folded = s
	}
	var sb strings.Builder
	for _, r := range folded {
		if r >= 0x20 && r < 0x7F {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
