// Package dbf serialises ledger entries into the dBase III interchange file
// the external general ledger imports. Field order, names, types, and widths
// are fixed by the ledger vendor's import specification and must not change.
package dbf

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/text/encoding/simplifiedchinese"

	"github.com/seaway-erp/seaway-erp/internal/voucher"
)

// ErrEmptyInput indicates an attempt to encode zero entries. A zero-length
// artifact is always a defect, never a success.
var ErrEmptyInput = errors.New("dbf: no ledger entries to encode")

type fieldSpec struct {
	name     string
	typ      byte
	length   int
	decimals int
}

// fields is the vendor-fixed row schema, in order.
var fields = []fieldSpec{
	{"FDATE", 'D', 8, 0},
	{"FTRANSDATE", 'D', 8, 0},
	{"FPERIOD", 'N', 2, 0},
	{"FGROUP", 'C', 10, 0},
	{"FNUM", 'N', 8, 0},
	{"FENTRYID", 'N', 4, 0},
	{"FEXP", 'C', 60, 0},
	{"FACCTID", 'C', 20, 0},
	{"FCLSNAME1", 'C', 20, 0},
	{"FOBJID1", 'C', 20, 0},
	{"FOBJNAME1", 'C', 40, 0},
	{"FTRANSID", 'C', 20, 0},
	{"FCYID", 'C', 10, 0},
	{"FEXCHRATE", 'N', 10, 4},
	{"FDC", 'N', 1, 0},
	{"FFCYAMT", 'N', 18, 2},
	{"FDEBIT", 'N', 18, 2},
	{"FCREDIT", 'N', 18, 2},
	{"FPREPARE", 'C', 20, 0},
	{"FMODULE", 'C', 10, 0},
	{"FDELETED", 'L', 1, 0},
}

const (
	versionByte    = 0x03
	headerBaseSize = 32
	descriptorSize = 32
	terminator     = 0x0D
	eofMarker      = 0x1A
	deletionFlag   = 0x20
)

// RecordSize is the on-disk size of one row including the deletion flag.
func RecordSize() int {
	size := 1
	for _, f := range fields {
		size += f.length
	}
	return size
}

// HeaderSize is the on-disk size of the file header including descriptors.
func HeaderSize() int {
	return headerBaseSize + descriptorSize*len(fields) + 1
}

// Encode renders the ordered entries into the fixed binary format. Encoding
// the same ordered list twice yields byte-identical output: the header date
// is taken from the first entry's accounting date, not the wall clock.
func Encode(entries []voucher.LedgerEntry) ([]byte, error) {
	if len(entries) == 0 {
		return nil, ErrEmptyInput
	}

	buf := &bytes.Buffer{}
	writeHeader(buf, entries)
	for _, f := range fields {
		writeDescriptor(buf, f)
	}
	buf.WriteByte(terminator)

	for i, entry := range entries {
		if err := writeRecord(buf, entry); err != nil {
			return nil, fmt.Errorf("dbf: entry %d: %w", i, err)
		}
	}
	buf.WriteByte(eofMarker)

	out := buf.Bytes()
	want := HeaderSize() + RecordSize()*len(entries) + 1
	if len(out) != want {
		return nil, fmt.Errorf("dbf: encoded %d bytes, want %d", len(out), want)
	}
	return out, nil
}

func writeHeader(buf *bytes.Buffer, entries []voucher.LedgerEntry) {
	date := entries[0].Date
	buf.WriteByte(versionByte)
	buf.WriteByte(byte(date.Year() - 1900))
	buf.WriteByte(byte(date.Month()))
	buf.WriteByte(byte(date.Day()))
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(entries)))
	_ = binary.Write(buf, binary.LittleEndian, uint16(HeaderSize()))
	_ = binary.Write(buf, binary.LittleEndian, uint16(RecordSize()))
	buf.Write(make([]byte, 20))
}

func writeDescriptor(buf *bytes.Buffer, f fieldSpec) {
	name := make([]byte, 11)
	copy(name, f.name)
	buf.Write(name)
	buf.WriteByte(f.typ)
	buf.Write(make([]byte, 4))
	buf.WriteByte(byte(f.length))
	buf.WriteByte(byte(f.decimals))
	buf.Write(make([]byte, 14))
}

func writeRecord(buf *bytes.Buffer, e voucher.LedgerEntry) error {
	buf.WriteByte(deletionFlag)

	dc := "0"
	if e.Credit {
		dc = "1"
	}
	cells := []struct {
		spec  fieldSpec
		value string
	}{
		{fields[0], e.Date.Format("20060102")},
		{fields[1], e.Date.Format("20060102")},
		{fields[2], fmt.Sprintf("%d", e.Period)},
		{fields[3], e.VoucherGroup},
		{fields[4], fmt.Sprintf("%d", e.VoucherNo)},
		{fields[5], fmt.Sprintf("%d", e.EntryID)},
		{fields[6], e.Description},
		{fields[7], e.AccountCode},
		{fields[8], e.CounterpartyClass},
		{fields[9], e.CounterpartyCode},
		{fields[10], e.CounterpartyName},
		{fields[11], e.TransID},
		{fields[12], e.Currency},
		{fields[13], e.ExchangeRate.StringFixed(4)},
		{fields[14], dc},
		{fields[15], e.Amount.StringFixed(2)},
		{fields[16], e.Debit().StringFixed(2)},
		{fields[17], e.CreditAmount().StringFixed(2)},
		{fields[18], e.Preparer},
		{fields[19], e.Module},
		{fields[20], boolCell(e.Deleted)},
	}
	for _, cell := range cells {
		var raw []byte
		var err error
		switch cell.spec.typ {
		case 'C':
			raw, err = charCell(cell.value, cell.spec.length)
		case 'N':
			raw, err = numericCell(cell.value, cell.spec.length)
		case 'D', 'L':
			raw, err = fixedCell(cell.value, cell.spec.length)
		default:
			err = fmt.Errorf("unknown field type %q", cell.spec.typ)
		}
		if err != nil {
			return fmt.Errorf("field %s: %w", cell.spec.name, err)
		}
		buf.Write(raw)
	}
	return nil
}

// charCell encodes the value as GBK, left-justified and space padded. Values
// too long for the cell are truncated rune by rune so a multi-byte character
// is never split.
func charCell(value string, width int) ([]byte, error) {
	encoder := simplifiedchinese.GBK.NewEncoder()
	runes := []rune(value)
	var encoded []byte
	for {
		raw, err := encoder.Bytes([]byte(string(runes)))
		if err != nil {
			return nil, fmt.Errorf("gbk encode: %w", err)
		}
		if len(raw) <= width {
			encoded = raw
			break
		}
		runes = runes[:len(runes)-1]
	}
	out := bytes.Repeat([]byte{' '}, width)
	copy(out, encoded)
	return out, nil
}

// numericCell right-justifies the decimal text in the cell.
func numericCell(value string, width int) ([]byte, error) {
	if len(value) > width {
		return nil, fmt.Errorf("numeric value %q exceeds width %d", value, width)
	}
	out := bytes.Repeat([]byte{' '}, width)
	copy(out[width-len(value):], value)
	return out, nil
}

func fixedCell(value string, width int) ([]byte, error) {
	if len(value) != width {
		return nil, fmt.Errorf("value %q does not fill width %d", value, width)
	}
	return []byte(value), nil
}

func boolCell(v bool) string {
	if v {
		return "T"
	}
	return "F"
}
