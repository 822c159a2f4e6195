// Package index reads and writes a CA's bookkeeping index: the
// tab-separated certificate database the PKI engine consults when revoking
// certificates and generating CRLs. One line per certificate the CA issued:
//
//	status  expiry  revocation[,reason]  serial  file  subject
//
// The engine owns revocation updates to this file; this package only adds
// entries for newly issued certificates and reads the result back.
package index

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Status is the first column of an index line.
type Status byte

const (
	Valid   Status = 'V'
	Revoked Status = 'R'
	Expired Status = 'E'
)

func (s Status) String() string {
	switch s {
	case Valid:
		return "valid"
	case Revoked:
		return "revoked"
	case Expired:
		return "expired"
	default:
		return fmt.Sprintf("Status(%q)", byte(s))
	}
}

// ErrMalformed is returned for lines that do not have the expected shape.
var ErrMalformed = errors.New("malformed index line")

// Entry is one certificate record.
type Entry struct {
	Status    Status
	Expiry    time.Time
	RevokedAt time.Time
	Reason    string
	// Serial is canonical upper-case hex; see CanonicalSerial.
	Serial  string
	File    string
	Subject string
}

// Line formats e without the trailing newline.
func (e Entry) Line() string {
	revocation := ""
	if e.Status == Revoked {
		revocation = FormatTime(e.RevokedAt)
		if e.Reason != "" {
			revocation += "," + e.Reason
		}
	}
	file := e.File
	if file == "" {
		file = "unknown"
	}
	return strings.Join([]string{
		string(rune(e.Status)),
		FormatTime(e.Expiry),
		revocation,
		CanonicalSerial(e.Serial),
		file,
		e.Subject,
	}, "\t")
}

// Parse reads every entry from r. Blank lines are skipped.
func Parse(r io.Reader) ([]Entry, error) {
	var entries []Entry
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		e, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func parseLine(line string) (Entry, error) {
	cols := strings.Split(line, "\t")
	if len(cols) != 6 {
		return Entry{}, fmt.Errorf("%w: want 6 columns, got %d", ErrMalformed, len(cols))
	}
	if len(cols[0]) != 1 {
		return Entry{}, fmt.Errorf("%w: status %q", ErrMalformed, cols[0])
	}
	e := Entry{
		Status:  Status(cols[0][0]),
		Serial:  CanonicalSerial(cols[3]),
		File:    cols[4],
		Subject: cols[5],
	}
	switch e.Status {
	case Valid, Revoked, Expired:
	default:
		return Entry{}, fmt.Errorf("%w: status %q", ErrMalformed, cols[0])
	}
	var err error
	if e.Expiry, err = ParseTime(cols[1]); err != nil {
		return Entry{}, fmt.Errorf("%w: expiry: %v", ErrMalformed, err)
	}
	if cols[2] != "" {
		when, reason, _ := strings.Cut(cols[2], ",")
		if e.RevokedAt, err = ParseTime(when); err != nil {
			return Entry{}, fmt.Errorf("%w: revocation date: %v", ErrMalformed, err)
		}
		e.Reason = reason
	}
	if e.Status == Revoked && e.RevokedAt.IsZero() {
		return Entry{}, fmt.Errorf("%w: revoked entry without revocation date", ErrMalformed)
	}
	return e, nil
}

// Read parses the index file at path.
func Read(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(bytes.NewReader(data))
}

// Write replaces the index file at path with entries.
func Write(path string, entries []Entry) error {
	var buf bytes.Buffer
	for _, e := range entries {
		buf.WriteString(e.Line())
		buf.WriteByte('\n')
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// Append adds e at the end of the index file at path. The file must exist:
// only a CA's own issuance creates its index.
func Append(path string, e Entry) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(f, e.Line()+"\n"); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Lookup returns the entry with the given serial.
func Lookup(entries []Entry, serial string) (Entry, bool) {
	want := CanonicalSerial(serial)
	for _, e := range entries {
		if e.Serial == want {
			return e, true
		}
	}
	return Entry{}, false
}

// RevokedEntries returns the entries in status R, in file order.
func RevokedEntries(entries []Entry) []Entry {
	var out []Entry
	for _, e := range entries {
		if e.Status == Revoked {
			out = append(out, e)
		}
	}
	return out
}

// CanonicalSerial upper-cases a hex serial, drops surrounding whitespace
// and redundant leading zeros, and pads to an even number of digits.
func CanonicalSerial(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimLeft(s, "0")
	switch {
	case s == "":
		return "00"
	case len(s)%2 == 1:
		return "0" + s
	default:
		return s
	}
}

const (
	utcTimeLayout         = "060102150405Z"
	generalizedTimeLayout = "20060102150405Z"
)

// FormatTime renders t as UTCTime for years 1950–2049 and GeneralizedTime
// otherwise, as X.509 requires.
func FormatTime(t time.Time) string {
	t = t.UTC()
	if y := t.Year(); y >= 1950 && y < 2050 {
		return t.Format(utcTimeLayout)
	}
	return t.Format(generalizedTimeLayout)
}

// ParseTime accepts either layout produced by FormatTime.
func ParseTime(s string) (time.Time, error) {
	switch len(s) {
	case len(utcTimeLayout):
		t, err := time.Parse(utcTimeLayout, s)
		if err != nil {
			return time.Time{}, err
		}
		// Go maps two-digit years 00-68 to 20xx; X.509 splits at 50.
		if t.Year() >= 2050 {
			t = t.AddDate(-100, 0, 0)
		}
		return t, nil
	case len(generalizedTimeLayout):
		return time.Parse(generalizedTimeLayout, s)
	default:
		return time.Time{}, fmt.Errorf("unrecognised time %q", s)
	}
}
