// Package acos turns a CSV of ACO identifiers into rows for the acos table.
package acos

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// CMSIDSize is the width of acos.cms_id.
const CMSIDSize = 5

// Excel saves CSV as UTF-8 with BOM.
var byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

var (
	ErrMissingHeaders = errors.New("CSV must have headers 'cms_id' and 'name'")
	ErrNoRows         = errors.New("no data rows found")
)

const (
	insertHeader = "INSERT INTO acos (uuid, cms_id, client_id, name, termination_details) VALUES"
	valuesTuple  = "(:uuid, :cms_id, :client_id, :name, NULL)"
)

// Aco is one row of the acos table. id and the timestamps are database
// defaults; ClientID repeats UUID.
type Aco struct {
	UUID     string `db:"uuid"`
	CMSID    string `db:"cms_id"`
	ClientID string `db:"client_id"`
	Name     string `db:"name"`
}

// Entry is one usable line of the input CSV.
type Entry struct {
	CMSID string
	Name  string
}

// Parse reads entries from a CSV with cms_id and name columns in any order.
// Header names are compared without BOM and surrounding whitespace. Lines
// where either value is blank are skipped.
func Parse(r io.Reader) ([]Entry, error) {
	br := bufio.NewReader(r)
	if bom, _ := br.Peek(len(byteOrderMark)); bytes.Equal(bom, byteOrderMark) {
		_, _ = br.Discard(len(byteOrderMark))
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w (got: none)", ErrMissingHeaders)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	cmsIdx, nameIdx := -1, -1
	for i, h := range header {
		switch normalizeHeader(h) {
		case "cms_id":
			cmsIdx = i
		case "name":
			nameIdx = i
		}
	}
	if cmsIdx < 0 || nameIdx < 0 {
		return nil, fmt.Errorf("%w (got: %q)", ErrMissingHeaders, header)
	}

	var entries []Entry
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}
		e := Entry{CMSID: field(record, cmsIdx), Name: field(record, nameIdx)}
		if e.CMSID == "" || e.Name == "" {
			continue
		}
		entries = append(entries, e)
	}
	if len(entries) == 0 {
		return nil, ErrNoRows
	}
	return entries, nil
}

func normalizeHeader(name string) string {
	return strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(name), "\ufeff"))
}

func field(record []string, i int) string {
	if i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// NewAcos assigns every entry a fresh v4 UUID, used as uuid and client_id,
// and truncates cms_id to the column width.
func NewAcos(entries []Entry) []Aco {
	acos := make([]Aco, len(entries))
	for i, e := range entries {
		id := uuid.NewString()
		acos[i] = Aco{UUID: id, CMSID: truncate(e.CMSID, CMSIDSize), ClientID: id, Name: e.Name}
	}
	return acos
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Render writes a single INSERT statement for acos, ready for psql.
func Render(w io.Writer, acos []Aco) error {
	if len(acos) == 0 {
		return ErrNoRows
	}

	values := make([]string, len(acos))
	for i, a := range acos {
		query, args, err := sqlx.Named(valuesTuple, a)
		if err != nil {
			return fmt.Errorf("failed to bind row %d: %w", i+1, err)
		}
		values[i] = "  " + inline(query, args)
	}

	_, err := fmt.Fprintf(w, "-- Direct insert into acos from CSV. Run with: psql $DATABASE_URL -f thisfile.sql\n%s\n%s\n;\n",
		insertHeader, strings.Join(values, ",\n"))
	return err
}

// inline replaces each ? bindvar of query with its argument as a quoted
// string literal.
func inline(query string, args []interface{}) string {
	parts := strings.Split(query, "?")
	var sb strings.Builder
	for i, part := range parts {
		sb.WriteString(part)
		if i < len(args) {
			sb.WriteString(quote(fmt.Sprint(args[i])))
		}
	}
	return sb.String()
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Connect opens the Postgres database at url.
func Connect(ctx context.Context, url string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// Exec inserts acos in one transaction.
func Exec(ctx context.Context, db *sqlx.DB, acos []Aco) (int64, error) {
	if len(acos) == 0 {
		return 0, ErrNoRows
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.NamedExecContext(ctx, insertHeader+" "+valuesTuple, acos)
	if err != nil {
		return 0, fmt.Errorf("failed to insert acos: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return n, nil
}
