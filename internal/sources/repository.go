package sources

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/seaway-erp/seaway-erp/internal/orgs"
	"github.com/seaway-erp/seaway-erp/internal/platform/db"
)

// Query bounds one export run's record selection.
type Query struct {
	Type      RecordType
	Direction Direction
	Scope     orgs.Scope
	Filter    Filter
}

// Repository reads and marks exportable source records. Records reach their
// organization only through the shipment-job join; every statement here
// carries that join so scope checks happen in SQL, not in Go.
type Repository struct {
	db db.Querier
}

// NewRepository constructs a repository wrapper.
func NewRepository(querier db.Querier) *Repository {
	return &Repository{db: querier}
}

const feeColumns = `f.id, f.direction, sj.org_id, f.job_id, sj.job_no, f.counterparty_code, f.counterparty_name, f.amount, f.currency, f.exchange_rate, f.is_foreign, f.is_advance, f.fee_date`

const invoiceColumns = `i.id, sj.org_id, i.job_id, sj.job_no, i.counterparty_code, i.counterparty_name, i.gross_amount, i.tax_amount, i.currency, i.exchange_rate, i.invoice_date`

// Count returns how many unexported records match the query. Used by the
// submission pre-check so obviously empty requests fail before a worker
// slot is consumed.
func (r *Repository) Count(ctx context.Context, q Query) (int64, error) {
	if r == nil || r.db == nil {
		return 0, fmt.Errorf("sources: repository not initialised")
	}
	where, args := q.conditions(nil)
	var sql string
	switch q.Type {
	case TypeFee:
		sql = `SELECT COUNT(*) FROM fees f JOIN shipment_jobs sj ON sj.id = f.job_id WHERE ` + where
	case TypeInvoice:
		sql = `SELECT COUNT(*) FROM invoices i JOIN shipment_jobs sj ON sj.id = i.job_id WHERE ` + where
	default:
		return 0, fmt.Errorf("sources: unknown record type %q", q.Type)
	}
	var count int64
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// DistinctOrgIDs returns the organizations the matching records belong to,
// so the configuration pre-check can validate exactly the orgs a run will
// touch.
func (r *Repository) DistinctOrgIDs(ctx context.Context, q Query) ([]int64, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("sources: repository not initialised")
	}
	where, args := q.conditions(nil)
	var sql string
	switch q.Type {
	case TypeFee:
		sql = `SELECT DISTINCT sj.org_id FROM fees f JOIN shipment_jobs sj ON sj.id = f.job_id WHERE ` + where + ` ORDER BY sj.org_id`
	case TypeInvoice:
		sql = `SELECT DISTINCT sj.org_id FROM invoices i JOIN shipment_jobs sj ON sj.id = i.job_id WHERE ` + where + ` ORDER BY sj.org_id`
	default:
		return nil, fmt.Errorf("sources: unknown record type %q", q.Type)
	}
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ClaimForTask atomically stamps the matching records with the task id and
// returns them. The conditional update closes the race between two tasks
// selecting overlapping record sets: each record is claimed by at most one
// task, and a record claimed elsewhere simply drops out of this run.
func (r *Repository) ClaimForTask(ctx context.Context, q Query, taskID int64) ([]Record, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("sources: repository not initialised")
	}
	args := []any{taskID}
	where, args := q.conditions(args)
	var sql string
	switch q.Type {
	case TypeFee:
		sql = `UPDATE fees f SET export_task_id = $1
FROM shipment_jobs sj
WHERE sj.id = f.job_id AND ` + where + `
RETURNING ` + feeColumns
	case TypeInvoice:
		sql = `UPDATE invoices i SET export_task_id = $1
FROM shipment_jobs sj
WHERE sj.id = i.job_id AND ` + where + `
RETURNING ` + invoiceColumns
	default:
		return nil, fmt.Errorf("sources: unknown record type %q", q.Type)
	}
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []Record
	for rows.Next() {
		rec, err := scanRecord(q.Type, rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

// MarkExported stamps every record claimed by the task as exported. Runs
// only after the artifact has been produced and registered; the export
// marker transitions null → set exactly once.
func (r *Repository) MarkExported(ctx context.Context, recordType RecordType, taskID int64, at time.Time) (int64, error) {
	if r == nil || r.db == nil {
		return 0, fmt.Errorf("sources: repository not initialised")
	}
	var sql string
	switch recordType {
	case TypeFee:
		sql = `UPDATE fees SET exported_at = $2 WHERE export_task_id = $1 AND exported_at IS NULL`
	case TypeInvoice:
		sql = `UPDATE invoices SET exported_at = $2 WHERE export_task_id = $1 AND exported_at IS NULL`
	default:
		return 0, fmt.Errorf("sources: unknown record type %q", recordType)
	}
	cmd, err := r.db.Exec(ctx, sql, taskID, at)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

// ReleaseClaims frees records claimed by a task that failed before marking,
// so a later run can pick them up again.
func (r *Repository) ReleaseClaims(ctx context.Context, recordType RecordType, taskID int64) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("sources: repository not initialised")
	}
	var sql string
	switch recordType {
	case TypeFee:
		sql = `UPDATE fees SET export_task_id = NULL WHERE export_task_id = $1 AND exported_at IS NULL`
	case TypeInvoice:
		sql = `UPDATE invoices SET export_task_id = NULL WHERE export_task_id = $1 AND exported_at IS NULL`
	default:
		return fmt.Errorf("sources: unknown record type %q", recordType)
	}
	_, err := r.db.Exec(ctx, sql, taskID)
	return err
}

// conditions renders the WHERE fragment shared by every statement. args may
// already hold leading parameters (the claim update passes the task id as $1).
func (q Query) conditions(args []any) (string, []any) {
	alias := "f"
	dateColumn := "f.fee_date"
	if q.Type == TypeInvoice {
		alias = "i"
		dateColumn = "i.invoice_date"
	}
	conds := []string{
		alias + ".exported_at IS NULL",
		alias + ".export_task_id IS NULL",
	}
	if q.Type == TypeFee && q.Direction != "" {
		args = append(args, string(q.Direction))
		conds = append(conds, alias+".direction = "+fmt.Sprintf("$%d", len(args)))
	}
	if !q.Scope.Unrestricted() {
		args = append(args, q.Scope.IDs())
		conds = append(conds, "sj.org_id = ANY("+fmt.Sprintf("$%d", len(args))+")")
	}
	if q.Filter.Counterparty != "" {
		args = append(args, q.Filter.Counterparty)
		conds = append(conds, alias+".counterparty_code = "+fmt.Sprintf("$%d", len(args)))
	}
	if q.Filter.JobNo != "" {
		args = append(args, q.Filter.JobNo)
		conds = append(conds, "sj.job_no = "+fmt.Sprintf("$%d", len(args)))
	}
	if q.Filter.Currency != "" {
		args = append(args, q.Filter.Currency)
		conds = append(conds, alias+".currency = "+fmt.Sprintf("$%d", len(args)))
	}
	if q.Filter.DateFrom != nil {
		args = append(args, *q.Filter.DateFrom)
		conds = append(conds, dateColumn+" >= "+fmt.Sprintf("$%d", len(args)))
	}
	if q.Filter.DateTo != nil {
		args = append(args, *q.Filter.DateTo)
		conds = append(conds, dateColumn+" <= "+fmt.Sprintf("$%d", len(args)))
	}
	where := conds[0]
	for _, c := range conds[1:] {
		where += " AND " + c
	}
	return where, args
}

func scanRecord(recordType RecordType, row interface{ Scan(dest ...any) error }) (Record, error) {
	var rec Record
	rec.Type = recordType
	switch recordType {
	case TypeFee:
		var direction string
		if err := row.Scan(&rec.ID, &direction, &rec.OrgID, &rec.JobID, &rec.JobNo, &rec.Counterparty, &rec.CounterpartyName, &rec.Amount, &rec.Currency, &rec.ExchangeRate, &rec.Foreign, &rec.Advance, &rec.Date); err != nil {
			return Record{}, err
		}
		rec.Direction = Direction(direction)
	case TypeInvoice:
		if err := row.Scan(&rec.ID, &rec.OrgID, &rec.JobID, &rec.JobNo, &rec.Counterparty, &rec.CounterpartyName, &rec.Amount, &rec.TaxAmount, &rec.Currency, &rec.ExchangeRate, &rec.Date); err != nil {
			return Record{}, err
		}
		rec.Direction = DirectionReceivable
	default:
		return Record{}, fmt.Errorf("sources: unknown record type %q", recordType)
	}
	return rec, nil
}
