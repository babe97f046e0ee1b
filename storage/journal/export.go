package journal

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type parquetRow struct {
	ID        string `parquet:"name=id, type=UTF8, encoding=PLAIN"`
	RequestID string `parquet:"name=request_id, type=UTF8, encoding=PLAIN"`
	Kind      string `parquet:"name=kind, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Account   string `parquet:"name=account, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Outcome   string `parquet:"name=outcome, type=UTF8, encoding=PLAIN"`
	Digest    string `parquet:"name=digest, type=UTF8, encoding=PLAIN_DICTIONARY"`
	CreatedAt string `parquet:"name=created_at, type=UTF8, encoding=PLAIN"`
}

// ExportParquet streams every entry matching f to w as a snappy-compressed
// Parquet file, oldest first. Filter.Limit is ignored. It returns the number of
// rows written.
func (j *Journal) ExportParquet(ctx context.Context, w io.Writer, f Filter) (int, error) {
	if j == nil {
		return 0, fmt.Errorf("journal: not configured")
	}
	fw := writerfile.NewWriterFile(w)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		return 0, fmt.Errorf("journal: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	q := j.filtered(ctx, f).Order("created_at ASC")
	rows, err := q.Rows()
	if err != nil {
		_ = pw.WriteStop()
		return 0, fmt.Errorf("journal: export: %w", err)
	}
	defer rows.Close()

	written := 0
	for rows.Next() {
		var e Entry
		if err := q.ScanRows(rows, &e); err != nil {
			_ = pw.WriteStop()
			return written, fmt.Errorf("journal: export scan: %w", err)
		}
		row := &parquetRow{
			ID:        e.ID.String(),
			RequestID: e.RequestID,
			Kind:      e.Kind,
			Account:   e.Account,
			Outcome:   e.Outcome,
			Digest:    e.Digest,
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			return written, fmt.Errorf("journal: parquet row: %w", err)
		}
		written++
	}
	if err := rows.Err(); err != nil {
		_ = pw.WriteStop()
		return written, fmt.Errorf("journal: export: %w", err)
	}
	if err := pw.WriteStop(); err != nil {
		return written, fmt.Errorf("journal: parquet flush: %w", err)
	}
	return written, nil
}
