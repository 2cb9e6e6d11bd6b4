package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// FailureRecord is one row of a run report: an account that failed terminally.
type FailureRecord struct {
	RunID        string `parquet:"name=run_id,type=BYTE_ARRAY,convertedtype=UTF8"`
	Operation    string `parquet:"name=operation,type=BYTE_ARRAY,convertedtype=UTF8"`
	TenantID     string `parquet:"name=tenant_id,type=BYTE_ARRAY,convertedtype=UTF8"`
	BusinessDate string `parquet:"name=business_date,type=BYTE_ARRAY,convertedtype=UTF8"`
	AccountID    int64  `parquet:"name=account_id,type=INT64"`
	Attempts     int32  `parquet:"name=attempts,type=INT32"`
	Reason       string `parquet:"name=reason,type=BYTE_ARRAY,convertedtype=UTF8"`
	FinishedAt   int64  `parquet:"name=finished_at,type=INT64,convertedtype=TIMESTAMP_MILLIS"`
}

// compressionCodec maps the configured compression name to its Parquet codec.
func compressionCodec(name string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(name) {
	case "SNAPPY":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "NONE", "":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, fmt.Errorf("unsupported compression type: %s", name)
	}
}

// encode writes records as a single Parquet file into a buffer.
func encode(records []FailureRecord, compression string) (buf *bytes.Buffer, err error) {
	codec, err := compressionCodec(compression)
	if err != nil {
		return nil, err
	}

	buf = new(bytes.Buffer)
	pw, err := writer.NewParquetWriterFromWriter(buf, new(FailureRecord), 1)
	if err != nil {
		return nil, fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = codec

	for _, r := range records {
		if err := pw.Write(r); err != nil {
			return nil, fmt.Errorf("write record of account %d: %w", r.AccountID, err)
		}
	}

	defer func() {
		if r := recover(); r != nil {
			buf, err = nil, fmt.Errorf("parquet writer panicked while finishing the file: %v", r)
		}
	}()
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("finish parquet file: %w", err)
	}
	return buf, nil
}
