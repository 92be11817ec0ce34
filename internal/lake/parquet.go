package lake

import (
	"bytes"

	"github.com/cockroachdb/errors"
	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"
)

// encodeParquet serializes rows into one Snappy-compressed Parquet file.
// An empty slice still yields a valid file carrying the schema.
func encodeParquet[F any](rows []F, rowGroupSize, np int64) ([]byte, error) {
	var buf bytes.Buffer
	pw, err := writer.NewParquetWriterFromWriter(&buf, new(F), np)
	if err != nil {
		return nil, errors.Wrap(err, "parquet: create writer")
	}
	if rowGroupSize > 0 {
		pw.RowGroupSize = rowGroupSize
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i := range rows {
		if err := pw.Write(rows[i]); err != nil {
			_ = pw.WriteStop()
			return nil, errors.Wrapf(err, "parquet: write row %d", i)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, errors.Wrap(err, "parquet: finalize")
	}
	return buf.Bytes(), nil
}

// decodeParquet reads every row of an in-memory Parquet file.
func decodeParquet[F any](data []byte, np int64) ([]F, error) {
	pr, err := reader.NewParquetReader(buffer.NewBufferFileFromBytes(data), new(F), np)
	if err != nil {
		return nil, errors.Wrap(err, "parquet: open reader")
	}
	defer pr.ReadStop()

	n := int(pr.GetNumRows())
	out := make([]F, n)
	if n == 0 {
		return out, nil
	}
	if err := pr.Read(&out); err != nil {
		return nil, errors.Wrap(err, "parquet: read rows")
	}
	return out, nil
}
