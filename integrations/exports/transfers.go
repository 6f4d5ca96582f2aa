package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"tokenlock/integrations/outbox"
)

var csvHeader = []string{"id", "receipt_id", "seq", "command", "from", "to", "amount", "reason", "status", "command_time", "forwarded_at"}

// TransfersCSV builds a CSV export of outbox transfers and returns the
// serialised data alongside a SHA-256 checksum of the payload.
func TransfersCSV(transfers []outbox.Transfer) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	writer := csv.NewWriter(buffer)
	if err := writer.Write(csvHeader); err != nil {
		return nil, "", err
	}
	for _, t := range transfers {
		record := []string{
			t.ID.String(),
			t.ReceiptID.String(),
			strconv.Itoa(t.Seq),
			t.Command,
			t.From,
			t.To,
			amount(t.Amount),
			t.Reason,
			string(t.Status),
			strconv.FormatUint(t.CommandTime, 10),
			forwardedAt(t.ForwardedAt),
		}
		if err := writer.Write(record); err != nil {
			return nil, "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", err
	}
	data := buffer.Bytes()
	return data, checksum(data), nil
}

// TransfersJSONL builds a JSON Lines export of outbox transfers and returns
// the serialised payload alongside a checksum.
func TransfersJSONL(transfers []outbox.Transfer) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	for _, t := range transfers {
		payload := map[string]interface{}{
			"id":           t.ID.String(),
			"receipt_id":   t.ReceiptID.String(),
			"seq":          t.Seq,
			"command":      t.Command,
			"from":         t.From,
			"to":           t.To,
			"amount":       amount(t.Amount),
			"reason":       t.Reason,
			"status":       string(t.Status),
			"command_time": t.CommandTime,
			"forwarded_at": forwardedAt(t.ForwardedAt),
		}
		if err := encoder.Encode(payload); err != nil {
			return nil, "", err
		}
	}
	data := buffer.Bytes()
	return data, checksum(data), nil
}

type parquetRow struct {
	ID          string `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8"`
	ReceiptID   string `parquet:"name=receipt_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Seq         int32  `parquet:"name=seq, type=INT32"`
	Command     string `parquet:"name=command, type=BYTE_ARRAY, convertedtype=UTF8"`
	From        string `parquet:"name=from, type=BYTE_ARRAY, convertedtype=UTF8"`
	To          string `parquet:"name=to, type=BYTE_ARRAY, convertedtype=UTF8"`
	Amount      string `parquet:"name=amount, type=BYTE_ARRAY, convertedtype=UTF8"`
	Reason      string `parquet:"name=reason, type=BYTE_ARRAY, convertedtype=UTF8"`
	Status      string `parquet:"name=status, type=BYTE_ARRAY, convertedtype=UTF8"`
	CommandTime int64  `parquet:"name=command_time, type=INT64"`
	ForwardedAt string `parquet:"name=forwarded_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// TransfersParquet builds a snappy-compressed Parquet export of outbox
// transfers. Amounts stay decimal strings so 256-bit values survive.
func TransfersParquet(transfers []outbox.Transfer) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	pw, err := writer.NewParquetWriter(writerfile.NewWriterFile(buffer), new(parquetRow), 1)
	if err != nil {
		return nil, "", fmt.Errorf("exports: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, t := range transfers {
		row := &parquetRow{
			ID:          t.ID.String(),
			ReceiptID:   t.ReceiptID.String(),
			Seq:         int32(t.Seq),
			Command:     t.Command,
			From:        t.From,
			To:          t.To,
			Amount:      amount(t.Amount),
			Reason:      t.Reason,
			Status:      string(t.Status),
			CommandTime: int64(t.CommandTime),
			ForwardedAt: forwardedAt(t.ForwardedAt),
		}
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			return nil, "", fmt.Errorf("exports: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, "", fmt.Errorf("exports: parquet flush: %w", err)
	}
	data := buffer.Bytes()
	return data, checksum(data), nil
}

func amount(value string) string {
	if value == "" {
		return "0"
	}
	return value
}

func forwardedAt(ts *time.Time) string {
	if ts == nil || ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339Nano)
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
