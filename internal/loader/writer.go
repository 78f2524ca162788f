package loader

import (
	"Go2NetProfile/internal/model"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// WriteCSV writes records using the record source column contract, so the
// output can be read back with Load.
func WriteCSV(w io.Writer, records []model.FlowRecord) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Columns); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	row := make([]string, len(Columns))
	for _, r := range records {
		row[0] = r.Timestamp.Format(TimestampLayout)
		row[1] = r.SrcIP
		row[2] = r.DstIP
		row[3] = strconv.Itoa(r.SrcPort)
		row[4] = strconv.Itoa(r.DstPort)
		row[5] = r.Protocol
		row[6] = strconv.FormatInt(r.Bytes, 10)
		row[7] = r.AppCategory
		row[8] = r.User
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write csv record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}
