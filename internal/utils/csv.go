package utils

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"backtestCore/internal/domain"
	"backtestCore/internal/ports"
)

var klineHeader = []string{"open_time", "close_time", "symbol", "interval", "open", "high", "low", "close", "volume"}

// transactionInputHeader is the layout ReadTransactionsFromCSV expects.
var transactionInputHeader = []string{"timestamp", "instrument", "kind", "multiplier", "quantity", "price", "commission", "order_id", "strategy"}

// WriteKlinesToCSV writes bars in the layout ReadKlinesFromCSV reads back.
func WriteKlinesToCSV(klines []*domain.Kline, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(klineHeader); err != nil {
		return err
	}

	for _, k := range klines {
		if err := writer.Write([]string{
			k.OpenTime.Format(time.RFC3339Nano),
			k.CloseTime.Format(time.RFC3339Nano),
			k.Symbol,
			k.Interval,
			strconv.FormatFloat(k.Open, 'f', -1, 64),
			strconv.FormatFloat(k.High, 'f', -1, 64),
			strconv.FormatFloat(k.Low, 'f', -1, 64),
			strconv.FormatFloat(k.Close, 'f', -1, 64),
			strconv.FormatFloat(k.Volume, 'f', -1, 64),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadKlinesFromCSV reads bars written by WriteKlinesToCSV.
func ReadKlinesFromCSV(filename string) ([]*domain.Kline, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ParseKlines(file)
}

// ParseKlines parses the kline CSV layout from r. The header row is required.
func ParseKlines(r io.Reader) ([]*domain.Kline, error) {
	rows, err := readRows(r, klineHeader)
	if err != nil {
		return nil, err
	}

	klines := make([]*domain.Kline, 0, len(rows))
	for i, row := range rows {
		line := i + 2
		k := &domain.Kline{Symbol: row[2], Interval: row[3]}
		if k.OpenTime, err = time.Parse(time.RFC3339Nano, row[0]); err != nil {
			return nil, malformed(line, "open_time", err)
		}
		if k.CloseTime, err = time.Parse(time.RFC3339Nano, row[1]); err != nil {
			return nil, malformed(line, "close_time", err)
		}
		values := []*float64{&k.Open, &k.High, &k.Low, &k.Close, &k.Volume}
		for j, dst := range values {
			if *dst, err = strconv.ParseFloat(row[4+j], 64); err != nil {
				return nil, malformed(line, klineHeader[4+j], err)
			}
		}
		klines = append(klines, k)
	}
	return klines, nil
}

// ReadTransactionsFromCSV reads fills to replay through a session.
func ReadTransactionsFromCSV(filename string) ([]domain.Transaction, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ParseTransactions(file)
}

// ParseTransactions parses the transaction input layout from r.
// Each row gets a fresh transaction ID.
func ParseTransactions(r io.Reader) ([]domain.Transaction, error) {
	rows, err := readRows(r, transactionInputHeader)
	if err != nil {
		return nil, err
	}

	txs := make([]domain.Transaction, 0, len(rows))
	for i, row := range rows {
		line := i + 2
		at, err := time.Parse(time.RFC3339Nano, row[0])
		if err != nil {
			return nil, malformed(line, "timestamp", err)
		}
		multiplier := 0.0
		if row[3] != "" {
			if multiplier, err = strconv.ParseFloat(row[3], 64); err != nil {
				return nil, malformed(line, "multiplier", err)
			}
		}
		instrument, err := domain.NewInstrument(row[1], domain.AssetKind(strings.ToLower(row[2])), multiplier)
		if err != nil {
			return nil, malformed(line, "instrument", err)
		}
		var nums [3]float64
		for j := range nums {
			if nums[j], err = strconv.ParseFloat(row[4+j], 64); err != nil {
				return nil, malformed(line, transactionInputHeader[4+j], err)
			}
		}
		tx := domain.NewTransaction(at, instrument, nums[0], nums[1], nums[2])
		tx.OrderID = row[7]
		tx.Strategy = row[8]
		txs = append(txs, tx)
	}
	return txs, nil
}

// WriteTransactionsToCSV exports transactions in domain.TransactionColumns order.
func WriteTransactionsToCSV(txs []domain.Transaction, filename string) error {
	records := make([][]string, 0, len(txs))
	for _, tx := range txs {
		records = append(records, tx.Record())
	}
	return writeRecords(filename, domain.TransactionColumns, records)
}

// WriteTradesToCSV exports trades in domain.TradeColumns order.
func WriteTradesToCSV(trades []*domain.Trade, filename string) error {
	records := make([][]string, 0, len(trades))
	for _, t := range trades {
		records = append(records, t.Record())
	}
	return writeRecords(filename, domain.TradeColumns, records)
}

func writeRecords(filename string, header []string, records [][]string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return err
	}
	if err := writer.WriteAll(records); err != nil {
		return err
	}
	return writer.Error()
}

func readRows(r io.Reader, header []string) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(header)
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrMalformedRecord, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: missing header row", ports.ErrMalformedRecord)
	}
	for i, col := range header {
		if strings.TrimSpace(strings.ToLower(rows[0][i])) != col {
			return nil, fmt.Errorf("%w: column %d is %q, expected %q", ports.ErrMalformedRecord, i+1, rows[0][i], col)
		}
	}
	return rows[1:], nil
}

func malformed(line int, field string, err error) error {
	return fmt.Errorf("%w: line %d field %s: %v", ports.ErrMalformedRecord, line, field, err)
}
