package main

import (
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/poku-e/foodadmin/internal/interference"
)

var header = []string{"rule", "tag", "id", "class", "src", "evidence"}

func record(f interference.Finding) []string {
	return []string{f.Rule, f.Tag, f.ID, f.Class, f.Src, f.Evidence}
}

// writeReport picks the writer from the output extension.
func writeReport(path string, findings []interference.Finding) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return writeCSV(path, findings)
	case ".xlsx":
		return writeXLSX(path, findings)
	}
	return errors.New("out must end with .csv or .xlsx")
}

func writeCSV(path string, findings []interference.Finding) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, fd := range findings {
		if err := w.Write(record(fd)); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeXLSX(path string, findings []interference.Finding) error {
	f := excelize.NewFile()
	defer f.Close()
	const sheet = "Sheet1"
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return err
	}
	if err := sw.SetRow("A1", toRow(header)); err != nil {
		return err
	}
	for i, fd := range findings {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := sw.SetRow(cell, toRow(record(fd))); err != nil {
			return err
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}
	return f.SaveAs(path)
}

func toRow(vals []string) []any {
	row := make([]any, len(vals))
	for i, v := range vals {
		row[i] = v
	}
	return row
}
