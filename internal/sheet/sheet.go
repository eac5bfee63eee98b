// Package sheet reads student rosters from spreadsheets and writes exam
// results back out as workbooks.
package sheet

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/smada/genius-backend/internal/model"
	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat is returned for files that are neither CSV nor XLSX.
var ErrUnsupportedFormat = errors.New("unsupported sheet format")

// ReadStudents parses a roster with the columns name, nis and class. The
// first row is a header and is skipped. Rows without a name or NIS are
// ignored. The format is chosen from the file extension.
func ReadStudents(r io.Reader, filename string) ([]model.StudentInput, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt":
		rows, err = readCSV(r)
	case ".xlsx", ".xlsm":
		rows, err = readXLSX(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	}
	if err != nil {
		return nil, err
	}

	students := make([]model.StudentInput, 0, len(rows))
	for i, row := range rows {
		if i == 0 {
			continue
		}
		name, nis, class := cell(row, 0), cell(row, 1), cell(row, 2)
		if name == "" || nis == "" {
			continue
		}
		students = append(students, model.StudentInput{Name: name, NIS: nis, Class: class})
	}
	return students, nil
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return rows, nil
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return rows, nil
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// StudentTemplate writes the CSV import template.
func StudentTemplate(w io.Writer) error {
	cw := csv.NewWriter(w)
	_ = cw.WriteAll([][]string{
		{"name", "nis", "class"},
		{"Andi Pratama", "12345", "XII MIPA 1"},
		{"Siti Aminah", "12346", "XII MIPA 2"},
	})
	return cw.Error()
}

// resultHeader is the first row of a results workbook.
var resultHeader = []any{"No", "NIS", "Nama", "Kelas", "Nilai", "Benar", "Jumlah Soal", "Pelanggaran", "Status", "Waktu Selesai"}

// WriteResults writes the results of one exam as an XLSX workbook. Students
// are looked up by ID to fill NIS and class; results of removed students keep
// their recorded name.
func WriteResults(w io.Writer, exam *model.Exam, results []model.Result, students []model.Student) error {
	byID := make(map[string]model.Student, len(students))
	for _, st := range students {
		byID[st.ID] = st
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := sheetName(exam.Title)
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	if err := f.SetSheetRow(sheet, "A1", &resultHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, r := range results {
		st := byID[r.StudentID]
		status := "TIDAK LULUS"
		if r.Score >= exam.KKM {
			status = "LULUS"
		}
		row := []any{
			i + 1, st.NIS, r.StudentName, st.Class, r.Score, r.CorrectCount,
			r.TotalQuestions, r.Violations, status, r.Timestamp.Format("2006-01-02 15:04:05"),
		}
		addr, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, addr, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// sheetName trims a title to the 31 characters Excel allows and strips the
// characters it rejects.
func sheetName(title string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return -1
		}
		return r
	}, strings.TrimSpace(title))
	if name == "" {
		return "Hasil"
	}
	if runes := []rune(name); len(runes) > 31 {
		name = string(runes[:31])
	}
	return name
}
