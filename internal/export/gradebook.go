// Package export renders a teacher's register as an Excel workbook.
package export

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/dmitrijs2005/registro/internal/models"
	"github.com/dmitrijs2005/registro/internal/repository"
	"github.com/xuri/excelize/v2"
)

const (
	SheetGrades   = "Voti"
	SheetStudents = "Studenti"
	SheetAverages = "Medie"
)

var (
	gradeHeaders   = []any{"Studente", "Classe", "Materia", "Tipo", "Data", "Voto"}
	studentHeaders = []any{"Studente", "Classe", "Età", "Codice accesso", "Email", "Telefono"}
	averageHeaders = []any{"Studente", "Materia", "Voti", "Media"}
)

// GradeBook builds an .xlsx workbook with one row per grade, one row per
// student, and the average grade of each student per subject.
func GradeBook(d repository.TeacherData) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	students := make(map[string]models.Student, len(d.Students))
	for _, s := range d.Students {
		students[s.ID] = s
	}

	grades := slices.Clone(d.Grades)
	slices.SortFunc(grades, func(a, b models.GradeItem) int {
		return cmp.Or(
			cmp.Compare(students[a.StudentID].Name, students[b.StudentID].Name),
			cmp.Compare(a.Subject, b.Subject),
			cmp.Compare(a.Date, b.Date),
		)
	})

	rows := make([][]any, 0, len(grades))
	for _, g := range grades {
		s := students[g.StudentID]
		rows = append(rows, []any{studentName(s, g.StudentID), s.ClassName, g.Subject, string(g.Type), g.Date, g.Grade})
	}
	if err := writeSheet(f, SheetGrades, gradeHeaders, rows); err != nil {
		return nil, err
	}

	roster := slices.Clone(d.Students)
	slices.SortFunc(roster, func(a, b models.Student) int {
		return cmp.Or(cmp.Compare(a.ClassName, b.ClassName), cmp.Compare(a.Name, b.Name))
	})
	rows = rows[:0]
	for _, s := range roster {
		rows = append(rows, []any{s.Name, s.ClassName, s.Age, s.AccessCode, s.Contact.Email, s.Contact.Phone})
	}
	if err := writeSheet(f, SheetStudents, studentHeaders, rows); err != nil {
		return nil, err
	}

	if err := writeSheet(f, SheetAverages, averageHeaders, averages(grades, students)); err != nil {
		return nil, err
	}

	// excelize always starts with Sheet1.
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to drop default sheet: %w", err)
	}
	if idx, err := f.GetSheetIndex(SheetGrades); err == nil {
		f.SetActiveSheet(idx)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}
	return buf.Bytes(), nil
}

// averages expects grades sorted by student and subject.
func averages(grades []models.GradeItem, students map[string]models.Student) [][]any {
	var rows [][]any
	for i := 0; i < len(grades); {
		j := i
		sum := 0.0
		for j < len(grades) && grades[j].StudentID == grades[i].StudentID && grades[j].Subject == grades[i].Subject {
			sum += grades[j].Grade
			j++
		}
		n := j - i
		rows = append(rows, []any{studentName(students[grades[i].StudentID], grades[i].StudentID), grades[i].Subject, n, sum / float64(n)})
		i = j
	}
	return rows
}

func studentName(s models.Student, fallback string) string {
	if s.Name == "" {
		return fallback
	}
	return s.Name
}

func writeSheet(f *excelize.File, name string, headers []any, rows [][]any) error {
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("failed to create Excel sheet %s: %w", name, err)
	}
	if err := f.SetSheetRow(name, "A1", &headers); err != nil {
		return fmt.Errorf("failed to write %s header: %w", name, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(name, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", name, i+2, err)
		}
	}
	return nil
}
