package cli

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/registro/internal/cryptox"
	"github.com/dmitrijs2005/registro/internal/models"
	"github.com/dmitrijs2005/registro/internal/repository"
)

var errUnknownList = errors.New("unknown list")

// List prints one of the teacher's collections as a table.
func (a *App) List(ctx context.Context, what string) error {
	if _, err := a.teacher(); err != nil {
		return err
	}
	d := a.state.Data()

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	defer w.Flush()

	switch what {
	case "classes":
		fmt.Fprintln(w, "ID\tNAME\tSTUDENTS")
		for _, c := range d.Classes {
			n := 0
			for _, s := range d.Students {
				if s.ClassID == c.ID {
					n++
				}
			}
			fmt.Fprintf(w, "%s\t%s\t%d\n", c.ID, c.Name, n)
		}
	case "students":
		fmt.Fprintln(w, "ID\tNAME\tCLASS\tAGE\tACCESS CODE")
		for _, s := range d.Students {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", s.ID, s.Name, s.ClassName, s.Age, s.AccessCode)
		}
	case "grades":
		names := studentNames(d.Students)
		fmt.Fprintln(w, "ID\tSTUDENT\tSUBJECT\tTYPE\tDATE\tGRADE")
		for _, g := range d.Grades {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.1f\n", g.ID, names[g.StudentID], g.Subject, g.Type, g.Date, g.Grade)
		}
	case "lessons":
		fmt.Fprintln(w, "ID\tTIME\tSUBJECT\tCLASS\tTYPE")
		for _, l := range d.Lessons {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", l.ID, l.Time, l.Subject, l.ClassName, l.Type)
		}
	case "notices":
		fmt.Fprintln(w, "ID\tDATE\tTYPE\tTITLE")
		for _, n := range d.Notices {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", n.ID, n.Date, n.Type, n.Title)
		}
	case "sessions":
		return a.listSessions(ctx, w, d.Students)
	default:
		return fmt.Errorf("%w: %s", errUnknownList, what)
	}
	return nil
}

func (a *App) listSessions(ctx context.Context, w *tabwriter.Writer, students []models.Student) error {
	t, err := a.teacher()
	if err != nil {
		return err
	}
	sessions, err := a.repo.GetSessionsForTeacher(ctx, t.User.ID)
	if err != nil {
		return err
	}

	names := studentNames(students)
	fmt.Fprintln(w, "SESSION\tSTUDENT\tLOGIN\tLOGOUT")
	for _, s := range sessions {
		out := "live"
		if s.LogoutTimestamp != nil {
			out = s.LogoutTimestamp.Local().Format(time.DateTime)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.SessionID, names[s.StudentID], s.LoginTimestamp.Local().Format(time.DateTime), out)
	}
	return nil
}

func studentNames(students []models.Student) map[string]string {
	m := make(map[string]string, len(students))
	for _, s := range students {
		m[s.ID] = s.Name
	}
	return m
}

// findClass resolves a class by id or by case-insensitive name.
func findClass(classes []models.ClassInfo, ref string) (models.ClassInfo, error) {
	i := slices.IndexFunc(classes, func(c models.ClassInfo) bool {
		return c.ID == ref || strings.EqualFold(c.Name, strings.TrimSpace(ref))
	})
	if i < 0 {
		return models.ClassInfo{}, fmt.Errorf("%w: class %q", repository.ErrNotFound, ref)
	}
	return classes[i], nil
}

// findStudent resolves a student by id or by case-insensitive name.
func findStudent(students []models.Student, ref string) (models.Student, error) {
	i := slices.IndexFunc(students, func(s models.Student) bool {
		return s.ID == ref || strings.EqualFold(s.Name, strings.TrimSpace(ref))
	})
	if i < 0 {
		return models.Student{}, fmt.Errorf("%w: student %q", repository.ErrNotFound, ref)
	}
	return students[i], nil
}

// withDefault returns def when v is blank.
func withDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func (a *App) AddClass(ctx context.Context) error {
	t, err := a.teacher()
	if err != nil {
		return err
	}
	name, err := a.ask("Enter class name")
	if err != nil {
		return err
	}

	c, err := a.repo.SaveClass(ctx, models.ClassInfo{Name: name, TeacherID: t.User.ID})
	if err != nil {
		return err
	}
	a.printf("Class %s created (%s)\n", c.Name, c.ID)
	return a.state.Reload(ctx)
}

// RenameClass renames a class; the students' class name copy follows.
func (a *App) RenameClass(ctx context.Context) error {
	if _, err := a.teacher(); err != nil {
		return err
	}
	ref, err := a.ask("Enter class name or id")
	if err != nil {
		return err
	}
	c, err := findClass(a.state.Data().Classes, ref)
	if err != nil {
		return err
	}
	name, err := a.ask("Enter new name")
	if err != nil {
		return err
	}

	if _, err := a.repo.RenameClass(ctx, c.ID, name); err != nil {
		return err
	}
	a.printf("Class renamed\n")
	return a.state.Reload(ctx)
}

// DeleteClass removes a class together with its students and their grades.
func (a *App) DeleteClass(ctx context.Context) error {
	if _, err := a.teacher(); err != nil {
		return err
	}
	ref, err := a.ask("Enter class name or id")
	if err != nil {
		return err
	}
	c, err := findClass(a.state.Data().Classes, ref)
	if err != nil {
		return err
	}
	ok, err := confirm(a.reader, fmt.Sprintf("Delete class %s, its students and their grades?", c.Name), a.out)
	if err != nil || !ok {
		return err
	}

	if err := a.repo.DeleteClass(ctx, c.ID); err != nil {
		return err
	}
	a.printf("Class deleted\n")
	return a.state.Reload(ctx)
}

// AddStudent enrols a student. A blank access code gets a generated one.
func (a *App) AddStudent(ctx context.Context) error {
	t, err := a.teacher()
	if err != nil {
		return err
	}
	name, err := a.ask("Enter student name")
	if err != nil {
		return err
	}
	ageText, err := a.ask("Enter age")
	if err != nil {
		return err
	}
	age, err := strconv.Atoi(withDefault(ageText, "0"))
	if err != nil {
		return fmt.Errorf("invalid age %q", ageText)
	}
	ref, err := a.ask("Enter class name or id")
	if err != nil {
		return err
	}
	c, err := findClass(a.state.Data().Classes, ref)
	if err != nil {
		return err
	}
	email, err := a.ask("Enter contact email (optional)")
	if err != nil {
		return err
	}
	parentLines, err := GetLines(a.reader, "Enter parents as name=email, one per line", a.out)
	if err != nil {
		return err
	}
	code, err := a.ask("Enter access code (blank to generate)")
	if err != nil {
		return err
	}
	if code == "" {
		if code, err = cryptox.AccessCode(4); err != nil {
			return err
		}
	}

	s, err := a.repo.SaveStudent(ctx, models.Student{
		Name:       strings.TrimSpace(name),
		Age:        age,
		ClassID:    c.ID,
		Contact:    models.Contact{Email: email},
		Parents:    parseParents(parentLines),
		AccessCode: code,
		TeacherID:  t.User.ID,
	})
	if err != nil {
		return err
	}
	a.printf("Student %s enrolled in %s, access code %s\n", s.Name, s.ClassName, s.AccessCode)
	return a.state.Reload(ctx)
}

func parseParents(lines []string) []models.Parent {
	parents := make([]models.Parent, 0, len(lines))
	for _, line := range lines {
		name, email, _ := strings.Cut(line, "=")
		parents = append(parents, models.Parent{
			Name:    strings.TrimSpace(name),
			Contact: models.Contact{Email: strings.TrimSpace(email)},
		})
	}
	return parents
}

// DeleteStudent removes a student and their grades.
func (a *App) DeleteStudent(ctx context.Context) error {
	if _, err := a.teacher(); err != nil {
		return err
	}
	ref, err := a.ask("Enter student name or id")
	if err != nil {
		return err
	}
	s, err := findStudent(a.state.Data().Students, ref)
	if err != nil {
		return err
	}
	ok, err := confirm(a.reader, fmt.Sprintf("Delete %s and their grades?", s.Name), a.out)
	if err != nil || !ok {
		return err
	}

	if err := a.repo.DeleteStudent(ctx, s.ID); err != nil {
		return err
	}
	a.printf("Student deleted\n")
	return a.state.Reload(ctx)
}

// AddGrade records a grade; the student's open tabs re-fetch their grades.
func (a *App) AddGrade(ctx context.Context) error {
	t, err := a.teacher()
	if err != nil {
		return err
	}
	ref, err := a.ask("Enter student name or id")
	if err != nil {
		return err
	}
	s, err := findStudent(a.state.Data().Students, ref)
	if err != nil {
		return err
	}
	subject, err := a.ask("Enter subject")
	if err != nil {
		return err
	}
	kind, err := a.ask("Enter type (Compito/Esame) [Compito]")
	if err != nil {
		return err
	}
	date, err := a.ask("Enter date (YYYY-MM-DD) [today]")
	if err != nil {
		return err
	}
	valueText, err := a.ask("Enter grade (1-10)")
	if err != nil {
		return err
	}
	value, err := strconv.ParseFloat(strings.Replace(valueText, ",", ".", 1), 64)
	if err != nil {
		return fmt.Errorf("invalid grade %q", valueText)
	}

	g, err := a.repo.SaveGrade(ctx, models.GradeItem{
		StudentID: s.ID,
		Subject:   strings.TrimSpace(subject),
		Type:      models.GradeType(withDefault(kind, string(models.GradeHomework))),
		Date:      withDefault(date, time.Now().Format(time.DateOnly)),
		Grade:     value,
		TeacherID: t.User.ID,
	})
	if err != nil {
		return err
	}
	a.printf("Grade %.1f saved for %s (%s)\n", g.Grade, s.Name, g.ID)
	return a.state.Reload(ctx)
}

func (a *App) DeleteGrade(ctx context.Context) error {
	if _, err := a.teacher(); err != nil {
		return err
	}
	id, err := a.ask("Enter grade id")
	if err != nil {
		return err
	}
	if err := a.repo.DeleteGrade(ctx, id); err != nil {
		return err
	}
	a.printf("Grade deleted\n")
	return a.state.Reload(ctx)
}

func (a *App) AddLesson(ctx context.Context) error {
	t, err := a.teacher()
	if err != nil {
		return err
	}
	subject, err := a.ask("Enter subject")
	if err != nil {
		return err
	}
	at, err := a.ask("Enter time (HH:MM)")
	if err != nil {
		return err
	}
	ref, err := a.ask("Enter class name or id")
	if err != nil {
		return err
	}
	c, err := findClass(a.state.Data().Classes, ref)
	if err != nil {
		return err
	}
	kind, err := a.ask("Enter type (Lezione/Laboratorio/Verifica/Recupero) [Lezione]")
	if err != nil {
		return err
	}

	l, err := a.repo.SaveLesson(ctx, models.Lesson{
		Subject:   strings.TrimSpace(subject),
		Time:      at,
		ClassName: c.Name,
		Type:      models.LessonType(withDefault(kind, string(models.LessonLecture))),
		TeacherID: t.User.ID,
	})
	if err != nil {
		return err
	}
	a.printf("Lesson saved (%s)\n", l.ID)
	return a.state.Reload(ctx)
}

func (a *App) AddNotice(ctx context.Context) error {
	t, err := a.teacher()
	if err != nil {
		return err
	}
	title, err := a.ask("Enter title")
	if err != nil {
		return err
	}
	kind, err := a.ask("Enter type (Generale/Importante/Urgente/Evento) [Generale]")
	if err != nil {
		return err
	}
	date, err := a.ask("Enter date (YYYY-MM-DD) [today]")
	if err != nil {
		return err
	}
	description, err := GetMultiline(a.reader, "Enter description", a.out)
	if err != nil {
		return err
	}

	n, err := a.repo.SaveNotice(ctx, models.Notice{
		Title:       strings.TrimSpace(title),
		Date:        withDefault(date, time.Now().Format(time.DateOnly)),
		Description: description,
		Type:        models.NoticeType(withDefault(kind, string(models.NoticeGeneral))),
		TeacherID:   t.User.ID,
	})
	if err != nil {
		return err
	}
	a.printf("Notice saved (%s)\n", n.ID)
	return a.state.Reload(ctx)
}
