// Package seed fills the register with a demo teacher and their classes.
// It only uses public repository operations.
package seed

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/registro/internal/cryptox"
	"github.com/dmitrijs2005/registro/internal/models"
	"github.com/dmitrijs2005/registro/internal/repository"
	"github.com/google/uuid"
)

const (
	DemoEmail    = "demo@registro.local"
	DemoPassword = "demo"
)

// Result describes what Run created, or found from an earlier run.
type Result struct {
	Teacher     models.User
	AccessCodes []string
	Created     bool
}

type demoStudent struct {
	name, class, code string
	age               int
	grades            []float64
}

var demoStudents = []demoStudent{
	{name: "Luca Rossi", class: "1A", code: "LUCA-1A01", age: 14, grades: []float64{7, 8.5}},
	{name: "Sara Bianchi", class: "1A", code: "SARA-1A02", age: 14, grades: []float64{9, 9.5}},
	{name: "Marco Verdi", class: "2B", code: "MARCO-2B01", age: 15, grades: []float64{5.5, 6}},
	{name: "Giulia Neri", class: "2B", code: "GIULIA-2B02", age: 15, grades: []float64{8}},
}

// Run creates the demo teacher, unless an account with the demo email
// already exists, in which case it is returned untouched.
func Run(ctx context.Context, repo *repository.Repository) (Result, error) {
	existing, err := repo.GetUserByHashedEmail(ctx, cryptox.Hash(DemoEmail))
	if err != nil {
		return Result{}, err
	}
	if existing != nil {
		return Result{Teacher: *existing}, nil
	}

	u := models.User{
		ID:        uuid.NewString(),
		FirstName: "Demo",
		LastName:  "Docente",
		Email:     cryptox.Hash(DemoEmail),
		Password:  cryptox.Hash(DemoPassword),
		IsDevMode: true,
	}
	if _, err := repo.AddUser(ctx, u); err != nil {
		return Result{}, fmt.Errorf("failed to create demo teacher: %w", err)
	}

	res := Result{Teacher: u, Created: true}

	classes := map[string]models.ClassInfo{}
	for _, ds := range demoStudents {
		c, ok := classes[ds.class]
		if !ok {
			c, err = repo.SaveClass(ctx, models.ClassInfo{Name: ds.class, TeacherID: u.ID})
			if err != nil {
				return res, err
			}
			classes[ds.class] = c

			if _, err := repo.SaveLesson(ctx, models.Lesson{Subject: "Matematica", Time: "08:00", ClassName: c.Name, Type: models.LessonLecture, TeacherID: u.ID}); err != nil {
				return res, err
			}
			if _, err := repo.SaveMessage(ctx, models.Message{ClassName: c.Name, ClassID: c.ID, LastMessageTime: "08:00", TeacherID: u.ID}); err != nil {
				return res, err
			}
		}

		s, err := repo.SaveStudent(ctx, models.Student{
			Name:       ds.name,
			Age:        ds.age,
			ClassID:    c.ID,
			Subject:    "Matematica",
			AccessCode: ds.code,
			TeacherID:  u.ID,
			Parents:    []models.Parent{{Name: "Genitore di " + ds.name}},
		})
		if err != nil {
			return res, err
		}
		res.AccessCodes = append(res.AccessCodes, s.AccessCode)

		for i, g := range ds.grades {
			gt := models.GradeHomework
			if i%2 == 1 {
				gt = models.GradeExam
			}
			_, err := repo.SaveGrade(ctx, models.GradeItem{
				StudentID: s.ID,
				Subject:   "Matematica",
				Type:      gt,
				Date:      fmt.Sprintf("2024-10-%02d", i+1),
				Grade:     g,
				TeacherID: u.ID,
			})
			if err != nil {
				return res, err
			}
		}
	}

	_, err = repo.SaveNotice(ctx, models.Notice{
		Title:       "Uscita didattica",
		Date:        "2024-11-15",
		Description: "Visita al museo della scienza.",
		Type:        models.NoticeEvent,
		TeacherID:   u.ID,
	})
	if err != nil {
		return res, err
	}
	return res, nil
}
