package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/dmitrijs2005/registro/internal/models"
	"github.com/dmitrijs2005/registro/internal/repository"
)

// Info shows the student's own record and logs a VIEW_INFO activity.
func (a *App) Info(ctx context.Context) error {
	st, err := a.student()
	if err != nil {
		return err
	}
	if err := a.state.RecordView(ctx, models.ActivityViewInfo); err != nil {
		return err
	}

	s := st.Student
	a.printf("%s, %d anni, classe %s\n", s.Name, s.Age, s.ClassName)
	if s.AvatarURL != "" {
		a.printf("Avatar: %s\n", s.AvatarURL)
	}
	if s.Contact.Email != "" || s.Contact.Phone != "" {
		a.printf("Contact: %s %s\n", s.Contact.Email, s.Contact.Phone)
	}
	for _, p := range s.Parents {
		a.printf("Parent: %s %s\n", p.Name, p.Contact.Email)
	}
	return nil
}

// Results shows the student's grades and logs a VIEW_RESULTS activity.
func (a *App) Results(ctx context.Context) error {
	if _, err := a.student(); err != nil {
		return err
	}
	if err := a.state.RecordView(ctx, models.ActivityViewResults); err != nil {
		return err
	}

	grades := a.state.StudentGrades()
	if len(grades) == 0 {
		a.printf("No grades yet\n")
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tSUBJECT\tTYPE\tGRADE")
	var sum float64
	for _, g := range grades {
		sum += g.Grade
		fmt.Fprintf(w, "%s\t%s\t%s\t%.1f\n", g.Date, g.Subject, g.Type, g.Grade)
	}
	fmt.Fprintf(w, "\t\tMEDIA\t%.2f\n", sum/float64(len(grades)))
	return w.Flush()
}

// Profile lets the student edit their avatar and contact details. Blank
// answers keep the current value.
func (a *App) Profile(ctx context.Context) error {
	st, err := a.student()
	if err != nil {
		return err
	}
	s := st.Student

	avatar, err := a.ask(fmt.Sprintf("Avatar URL [%s]", s.AvatarURL))
	if err != nil {
		return err
	}
	email, err := a.ask(fmt.Sprintf("Email [%s]", s.Contact.Email))
	if err != nil {
		return err
	}
	phone, err := a.ask(fmt.Sprintf("Phone [%s]", s.Contact.Phone))
	if err != nil {
		return err
	}

	updated, err := a.state.UpdateProfile(ctx, repository.StudentProfile{
		AvatarURL: withDefault(avatar, s.AvatarURL),
		Contact: models.Contact{
			Email:   withDefault(email, s.Contact.Email),
			Phone:   withDefault(phone, s.Contact.Phone),
			Address: s.Contact.Address,
		},
		Parents: s.Parents,
	})
	if err != nil {
		return err
	}
	a.printf("Profile saved for %s\n", updated.Name)
	return nil
}
