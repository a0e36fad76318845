package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/registro/internal/cryptox"
	"github.com/dmitrijs2005/registro/internal/seed"
	"github.com/dmitrijs2005/registro/internal/session"
)

// Register prompts for a name, an email and a password, creates the
// teacher account and logs it in.
func (a *App) Register(ctx context.Context) error {
	first, err := a.ask("Enter first name")
	if err != nil {
		return err
	}
	last, err := a.ask("Enter last name")
	if err != nil {
		return err
	}
	email, err := a.ask("Enter email")
	if err != nil {
		return err
	}
	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer cryptox.Wipe(password)

	remember, err := confirm(a.reader, "Remember me?", a.out)
	if err != nil {
		return err
	}

	u, err := a.state.RegisterTeacher(ctx, first, last, email, string(password), remember)
	if err != nil {
		return err
	}
	a.printf("Benvenuto, %s!\n", u.FullName())
	return nil
}

// Login authenticates a teacher by email and password.
func (a *App) Login(ctx context.Context) error {
	email, err := a.ask("Enter email")
	if err != nil {
		return err
	}
	password, err := getPassword(a.out)
	if err != nil {
		return err
	}
	defer cryptox.Wipe(password)

	remember, err := confirm(a.reader, "Remember me?", a.out)
	if err != nil {
		return err
	}

	u, err := a.state.AuthenticateTeacher(ctx, email, string(password), remember)
	if err != nil {
		return err
	}
	a.log.Info(ctx, "teacher logged in", "user_id", u.ID)
	a.printf("Benvenuto, %s!\n", u.FullName())
	return nil
}

// CodeLogin signs a student in with their access code.
func (a *App) CodeLogin(ctx context.Context) error {
	code, err := a.ask("Enter access code")
	if err != nil {
		return err
	}
	remember, err := confirm(a.reader, "Remember me?", a.out)
	if err != nil {
		return err
	}

	id, err := a.state.AccessCodeLogin(ctx, code, remember)
	if err != nil {
		return err
	}
	a.log.Info(ctx, "student logged in", "student_id", id.Student.ID, "session_id", id.SessionID)
	a.printf("Ciao, %s! (%s)\n", id.Student.Name, id.Student.ClassName)
	return nil
}

// Logout ends whichever identity is active.
func (a *App) Logout(ctx context.Context) error {
	switch a.state.Role() {
	case session.RoleTeacher:
		if err := a.state.LogoutTeacher(ctx); err != nil {
			return err
		}
	case session.RoleStudent:
		if err := a.state.LogoutStudent(ctx); err != nil {
			return err
		}
	default:
		return session.ErrNoActiveSession
	}
	a.printf("Logged out\n")
	return nil
}

func (a *App) WhoAmI(ctx context.Context) error {
	if t := a.state.Teacher(); t != nil {
		a.printf("Teacher %s <%s>\n", t.User.FullName(), t.Email)
		if t.User.IsDevMode {
			a.printf("Demo account\n")
		}
		return nil
	}
	if st := a.state.Student(); st != nil {
		a.printf("Student %s, class %s, session %s\n", st.Student.Name, st.Student.ClassName, st.SessionID)
		return nil
	}
	a.printf("Not logged in\n")
	return nil
}

// Seed creates the demo teacher and logs it in for this run only.
func (a *App) Seed(ctx context.Context) error {
	res, err := seed.Run(ctx, a.repo)
	if err != nil {
		return err
	}
	if res.Created {
		a.printf("Demo data created\n")
	} else {
		a.printf("Demo data already present\n")
	}
	a.printf("Teacher: %s / %s\n", seed.DemoEmail, seed.DemoPassword)
	for _, code := range res.AccessCodes {
		a.printf("Student access code: %s\n", code)
	}

	if _, err := a.state.AuthenticateTeacher(ctx, seed.DemoEmail, seed.DemoPassword, false); err != nil {
		return fmt.Errorf("failed to log in as demo teacher: %w", err)
	}
	return nil
}

// DeleteAccount removes the teacher and everything they own, after asking
// for confirmation.
func (a *App) DeleteAccount(ctx context.Context) error {
	t, err := a.teacher()
	if err != nil {
		return err
	}
	ok, err := confirm(a.reader, "Delete the account and all its data?", a.out)
	if err != nil || !ok {
		return err
	}

	if err := a.repo.DeleteAllDataForTeacher(ctx, t.User.ID); err != nil {
		return err
	}
	if err := a.state.LogoutTeacher(ctx); err != nil {
		return err
	}
	a.printf("Account deleted\n")
	return nil
}
