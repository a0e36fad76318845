package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dmitrijs2005/registro/internal/session"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

// execIface is the command surface the REPL dispatches to. App satisfies it;
// tests use a recording stub.
type execIface interface {
	role() session.Role

	Register(ctx context.Context) error
	Login(ctx context.Context) error
	CodeLogin(ctx context.Context) error
	Seed(ctx context.Context) error
	Logout(ctx context.Context) error
	WhoAmI(ctx context.Context) error

	List(ctx context.Context, what string) error
	AddClass(ctx context.Context) error
	RenameClass(ctx context.Context) error
	DeleteClass(ctx context.Context) error
	AddStudent(ctx context.Context) error
	DeleteStudent(ctx context.Context) error
	AddGrade(ctx context.Context) error
	DeleteGrade(ctx context.Context) error
	AddLesson(ctx context.Context) error
	AddNotice(ctx context.Context) error
	Watch(ctx context.Context, sessionID string) error
	Purge(ctx context.Context) error
	View(ctx context.Context, mode string) error
	Export(ctx context.Context, name string) error
	DeleteAccount(ctx context.Context) error

	Info(ctx context.Context) error
	Results(ctx context.Context) error
	Profile(ctx context.Context) error
}

const (
	helpAnonymous = "Available commands: register, login, code, seed, exit"
	helpTeacher   = "Available commands: (l)ist classes|students|grades|lessons|notices|sessions, " +
		"addclass, renameclass, delclass, addstudent, delstudent, addgrade, delgrade, addlesson, addnotice, " +
		"watch <session>, purge, view [list|grid], export [file], whoami, deleteaccount, logout, exit"
	helpStudent = "Available commands: info, results, profile, whoami, logout, exit"
)

// runREPL reads commands from reader until EOF, exit or quit and dispatches
// them to a. The first token is the command, the second an optional
// argument. Which commands are accepted depends on the role of the tab.
// Handler errors are printed and the loop carries on.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("registro%s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			if err != nil {
				return
			}
			continue
		}
		cmd, arg := parts[0], ""
		if len(parts) > 1 {
			arg = parts[1]
		}

		if cmd == "exit" || cmd == "quit" {
			printlnFn("Ciao!")
			return
		}

		report(dispatch(ctx, a, cmd, arg))

		if err != nil {
			return
		}
	}
}

var errUnknownCommand = errors.New("unknown command")

func dispatch(ctx context.Context, a execIface, cmd, arg string) error {
	if cmd == "help" {
		switch a.role() {
		case session.RoleTeacher:
			printlnFn(helpTeacher)
		case session.RoleStudent:
			printlnFn(helpStudent)
		default:
			printlnFn(helpAnonymous)
		}
		return nil
	}

	switch a.role() {
	case session.RoleTeacher:
		return dispatchTeacher(ctx, a, cmd, arg)
	case session.RoleStudent:
		return dispatchStudent(ctx, a, cmd)
	}

	switch cmd {
	case "register":
		return a.Register(ctx)
	case "login":
		return a.Login(ctx)
	case "code":
		return a.CodeLogin(ctx)
	case "seed":
		return a.Seed(ctx)
	}
	return fmt.Errorf("%w: %s", errUnknownCommand, cmd)
}

func dispatchTeacher(ctx context.Context, a execIface, cmd, arg string) error {
	switch cmd {
	case "l", "list":
		if arg == "" {
			printlnFn("Usage: list classes|students|grades|lessons|notices|sessions")
			return nil
		}
		return a.List(ctx, arg)
	case "addclass":
		return a.AddClass(ctx)
	case "renameclass":
		return a.RenameClass(ctx)
	case "delclass":
		return a.DeleteClass(ctx)
	case "addstudent":
		return a.AddStudent(ctx)
	case "delstudent":
		return a.DeleteStudent(ctx)
	case "addgrade":
		return a.AddGrade(ctx)
	case "delgrade":
		return a.DeleteGrade(ctx)
	case "addlesson":
		return a.AddLesson(ctx)
	case "addnotice":
		return a.AddNotice(ctx)
	case "watch":
		if arg == "" {
			printlnFn("Usage: watch <session id>")
			return nil
		}
		return a.Watch(ctx, arg)
	case "purge":
		return a.Purge(ctx)
	case "view":
		return a.View(ctx, arg)
	case "export":
		return a.Export(ctx, arg)
	case "deleteaccount":
		return a.DeleteAccount(ctx)
	case "whoami":
		return a.WhoAmI(ctx)
	case "logout":
		return a.Logout(ctx)
	}
	return fmt.Errorf("%w: %s", errUnknownCommand, cmd)
}

func dispatchStudent(ctx context.Context, a execIface, cmd string) error {
	switch cmd {
	case "info":
		return a.Info(ctx)
	case "results":
		return a.Results(ctx)
	case "profile":
		return a.Profile(ctx)
	case "whoami":
		return a.WhoAmI(ctx)
	case "logout":
		return a.Logout(ctx)
	}
	return fmt.Errorf("%w: %s", errUnknownCommand, cmd)
}

func report(err error) {
	switch {
	case err == nil:
	case errors.Is(err, errUnknownCommand):
		printlnFn("Unknown command:", strings.TrimPrefix(err.Error(), errUnknownCommand.Error()+": "))
	case errors.Is(err, io.EOF):
		printlnFn("Cancelled")
	default:
		printlnFn("Error:", err)
	}
}
