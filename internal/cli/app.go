package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/registro/internal/eventbus"
	"github.com/dmitrijs2005/registro/internal/identity"
	"github.com/dmitrijs2005/registro/internal/logging"
	"github.com/dmitrijs2005/registro/internal/repository"
	"github.com/dmitrijs2005/registro/internal/session"
)

// getSimpleText and getPassword are indirections used to facilitate testing.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

type App struct {
	state     *session.State
	repo      *repository.Repository
	broker    eventbus.Broker
	log       logging.Logger
	exportDir string
	reader    *bufio.Reader
	out       io.Writer
}

// NewApp builds the tab front end. broker is used to open extra channels,
// one per watched session.
func NewApp(state *session.State, repo *repository.Repository, broker eventbus.Broker, log logging.Logger, exportDir string) *App {
	return &App{
		state:     state,
		repo:      repo,
		broker:    broker,
		log:       log,
		exportDir: exportDir,
		reader:    bufio.NewReader(os.Stdin),
		out:       os.Stdout,
	}
}

// Run applies events from ch to the tab state in the background and runs
// the REPL until the user leaves.
func (a *App) Run(ctx context.Context, ch eventbus.Channel) error {
	stop, err := a.state.Listen(ch)
	if err != nil {
		return fmt.Errorf("failed to listen for other tabs: %w", err)
	}
	defer stop()

	fmt.Fprintln(a.out, "Registro elettronico (type 'help' for commands)")
	runREPL(ctx, a, a.status, a.reader)
	return nil
}

func (a *App) role() session.Role {
	return a.state.Role()
}

func (a *App) status() string {
	if t := a.state.Teacher(); t != nil {
		return fmt.Sprintf(" (%s)", t.Email)
	}
	if st := a.state.Student(); st != nil {
		return fmt.Sprintf(" (%s)", st.Student.Name)
	}
	return ""
}

func (a *App) teacher() (*identity.TeacherIdentity, error) {
	t := a.state.Teacher()
	if t == nil {
		return nil, session.ErrNotTeacher
	}
	return t, nil
}

func (a *App) student() (*identity.StudentIdentity, error) {
	st := a.state.Student()
	if st == nil {
		return nil, session.ErrNoActiveSession
	}
	return st, nil
}

func (a *App) ask(prompt string) (string, error) {
	return getSimpleText(a.reader, prompt, a.out)
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}
