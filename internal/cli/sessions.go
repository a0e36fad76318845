package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/registro/internal/models"
	"github.com/dmitrijs2005/registro/internal/repository"
	"github.com/dmitrijs2005/registro/internal/session"
)

// Watch shows a student session and prints its timeline again whenever
// the student's tab reports activity, until the user presses Enter.
func (a *App) Watch(ctx context.Context, sessionID string) error {
	if _, err := a.teacher(); err != nil {
		return err
	}

	v, err := session.OpenSessionView(ctx, a.repo, a.broker, sessionID)
	if err != nil {
		return err
	}
	defer v.Close()

	if v.Session() == nil {
		return fmt.Errorf("%w: session %s", repository.ErrNotFound, sessionID)
	}

	printTimeline(a.out, v.Session(), v.Activity())
	v.OnChange(func() {
		printTimeline(a.out, v.Session(), v.Activity())
	})

	a.printf("Watching, press Enter to stop\n")
	if _, err := a.reader.ReadString('\n'); err != nil && err != io.EOF {
		return err
	}
	return nil
}

func printTimeline(w io.Writer, s *models.SessionRecord, activity []models.ActivityRecord) {
	if s == nil {
		return
	}
	state := "live"
	if s.LogoutTimestamp != nil {
		state = "closed " + s.LogoutTimestamp.Local().Format(time.DateTime)
	}
	fmt.Fprintf(w, "Session %s (%s), opened %s\n", s.SessionID, state, s.LoginTimestamp.Local().Format(time.DateTime))
	for _, e := range activity {
		fmt.Fprintf(w, "  %s  %s", e.Timestamp.Local().Format(time.TimeOnly), e.Type)
		if e.Payload != nil {
			fmt.Fprintf(w, "  %s -> %s", e.Payload.OldValue, e.Payload.NewValue)
		}
		fmt.Fprintln(w)
	}
}

// Purge deletes the teacher's closed sessions and their activity. Live
// sessions are kept.
func (a *App) Purge(ctx context.Context) error {
	t, err := a.teacher()
	if err != nil {
		return err
	}
	sessions, err := a.repo.GetSessionsForTeacher(ctx, t.User.ID)
	if err != nil {
		return err
	}

	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		if !s.Live() {
			ids = append(ids, s.SessionID)
		}
	}
	if len(ids) == 0 {
		a.printf("Nothing to purge\n")
		return nil
	}

	if err := a.repo.DeleteSessionsAndActivities(ctx, ids); err != nil {
		return err
	}
	a.printf("Purged %d sessions\n", len(ids))
	return nil
}
