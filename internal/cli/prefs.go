package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/registro/internal/export"
	"github.com/dmitrijs2005/registro/internal/filex"
	"github.com/dmitrijs2005/registro/internal/repository"
)

const (
	settingView = "view"
	viewList    = "list"
	viewGrid    = "grid"
)

// View prints the preferred layout, or changes it when mode is given.
func (a *App) View(ctx context.Context, mode string) error {
	if mode == "" {
		v, ok, err := a.repo.GetSetting(ctx, settingView)
		if err != nil {
			return err
		}
		if !ok {
			v = viewList
		}
		a.printf("View: %s\n", v)
		return nil
	}

	if mode != viewList && mode != viewGrid {
		return fmt.Errorf("%w: view must be %s or %s", repository.ErrInvalidRecord, viewList, viewGrid)
	}
	if err := a.repo.SetSetting(ctx, settingView, mode); err != nil {
		return err
	}
	a.printf("View set to %s\n", mode)
	return nil
}

// Export writes the grade book as an xlsx workbook. name may carry a
// directory; otherwise the configured export directory is used.
func (a *App) Export(ctx context.Context, name string) error {
	if _, err := a.teacher(); err != nil {
		return err
	}
	if name == "" {
		name = "registro-" + time.Now().Format("20060102") + ".xlsx"
	}
	dir, file := filepath.Split(name)
	if dir == "" {
		dir = a.exportDir
	}

	b, err := export.GradeBook(a.state.Data())
	if err != nil {
		return err
	}
	path, err := filex.WriteFile(dir, file, b)
	if err != nil {
		return err
	}
	a.log.Info(ctx, "grade book exported", "path", path, "bytes", len(b))
	a.printf("Exported to %s\n", path)
	return nil
}
