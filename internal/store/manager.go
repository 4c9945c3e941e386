package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"boardsync/internal/logging"
	"boardsync/pkg/database"
	"boardsync/pkg/interfaces"
	"boardsync/pkg/types"
)

// DefaultPageName is given to the page created alongside a lazy board.
const DefaultPageName = "Page 1"

// Manager implements interfaces.BoardStore on SQLite. All writes funnel
// through a single goroutine; SQLite tolerates concurrent readers under
// WAL but only one writer.
type Manager struct {
	db           *sql.DB
	config       *database.Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	done         chan struct{}
	closed       bool
	mu           sync.RWMutex
	logger       *logrus.Entry
}

type writeOperation struct {
	operation func(db *sql.DB) error
	result    chan error
}

// NewManager opens the database, applies pragmas and migrations, and
// starts the write loop.
func NewManager(config *database.Config) (*Manager, error) {
	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := applyPragmas(db); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "apply sqlite pragmas")
	}

	if err := database.NewMigrationManager(db).ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "apply migrations")
	}

	m := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
		done:         make(chan struct{}),
		logger:       logging.Component("store"),
	}

	go m.writeLoop()

	return m, nil
}

// writeLoop serializes all write operations. Failures are reported to
// the caller; retry policy belongs to the caller (the debouncer drops
// the pending slot, the API returns the error).
func (m *Manager) writeLoop() {
	defer close(m.done)

	for {
		select {
		case op := <-m.writeChannel:
			op.result <- op.operation(m.db)
		case <-m.shutdown:
			m.logger.Debug("store write loop shutting down")
			return
		}
	}
}

func (m *Manager) executeWrite(operation func(db *sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return errors.New("store is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(30 * time.Second):
		return errors.New("write operation timeout")
	case <-m.shutdown:
		return errors.New("store is shutting down")
	}
}

// CreateClassroom inserts a classroom and its roster atomically.
func (m *Manager) CreateClassroom(ctx context.Context, classroom *types.Classroom, studentIDs []string) error {
	return m.executeWrite(func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return errors.Wrap(err, "begin transaction")
		}
		defer func() { _ = tx.Rollback() }()

		var count int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM classrooms WHERE id = ?", classroom.ID).Scan(&count); err != nil {
			return errors.Wrap(err, "check classroom existence")
		}
		if count > 0 {
			return interfaces.ErrClassroomExists
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO classrooms (id, name, teacher_id, board_enabled, is_active)
			VALUES (?, ?, ?, ?, ?)
		`, classroom.ID, classroom.Name, classroom.TeacherID, classroom.BoardEnabled, classroom.IsActive)
		if err != nil {
			return errors.Wrap(err, "insert classroom")
		}

		for _, studentID := range studentIDs {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO enrollments (classroom_id, student_id) VALUES (?, ?)
			`, classroom.ID, studentID)
			if err != nil {
				return errors.Wrapf(err, "enroll student %s", studentID)
			}
		}

		return tx.Commit()
	})
}

// GetClassroom reads one classroom row. Reads bypass the write loop.
func (m *Manager) GetClassroom(ctx context.Context, classroomID string) (*types.Classroom, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT id, name, teacher_id, board_enabled, is_active
		FROM classrooms WHERE id = ?
	`, classroomID)

	var classroom types.Classroom
	err := row.Scan(&classroom.ID, &classroom.Name, &classroom.TeacherID,
		&classroom.BoardEnabled, &classroom.IsActive)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrClassroomNotFound
		}
		return nil, errors.Wrap(err, "query classroom")
	}

	return &classroom, nil
}

// IsTeacherOf reports whether userID owns the class backing the classroom.
func (m *Manager) IsTeacherOf(ctx context.Context, classroomID, userID string) (bool, error) {
	var count int
	err := m.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM classrooms WHERE id = ? AND teacher_id = ?
	`, classroomID, userID).Scan(&count)
	if err != nil {
		return false, errors.Wrap(err, "query classroom ownership")
	}
	return count > 0, nil
}

// IsEnrolled reports whether userID appears on the classroom's roster.
func (m *Manager) IsEnrolled(ctx context.Context, classroomID, userID string) (bool, error) {
	var count int
	err := m.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM enrollments WHERE classroom_id = ? AND student_id = ?
	`, classroomID, userID).Scan(&count)
	if err != nil {
		return false, errors.Wrap(err, "query enrollment")
	}
	return count > 0, nil
}

// EnsureBoard returns the classroom's board, creating board and initial
// page inside one transaction when absent. Concurrent first connections
// are serialized by the write loop, so exactly one board is created.
func (m *Manager) EnsureBoard(ctx context.Context, classroomID string) (*types.Board, error) {
	board, err := m.getBoardByClassroom(ctx, classroomID)
	if err == nil {
		return board, nil
	}
	if !errors.Is(err, interfaces.ErrBoardNotFound) {
		return nil, err
	}

	created := &types.Board{
		ID:               uuid.New().String(),
		ClassroomID:      classroomID,
		AllowStudentEdit: true,
	}
	pageID := uuid.New().String()

	err = m.executeWrite(func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return errors.Wrap(err, "begin transaction")
		}
		defer func() { _ = tx.Rollback() }()

		// Another connection may have created the board between the read
		// above and this write; keep the existing one.
		var count int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM boards WHERE classroom_id = ?", classroomID).Scan(&count); err != nil {
			return errors.Wrap(err, "recheck board existence")
		}
		if count > 0 {
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO boards (id, classroom_id, allow_student_edit, allow_student_create_pages, view_only_mode, current_page_id)
			VALUES (?, ?, ?, ?, ?, ?)
		`, created.ID, classroomID, created.AllowStudentEdit, created.AllowStudentCreatePages, created.ViewOnlyMode, pageID)
		if err != nil {
			return errors.Wrap(err, "insert board")
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO pages (id, board_id, name, state, updated_at) VALUES (?, ?, ?, '{}', ?)
		`, pageID, created.ID, DefaultPageName, time.Now().UTC())
		if err != nil {
			return errors.Wrap(err, "insert initial page")
		}

		return tx.Commit()
	})
	if err != nil {
		return nil, err
	}

	// Re-read to cover the lost-race case where the other writer's board
	// is the one that stuck.
	return m.getBoardByClassroom(ctx, classroomID)
}

func (m *Manager) getBoardByClassroom(ctx context.Context, classroomID string) (*types.Board, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT id, classroom_id, allow_student_edit, allow_student_create_pages, view_only_mode, COALESCE(current_page_id, '')
		FROM boards WHERE classroom_id = ?
	`, classroomID)

	var board types.Board
	err := row.Scan(&board.ID, &board.ClassroomID, &board.AllowStudentEdit,
		&board.AllowStudentCreatePages, &board.ViewOnlyMode, &board.CurrentPageID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrBoardNotFound
		}
		return nil, errors.Wrap(err, "query board")
	}

	return &board, nil
}

// GetPage reads one page snapshot.
func (m *Manager) GetPage(ctx context.Context, pageID string) (*types.Page, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT id, board_id, name, state, version, last_updated_by, updated_at
		FROM pages WHERE id = ?
	`, pageID)

	var page types.Page
	var state string
	err := row.Scan(&page.ID, &page.BoardID, &page.Name, &state,
		&page.Version, &page.LastUpdatedBy, &page.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, interfaces.ErrPageNotFound
		}
		return nil, errors.Wrap(err, "query page")
	}
	page.State = json.RawMessage(state)

	return &page, nil
}

// CreatePage adds a page to a board.
func (m *Manager) CreatePage(ctx context.Context, boardID, name, createdBy string) (*types.Page, error) {
	page := &types.Page{
		ID:            uuid.New().String(),
		BoardID:       boardID,
		Name:          name,
		State:         json.RawMessage("{}"),
		Version:       1,
		LastUpdatedBy: createdBy,
		UpdatedAt:     time.Now().UTC(),
	}

	err := m.executeWrite(func(db *sql.DB) error {
		var count int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM boards WHERE id = ?", boardID).Scan(&count); err != nil {
			return errors.Wrap(err, "check board existence")
		}
		if count == 0 {
			return interfaces.ErrBoardNotFound
		}

		_, err := db.ExecContext(ctx, `
			INSERT INTO pages (id, board_id, name, state, version, last_updated_by, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, page.ID, page.BoardID, page.Name, string(page.State), page.Version, page.LastUpdatedBy, page.UpdatedAt)
		return errors.Wrap(err, "insert page")
	})
	if err != nil {
		return nil, err
	}

	m.logger.WithFields(logrus.Fields{
		"board_id": boardID,
		"page_id":  page.ID,
	}).Info("page created")

	return page, nil
}

// SetCurrentPage repoints the board's current-page pointer.
func (m *Manager) SetCurrentPage(ctx context.Context, boardID, pageID string) error {
	return m.executeWrite(func(db *sql.DB) error {
		result, err := db.ExecContext(ctx, `
			UPDATE boards SET current_page_id = ? WHERE id = ?
		`, pageID, boardID)
		if err != nil {
			return errors.Wrap(err, "update current page")
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return interfaces.ErrBoardNotFound
		}
		return nil
	})
}

// UpdatePageState is the debouncer's write path: a self-contained
// read-modify-write of one page that increments version by exactly 1.
func (m *Manager) UpdatePageState(ctx context.Context, pageID string, state json.RawMessage, updatedBy string) (int64, error) {
	var newVersion int64

	err := m.executeWrite(func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return errors.Wrap(err, "begin transaction")
		}
		defer func() { _ = tx.Rollback() }()

		var version int64
		err = tx.QueryRowContext(ctx, "SELECT version FROM pages WHERE id = ?", pageID).Scan(&version)
		if err != nil {
			if err == sql.ErrNoRows {
				return interfaces.ErrPageNotFound
			}
			return errors.Wrap(err, "load page version")
		}

		newVersion = version + 1
		_, err = tx.ExecContext(ctx, `
			UPDATE pages SET state = ?, version = ?, last_updated_by = ?, updated_at = ? WHERE id = ?
		`, string(state), newVersion, updatedBy, time.Now().UTC(), pageID)
		if err != nil {
			return errors.Wrap(err, "update page state")
		}

		return tx.Commit()
	})
	if err != nil {
		return 0, err
	}

	return newVersion, nil
}

// HealthCheck validates connectivity and a basic read.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return errors.Wrap(err, "database ping")
	}
	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM classrooms LIMIT 1").Scan(&count); err != nil {
		return errors.Wrap(err, "database read test")
	}
	return nil
}

// Close drains the write loop and closes the database.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	<-m.done

	return errors.Wrap(m.db.Close(), "close database")
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return errors.Wrapf(err, "execute %s", pragma)
		}
	}
	return nil
}
