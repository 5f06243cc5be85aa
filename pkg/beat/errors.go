package beat

import "errors"

var (
	// ErrEmptyEntryName is returned when an entry has no name.
	ErrEmptyEntryName = errors.New("beat: empty entry name")

	// ErrEmptyTaskName is returned when an entry has no task to emit.
	ErrEmptyTaskName = errors.New("beat: empty task name")

	// ErrNilSchedule is returned when an entry has no schedule.
	ErrNilSchedule = errors.New("beat: nil schedule")

	// ErrDuplicateEntry is returned when an entry name is added twice.
	ErrDuplicateEntry = errors.New("beat: entry already registered")

	// ErrNilEnqueue is returned when the scheduler is built without an
	// enqueue function.
	ErrNilEnqueue = errors.New("beat: nil enqueue func")

	// ErrNoEntries is returned when Run is called on an empty table.
	ErrNoEntries = errors.New("beat: no entries registered")

	// ErrAlreadyRunning is returned when Run is called twice.
	ErrAlreadyRunning = errors.New("beat: already running")
)
