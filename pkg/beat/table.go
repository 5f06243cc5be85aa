package beat

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/eduforge/taskq/pkg/task"
)

// tableFile is the YAML shape of a schedule table:
//
//	entries:
//	  - name: nightly-report
//	    task: report.generate
//	    schedule: "0 2 * * *"
//	    args: {course_id: all}
//	    queue: reports
//	    priority: 75
//	    max_retries: 2
//
// The schedule field takes a cron expression or a descriptor like
// "@every 30m".
type tableFile struct {
	Entries []tableEntry `yaml:"entries"`
}

type tableEntry struct {
	Name       string         `yaml:"name"`
	Task       string         `yaml:"task"`
	Schedule   string         `yaml:"schedule"`
	Args       map[string]any `yaml:"args"`
	Queue      string         `yaml:"queue"`
	Priority   int8           `yaml:"priority"`
	MaxRetries int8           `yaml:"max_retries"`
}

// LoadTable parses a YAML schedule table into entries ready for Add.
func LoadTable(r io.Reader) ([]Entry, error) {
	var file tableFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("beat: decode schedule table: %w", err)
	}

	entries := make([]Entry, 0, len(file.Entries))
	for _, te := range file.Entries {
		sched, err := Cron(te.Schedule)
		if err != nil {
			return nil, fmt.Errorf("beat: entry %q: %w", te.Name, err)
		}

		var args json.RawMessage
		if te.Args != nil {
			args, err = json.Marshal(te.Args)
			if err != nil {
				return nil, fmt.Errorf("beat: entry %q args: %w", te.Name, err)
			}
		}

		e := Entry{
			Name:       te.Name,
			TaskName:   te.Task,
			Args:       args,
			Queue:      te.Queue,
			Priority:   task.Priority(te.Priority),
			MaxRetries: te.MaxRetries,
			Schedule:   sched,
		}
		if err := e.validate(); err != nil {
			return nil, fmt.Errorf("beat: entry %q: %w", te.Name, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
