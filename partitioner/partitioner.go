package partitioner

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type (
	// PartitionPlan is one segment of a partition path: apply Func to
	// the row's Args and emit `As=result`.
	PartitionPlan struct {
		Func string
		Args []string
		As   string
	}

	PartitionFunc func(row map[string]any, args []string) (string, error)
)

var (
	Functions = make(map[string]PartitionFunc)

	ErrFuncNotFound = errors.New("partition function not found")

	ErrMissingArgs       = errors.New("missing args")
	ErrMissingColumns    = errors.New("missing one or more columns specified in args")
	ErrInvalidColumnType = errors.New("invalid column type")
)

func init() {
	Functions["toDay"] = func(row map[string]any, args []string) (string, error) {
		t, err := parseTimeArg(row, args)
		if err != nil {
			return "", fmt.Errorf("error in parseTimeArg: %w", err)
		}

		return fmt.Sprint(t.Day()), nil
	}
	Functions["toMonth"] = func(row map[string]any, args []string) (string, error) {
		t, err := parseTimeArg(row, args)
		if err != nil {
			return "", fmt.Errorf("error in parseTimeArg: %w", err)
		}

		return fmt.Sprint(int(t.Month())), nil
	}
	Functions["toYear"] = func(row map[string]any, args []string) (string, error) {
		t, err := parseTimeArg(row, args)
		if err != nil {
			return "", fmt.Errorf("error in parseTimeArg: %w", err)
		}

		return fmt.Sprint(t.Year()), nil
	}
	Functions["toYearDay"] = func(row map[string]any, args []string) (string, error) {
		t, err := parseTimeArg(row, args)
		if err != nil {
			return "", fmt.Errorf("error in parseTimeArg: %w", err)
		}

		return fmt.Sprint(t.YearDay()), nil
	}
	Functions["toYearWeek"] = func(row map[string]any, args []string) (string, error) {
		t, err := parseTimeArg(row, args)
		if err != nil {
			return "", fmt.Errorf("error in parseTimeArg: %w", err)
		}

		year, week := t.ISOWeek()
		return fmt.Sprintf("%d-%d", year, week), nil
	}
	Functions["toWeekDay"] = func(row map[string]any, args []string) (string, error) {
		t, err := parseTimeArg(row, args)
		if err != nil {
			return "", fmt.Errorf("error in parseTimeArg: %w", err)
		}

		return fmt.Sprint(int(t.Weekday())), nil
	}
}

// GetRowPartition computes the partition path of a row by running each
// plan segment in order and joining `As=value` parts with `/`.
func GetRowPartition(row map[string]any, partitioners []PartitionPlan) (string, error) {
	var finalParts []string
	for _, partFunc := range partitioners {
		f, ok := Functions[partFunc.Func]
		if !ok {
			return "", ErrFuncNotFound
		}

		s, err := f(row, partFunc.Args)
		if err != nil {
			return "", fmt.Errorf("error processing partition function %s: %w", partFunc.Func, err)
		}
		finalParts = append(finalParts, fmt.Sprintf("%s=%s", partFunc.As, s))
	}
	return strings.Join(finalParts, "/"), nil
}

func parseTimeArg(row map[string]any, args []string) (t time.Time, err error) {
	if len(args) == 0 {
		err = ErrMissingArgs
		return
	}

	key := args[0]

	if key == "now()" {
		t = time.Now()
		return
	}

	value, exists := row[key]
	if !exists {
		err = ErrMissingColumns
		return
	}

	switch val := value.(type) {
	case string:
		// A datetime like YYYY-MM-DDTHH:mm:ss.sssZ
		t, err = time.Parse("2006-01-02T15:04:05.000Z", val)
		if err != nil {
			err = fmt.Errorf("error in time.Parse for string: %w", err)
			return
		}
	case float64:
		// Epoch millis, arriving as a float from JSON
		t = time.UnixMilli(int64(val))
	default:
		err = ErrInvalidColumnType
		return
	}
	return
}
