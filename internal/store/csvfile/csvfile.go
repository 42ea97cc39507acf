// Package csvfile stores members and attendance as two CSV tables in a data
// directory, in the column layout the gym front desk has always used.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kozaktomas/facegate/internal/biometric"
	"github.com/kozaktomas/facegate/internal/store"
)

const (
	MembersFile    = "members.csv"
	AttendanceFile = "attendance.csv"
)

var (
	memberHeader     = []string{"Name", "Birth Date", "Phone", "Goal", "Join Date", "Face Encoding"}
	attendanceHeader = []string{"Name", "Join Date", "Exit Date"}
)

// Store is a store.Backend over members.csv and attendance.csv. Every write
// rewrites the whole table through a temp file and a rename, so a crash leaves
// either the old or the new table on disk.
type Store struct {
	dir string

	mu      sync.Mutex
	members []store.Member
	events  []store.AttendanceEvent
}

var _ store.Backend = (*Store)(nil)

// Open creates dir if needed and reads both tables.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, store.Wrap("open data dir", err)
	}
	s := &Store{dir: dir}
	if _, err := s.LoadMembers(context.Background()); err != nil {
		return nil, err
	}
	if _, err := s.LoadEvents(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the data directory.
func (s *Store) Dir() string {
	return s.dir
}

// Close is a no-op; every write is already on disk.
func (s *Store) Close() error {
	return nil
}

// LoadMembers re-reads members.csv.
func (s *Store) LoadMembers(ctx context.Context) ([]store.Member, error) {
	members, err := readMembers(filepath.Join(s.dir, MembersFile))
	if err != nil {
		return nil, store.Wrap("load members", err)
	}

	s.mu.Lock()
	s.members = members
	s.mu.Unlock()
	return cloneMembers(members), nil
}

// InsertMember appends a member and rewrites members.csv.
func (s *Store) InsertMember(ctx context.Context, member store.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := append(cloneMembers(s.members), member.Clone())
	if err := s.writeMembers(next); err != nil {
		return store.Wrap("insert member", err)
	}
	s.members = next
	return nil
}

// UpdateMember replaces the row of member.Name.
func (s *Store) UpdateMember(ctx context.Context, member store.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := cloneMembers(s.members)
	idx := indexMember(next, member.Name)
	if idx < 0 {
		return store.Wrap("update member", fmt.Errorf("member %q not in %s", member.Name, MembersFile))
	}
	next[idx] = member.Clone()
	if err := s.writeMembers(next); err != nil {
		return store.Wrap("update member", err)
	}
	s.members = next
	return nil
}

// DeleteMember removes the row of name.
func (s *Store) DeleteMember(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := indexMember(s.members, name)
	if idx < 0 {
		return store.Wrap("delete member", fmt.Errorf("member %q not in %s", name, MembersFile))
	}
	next := make([]store.Member, 0, len(s.members)-1)
	next = append(next, s.members[:idx]...)
	next = append(next, s.members[idx+1:]...)
	if err := s.writeMembers(next); err != nil {
		return store.Wrap("delete member", err)
	}
	s.members = next
	return nil
}

// LoadEvents re-reads attendance.csv. The table has no id column, so events
// read from disk get their 1-based row number as ID.
func (s *Store) LoadEvents(ctx context.Context) ([]store.AttendanceEvent, error) {
	rows, err := readTable(filepath.Join(s.dir, AttendanceFile), attendanceHeader)
	if err != nil {
		return nil, store.Wrap("load attendance", err)
	}

	events := make([]store.AttendanceEvent, 0, len(rows))
	for i, row := range rows {
		ev, err := parseEvent(row)
		if err != nil {
			return nil, store.Wrap("load attendance", fmt.Errorf("row %d: %w", i+2, err))
		}
		ev.ID = strconv.Itoa(i + 1)
		events = append(events, ev)
	}

	s.mu.Lock()
	s.events = events
	s.mu.Unlock()
	return cloneEvents(events), nil
}

// AppendEvent adds an open event at the end of attendance.csv.
func (s *Store) AppendEvent(ctx context.Context, event store.AttendanceEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := append(cloneEvents(s.events), event.Clone())
	if err := s.writeEvents(next); err != nil {
		return store.Wrap("append attendance", err)
	}
	s.events = next
	return nil
}

// CloseEvent writes the Exit Date of the row holding event.ID.
func (s *Store) CloseEvent(ctx context.Context, event store.AttendanceEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, ev := range s.events {
		if ev.ID == event.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return store.Wrap("close attendance", fmt.Errorf("event %s not in %s", event.ID, AttendanceFile))
	}

	next := cloneEvents(s.events)
	next[idx] = event.Clone()
	if err := s.writeEvents(next); err != nil {
		return store.Wrap("close attendance", err)
	}
	s.events = next
	return nil
}

func (s *Store) writeMembers(members []store.Member) error {
	rows := make([][]string, 0, len(members))
	for _, m := range members {
		rows = append(rows, []string{
			m.Name,
			m.Profile.BirthDate,
			m.Profile.Phone,
			m.Profile.Goal,
			formatTime(m.EnrolledAt),
			m.Encoding.String(),
		})
	}
	return writeTable(filepath.Join(s.dir, MembersFile), memberHeader, rows)
}

func (s *Store) writeEvents(events []store.AttendanceEvent) error {
	rows := make([][]string, 0, len(events))
	for _, ev := range events {
		out := ""
		if ev.CheckOutAt != nil {
			out = formatTime(*ev.CheckOutAt)
		}
		rows = append(rows, []string{ev.MemberName, formatTime(ev.CheckInAt), out})
	}
	return writeTable(filepath.Join(s.dir, AttendanceFile), attendanceHeader, rows)
}

// readTable returns the data rows of path. A missing file is an empty table.
func readTable(path string, header []string) ([][]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(header)

	got, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s header: %w", filepath.Base(path), err)
	}
	for i := range header {
		if !strings.EqualFold(strings.TrimSpace(got[i]), header[i]) {
			return nil, fmt.Errorf("%s: unexpected column %q, want %q", filepath.Base(path), got[i], header[i])
		}
	}

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return rows, nil
}

// writeTable atomically replaces path with header followed by rows.
func writeTable(path string, header []string, rows [][]string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ReadMembers parses a members table at an arbitrary path, such as an export
// from another installation. Unlike Open, a missing file is an error.
func ReadMembers(path string) ([]store.Member, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return readMembers(path)
}

func readMembers(path string) ([]store.Member, error) {
	rows, err := readTable(path, memberHeader)
	if err != nil {
		return nil, err
	}

	members := make([]store.Member, 0, len(rows))
	for i, row := range rows {
		m, err := parseMember(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		members = append(members, m)
	}
	return members, nil
}

func parseMember(row []string) (store.Member, error) {
	name := strings.TrimSpace(row[0])
	if name == "" {
		return store.Member{}, errors.New("empty name")
	}
	enrolled, err := parseTime(row[4])
	if err != nil {
		return store.Member{}, fmt.Errorf("member %q join date: %w", name, err)
	}
	enc, err := biometric.Parse(row[5])
	if err != nil {
		return store.Member{}, fmt.Errorf("member %q: %w", name, err)
	}
	return store.Member{
		Name:     name,
		Encoding: enc,
		Profile: store.Profile{
			BirthDate: row[1],
			Phone:     row[2],
			Goal:      row[3],
		},
		EnrolledAt: enrolled,
	}, nil
}

func parseEvent(row []string) (store.AttendanceEvent, error) {
	name := strings.TrimSpace(row[0])
	if name == "" {
		return store.AttendanceEvent{}, errors.New("empty name")
	}
	in, err := parseTime(row[1])
	if err != nil {
		return store.AttendanceEvent{}, fmt.Errorf("%q join date: %w", name, err)
	}
	if in.IsZero() {
		return store.AttendanceEvent{}, fmt.Errorf("%q: missing join date", name)
	}
	ev := store.AttendanceEvent{MemberName: name, CheckInAt: in}

	switch out := strings.TrimSpace(row[2]); strings.ToLower(out) {
	case "", "nan", "nat", "none":
	default:
		t, err := parseTime(out)
		if err != nil {
			return store.AttendanceEvent{}, fmt.Errorf("%q exit date: %w", name, err)
		}
		ev.CheckOutAt = &t
	}
	return ev, nil
}

// Timestamps are written in local time, the way the desk clock shows them.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(time.Local).Format(store.TimestampLayout)
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{store.TimestampLayout, time.DateOnly, time.RFC3339} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func indexMember(members []store.Member, name string) int {
	for i, m := range members {
		if m.Name == name {
			return i
		}
	}
	return -1
}

func cloneMembers(in []store.Member) []store.Member {
	out := make([]store.Member, len(in))
	for i, m := range in {
		out[i] = m.Clone()
	}
	return out
}

func cloneEvents(in []store.AttendanceEvent) []store.AttendanceEvent {
	out := make([]store.AttendanceEvent, len(in))
	for i, ev := range in {
		out[i] = ev.Clone()
	}
	return out
}
