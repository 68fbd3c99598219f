// Package session implements the append-only, tree-structured JSONL log of
// spec §4.8: messages and navigation entries form a forest per file with a
// single active leaf, generalizing the teacher's internal/session.Store
// (one flat file per session id, no parent links, single provider) into the
// spec's fork/continue/resume tree model.
package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relaycore/agentcore/message"
)

// Kind discriminates the tagged union of session-entry payloads.
type Kind string

const (
	KindHeader             Kind = "session"
	KindMessage            Kind = "message"
	KindBranchSummary      Kind = "branch_summary"
	KindCompaction         Kind = "compaction"
	KindThinkingLevelChange Kind = "thinking_level_change"
	KindModelChange        Kind = "model_change"
	KindLabel              Kind = "label"
	KindCustomMessage      Kind = "custom_message"
)

// Header is the first line of every session file.
type Header struct {
	Type      Kind      `json:"type"`
	ID        string    `json:"id"`
	Cwd       string    `json:"cwd"`
	CreatedAt time.Time `json:"createdAt"`
}

// BranchSummaryDetails carries the cumulative file-tracking lists spec
// §4.9 says must survive across summaries.
type BranchSummaryDetails struct {
	ReadFiles     []string `json:"readFiles"`
	ModifiedFiles []string `json:"modifiedFiles"`
}

// Entry is one line after the header: a tagged union matching spec §3's
// session-entry shapes. Only the fields relevant to Type are populated.
type Entry struct {
	Type      Kind      `json:"type"`
	ID        string    `json:"id"`
	ParentID  string    `json:"parentId,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// message
	Message *message.AgentMessage `json:"message,omitempty"`

	// branch_summary / compaction
	Summary      string                `json:"summary,omitempty"`
	FromID       string                `json:"fromId,omitempty"`
	Details      *BranchSummaryDetails `json:"details,omitempty"`
	TokensBefore int                   `json:"tokensBefore,omitempty"`

	// thinking_level_change / model_change / label
	Value string `json:"value,omitempty"`

	// custom_message
	CustomVariant string `json:"customVariant,omitempty"`
	CustomPayload any    `json:"customPayload,omitempty"`
}

// Store manages one open session file: its descriptor, parent/child index,
// and current leaf, generalized to a tree shape rather than a flat log.
// A Store is owned by exactly one process at a time.
type Store struct {
	Path   string
	Header Header

	file     *os.File
	children map[string][]string
	parents  map[string]string
	entries  map[string]Entry
	leaf     string
	logger   *zap.Logger
}

// WithLogger attaches a logger for Store lifecycle events, per spec §1.2's
// "one logger injected through the ... session ... constructors". Chains
// onto Create/Open/ContinueRecent/ForkFrom's return value since those
// already vary their construction path (new file vs. replay vs. copy);
// returns s for convenience. Those constructors log their own "created"/
// "opened" events (and ForkFrom its copied appends) before a logger can be
// attached, so those go to a no-op logger; only later appends reach l.
func (s *Store) WithLogger(l *zap.Logger) *Store {
	s.logger = l
	return s
}

func (s *Store) log() *zap.Logger {
	if s.logger == nil {
		return zap.NewNop()
	}
	return s.logger
}

// encodeCwd escapes path separators reversibly so session files can be
// grouped by working directory without losing the original path, adapted
// from the teacher's sha256 ProjectHash (irreversible) into a reversible
// scheme so continueRecent/forkFrom can still group by cwd.
func encodeCwd(cwd string) string {
	clean := filepath.Clean(cwd)
	replacer := strings.NewReplacer("%", "%25", string(filepath.Separator), "%2F")
	return replacer.Replace(clean)
}

func decodeCwd(encoded string) string {
	replacer := strings.NewReplacer("%2F", string(filepath.Separator), "%25", "%")
	return replacer.Replace(encoded)
}

// sessionsDir returns the directory holding every session file for a cwd
// under baseDir.
func sessionsDir(baseDir, cwd string) string {
	return filepath.Join(baseDir, "sessions", encodeCwd(cwd))
}

// Create starts a new session file for cwd under baseDir, writing the
// header line immediately.
func Create(cwd, baseDir string) (*Store, error) {
	dir := sessionsDir(baseDir, cwd)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("session: create dir: %w", err)
	}
	id := uuid.NewString()
	path := filepath.Join(dir, id+".jsonl")

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("session: create file: %w", err)
	}

	header := Header{Type: KindHeader, ID: id, Cwd: cwd, CreatedAt: time.Now()}
	if err := writeLine(file, header); err != nil {
		file.Close()
		return nil, err
	}

	s := &Store{
		Path:     path,
		Header:   header,
		file:     file,
		children: map[string][]string{},
		parents:  map[string]string{},
		entries:  map[string]Entry{},
		leaf:     "",
	}
	s.log().Info("session created", zap.String("path", path), zap.String("id", id))
	return s, nil
}

// Open replays an existing session file, rebuilding the parent/child index
// and setting leaf to the last fully-written line's id. A truncated final
// line (partial write from a crashed process) is discarded, per spec §4.8's
// concurrency rule ("readers tolerate partially written last lines").
func Open(path string) (*Store, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("session: open %s: %w", path, err)
	}

	s := &Store{
		Path:     path,
		file:     file,
		children: map[string][]string{},
		parents:  map[string]string{},
		entries:  map[string]Entry{},
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	first := true
	var lastGoodOffset int64
	for scanner.Scan() {
		line := scanner.Bytes()
		if first {
			first = false
			var h Header
			if err := json.Unmarshal(line, &h); err != nil {
				return nil, fmt.Errorf("session: parse header: %w", err)
			}
			s.Header = h
			lastGoodOffset += int64(len(line)) + 1
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			// Partial/corrupt final line: stop here, discard it, and
			// truncate the file back to the last good offset so a
			// subsequent Append starts clean.
			break
		}
		s.entries[e.ID] = e
		if e.ParentID != "" {
			s.parents[e.ID] = e.ParentID
			s.children[e.ParentID] = append(s.children[e.ParentID], e.ID)
		}
		s.leaf = e.ID
		lastGoodOffset += int64(len(line)) + 1
	}

	if info, err := file.Stat(); err == nil && info.Size() > lastGoodOffset {
		_ = file.Truncate(lastGoodOffset)
	}
	if _, err := file.Seek(0, os.SEEK_END); err != nil {
		return nil, fmt.Errorf("session: seek: %w", err)
	}

	s.log().Info("session opened", zap.String("path", path), zap.Int("entries", len(s.entries)), zap.String("leaf", s.leaf))
	return s, nil
}

// ContinueRecent opens the most recently modified session file for cwd
// under baseDir, ranked by file mtime rather than by name (UUID file names
// sort arbitrarily), matching the teacher's ListSessions ordering.
func ContinueRecent(cwd, baseDir string) (*Store, error) {
	dir := sessionsDir(baseDir, cwd)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("session: no sessions for %s: %w", cwd, err)
	}

	type candidate struct {
		path string
		mod  time.Time
	}
	var candidates []candidate
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{path: filepath.Join(dir, e.Name()), mod: info.ModTime()})
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("session: no sessions found in %s", dir)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].mod.After(candidates[j].mod) })
	return Open(candidates[0].path)
}

// ForkFrom creates a new session file for cwd under baseDir whose root
// copies every entry of other up to other's current leaf, then appends a
// label entry marking the fork point.
func ForkFrom(other *Store, cwd, baseDir string) (*Store, error) {
	s, err := Create(cwd, baseDir)
	if err != nil {
		return nil, err
	}

	branch, err := other.GetBranch(other.leaf)
	if err != nil {
		return nil, err
	}
	for _, id := range branch {
		entry := other.entries[id]
		if err := s.appendRaw(entry); err != nil {
			return nil, err
		}
	}

	if _, err := s.Append(Entry{
		Type:   KindLabel,
		Value:  fmt.Sprintf("forked from %s", other.Path),
		FromID: other.leaf,
	}); err != nil {
		return nil, err
	}
	return s, nil
}

// Append writes one entry, defaulting ParentID to the current leaf and
// assigning a fresh ID/Timestamp if unset, and advances the leaf to it.
func (s *Store) Append(e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.ParentID == "" {
		e.ParentID = s.leaf
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if err := s.appendRaw(e); err != nil {
		return Entry{}, err
	}
	s.log().Debug("session entry appended", zap.String("id", e.ID), zap.String("type", string(e.Type)))
	return e, nil
}

func (s *Store) appendRaw(e Entry) error {
	if err := writeLine(s.file, e); err != nil {
		return err
	}
	s.entries[e.ID] = e
	if e.ParentID != "" {
		s.parents[e.ID] = e.ParentID
		s.children[e.ParentID] = append(s.children[e.ParentID], e.ID)
	}
	s.leaf = e.ID
	return nil
}

// Leaf returns the id of the current leaf entry, or "" if the session has
// no entries yet.
func (s *Store) Leaf() string { return s.leaf }

// Entry looks up a previously appended (or replayed) entry by id.
func (s *Store) Entry(id string) (Entry, bool) {
	e, ok := s.entries[id]
	return e, ok
}

// Children returns the ids of entries whose ParentID is id.
func (s *Store) Children(id string) []string {
	return append([]string(nil), s.children[id]...)
}

// GetBranch walks parent links from the root to leafID, inclusive, per
// spec §4.8.
func (s *Store) GetBranch(leafID string) ([]string, error) {
	if leafID == "" {
		return nil, nil
	}
	var reversed []string
	cur := leafID
	seen := map[string]bool{}
	for cur != "" {
		if seen[cur] {
			return nil, fmt.Errorf("session: cycle detected at entry %s", cur)
		}
		seen[cur] = true
		if _, ok := s.entries[cur]; !ok {
			return nil, fmt.Errorf("session: unknown entry %s", cur)
		}
		reversed = append(reversed, cur)
		cur = s.parents[cur]
	}
	branch := make([]string, len(reversed))
	for i, id := range reversed {
		branch[len(reversed)-1-i] = id
	}
	return branch, nil
}

// CommonAncestor finds the deepest entry shared by both leaves' ancestor
// chains, used by branch summarization to bound what must be
// summarized when navigating across branches.
func (s *Store) CommonAncestor(leafA, leafB string) (string, error) {
	branchA, err := s.GetBranch(leafA)
	if err != nil {
		return "", err
	}
	branchB, err := s.GetBranch(leafB)
	if err != nil {
		return "", err
	}
	inA := make(map[string]bool, len(branchA))
	for _, id := range branchA {
		inA[id] = true
	}
	for i := len(branchB) - 1; i >= 0; i-- {
		if inA[branchB[i]] {
			return branchB[i], nil
		}
	}
	return "", nil
}

// Messages reconstructs the AgentMessage sequence along a branch, skipping
// non-message entries (labels, thinking/model-change markers).
func (s *Store) Messages(leafID string) ([]message.AgentMessage, error) {
	branch, err := s.GetBranch(leafID)
	if err != nil {
		return nil, err
	}
	var out []message.AgentMessage
	for _, id := range branch {
		e := s.entries[id]
		if e.Type == KindMessage && e.Message != nil {
			out = append(out, *e.Message)
		}
	}
	return out, nil
}

// Close releases the underlying file handle.
func (s *Store) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

func writeLine(w *os.File, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("session: marshal entry: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("session: write entry: %w", err)
	}
	return w.Sync()
}
