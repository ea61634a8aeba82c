package brain

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jwhan-dev/ccoli/pkg/provider/llm"
	"github.com/jwhan-dev/ccoli/pkg/types"
)

// Memory section files. Each is a small markdown file under the memory
// directory; the whole set is the assistant's durable state between runs.
const (
	fileSoul      = "soul.md"      // fixed persona, edited by hand
	fileUser      = "user.md"      // extracted user facts
	fileShortterm = "shortterm.md" // rolling conversation summary
	fileLongterm  = "longterm.md"  // promoted durable facts
	fileRelation  = "relation.md"  // relationship notes
)

// unknownMark seeds empty fact sections. It is replaced as soon as a real
// fact is learned and never merged back in.
const unknownMark = "(아직 모름)"

const (
	extractTemperature = 0.2
	extractMaxTokens   = 500
	summaryTemperature = 0.3
	summaryMaxTokens   = 300
)

var memoryFiles = []string{fileSoul, fileUser, fileShortterm, fileLongterm, fileRelation}

// sectionTitles label each file in the assembled prompt snapshot.
var sectionTitles = map[string]string{
	fileSoul:      "성격과 말투",
	fileUser:      "사용자에 대해 아는 것",
	fileShortterm: "최근 대화 요약",
	fileLongterm:  "오래 기억할 것",
	fileRelation:  "사용자와의 관계",
}

// Memory is the file-backed long-term state. Every refreshEvery observed
// turns it runs two model calls — fact extraction into user.md and a rolling
// summary into shortterm.md — and rewrites the files. File writes are best
// effort: the in-memory state is authoritative for the running process.
type Memory struct {
	dir          string
	chat         llm.Chat
	refreshEvery int
	log          *slog.Logger

	mu       sync.Mutex
	sections map[string]string
	recent   [][2]string // user, reply
	turns    int
}

// NewMemory loads (or seeds) the memory directory.
func NewMemory(dir string, chat llm.Chat, refreshEvery int, log *slog.Logger) (*Memory, error) {
	if refreshEvery < 1 {
		refreshEvery = 5
	}
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("brain: create memory dir: %w", err)
	}

	m := &Memory{
		dir:          dir,
		chat:         chat,
		refreshEvery: refreshEvery,
		log:          log,
		sections:     make(map[string]string, len(memoryFiles)),
	}
	for _, name := range memoryFiles {
		data, err := os.ReadFile(filepath.Join(dir, name))
		switch {
		case err == nil:
			m.sections[name] = strings.TrimSpace(string(data))
		case os.IsNotExist(err):
			m.sections[name] = unknownMark
			m.persist(name)
		default:
			return nil, fmt.Errorf("brain: read %s: %w", name, err)
		}
	}
	return m, nil
}

// Snapshot renders all sections as one prompt block.
func (m *Memory) Snapshot() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var b strings.Builder
	for _, name := range memoryFiles {
		content := m.sections[name]
		if content == "" || content == unknownMark {
			continue
		}
		fmt.Fprintf(&b, "## %s\n%s\n\n", sectionTitles[name], content)
	}
	return strings.TrimSpace(b.String())
}

// Section returns one section's current content.
func (m *Memory) Section(name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sections[name]
}

// Observe records one exchange. It reports whether the refresh cadence has
// come due; the caller decides where to run [Memory.Refresh].
func (m *Memory) Observe(user, reply string) (due bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recent = append(m.recent, [2]string{user, reply})
	m.turns++
	return m.turns%m.refreshEvery == 0
}

// Refresh extracts new user facts and refreshes the rolling summary from the
// turns observed since the last refresh, then rewrites the files.
func (m *Memory) Refresh(ctx context.Context) {
	m.mu.Lock()
	recent := m.recent
	m.recent = nil
	userFacts := m.sections[fileUser]
	m.mu.Unlock()
	if len(recent) == 0 {
		return
	}

	convo := renderConversation(recent)

	facts, err := m.chat.Chat(ctx, []types.Message{
		{Role: types.RoleSystem, Content: "아래 대화에서 사용자에 대한 새로운 사실만 뽑아. " +
			"한 줄에 하나씩 '- '로 시작하는 목록으로만 답해. 새 사실이 없으면 '없음'이라고 답해."},
		{Role: types.RoleUser, Content: convo},
	}, llm.Options{Temperature: extractTemperature, MaxTokens: extractMaxTokens, Think: llm.ThinkOff})
	if err != nil {
		m.log.Warn("memory fact extraction failed", "err", err)
	} else {
		merged := mergeFacts(userFacts, facts)
		m.mu.Lock()
		m.sections[fileUser] = merged
		m.persist(fileUser)
		m.mu.Unlock()
	}

	summary, err := m.chat.Chat(ctx, []types.Message{
		{Role: types.RoleSystem, Content: "아래 대화를 두세 문장으로 요약해. 요약만 출력해."},
		{Role: types.RoleUser, Content: convo},
	}, llm.Options{Temperature: summaryTemperature, MaxTokens: summaryMaxTokens, Think: llm.ThinkOff})
	if err != nil {
		m.log.Warn("memory summary failed", "err", err)
		return
	}
	if summary = strings.TrimSpace(summary); summary != "" {
		m.mu.Lock()
		m.sections[fileShortterm] = summary
		m.persist(fileShortterm)
		m.mu.Unlock()
	}
}

// persist writes one section file. Must be called with mu held (or before
// the Memory is shared).
func (m *Memory) persist(name string) {
	path := filepath.Join(m.dir, name)
	if err := os.WriteFile(path, []byte(m.sections[name]+"\n"), 0o644); err != nil {
		m.log.Warn("memory write failed", "file", name, "err", err)
	}
}

// renderConversation flattens exchanges for the extraction prompts.
func renderConversation(turns [][2]string) string {
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "사용자: %s\n비서: %s\n", t[0], t[1])
	}
	return b.String()
}

// mergeFacts unions fact lines into the existing section, newest last,
// skipping duplicates, blanks, the unknown placeholder, and the model's
// "없음" (nothing new) answer.
func mergeFacts(existing, extracted string) string {
	seen := make(map[string]struct{})
	var lines []string
	add := func(raw string) {
		line := strings.TrimSpace(raw)
		line = strings.TrimPrefix(line, "- ")
		line = strings.TrimSpace(line)
		if line == "" || line == unknownMark || line == "없음" {
			return
		}
		if _, dup := seen[line]; dup {
			return
		}
		seen[line] = struct{}{}
		lines = append(lines, "- "+line)
	}
	for _, l := range strings.Split(existing, "\n") {
		add(l)
	}
	for _, l := range strings.Split(extracted, "\n") {
		add(l)
	}
	if len(lines) == 0 {
		return unknownMark
	}
	return strings.Join(lines, "\n")
}
