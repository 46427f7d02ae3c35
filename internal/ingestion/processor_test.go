package ingestion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acharya-agent/backend/internal/knowledge"
	"github.com/acharya-agent/backend/internal/learning"
)

const sample = `Q: Who was Adi Shankara?
A: I was a teacher of Advaita who travelled across Bharata.
I founded four mathas.

Q: What is maya?
A: Maya is the power by which the one appears as many.

Q: A question without an answer

A: An answer without a question.
`

func TestParseQA(t *testing.T) {
	pairs, err := ParseQA(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, pairs, 2)

	assert.Equal(t, "Who was Adi Shankara?", pairs[0].Question)
	assert.Equal(t, "I was a teacher of Advaita who travelled across Bharata. I founded four mathas.", pairs[0].Answer)
	assert.Equal(t, 1, pairs[0].Line)

	assert.Equal(t, "What is maya?", pairs[1].Question)
	assert.Equal(t, 5, pairs[1].Line)
}

func TestParseQAAnswerEndsAtNextQuestion(t *testing.T) {
	in := "q: first?\na: one\nQ: second?\nA: two"
	pairs, err := ParseQA(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.Equal(t, "one", pairs[0].Answer)
	assert.Equal(t, "two", pairs[1].Answer)
}

func TestParseQAEmpty(t *testing.T) {
	pairs, err := ParseQA(strings.NewReader("\n\n"))
	require.NoError(t, err)
	assert.Empty(t, pairs)
}

type fakeTeacher struct {
	seen []string
	fail map[string]bool
}

func (f *fakeTeacher) Teach(q, a string) (knowledge.UpsertResult, error) {
	f.seen = append(f.seen, q)
	if f.fail[q] {
		return knowledge.UpsertResult{}, errors.New("store unavailable")
	}
	return knowledge.UpsertResult{Inserted: true}, nil
}

func TestImportSkipsFailedPairs(t *testing.T) {
	teacher := &fakeTeacher{fail: map[string]bool{"What is maya?": true}}
	p := NewProcessor(teacher)

	rep, err := p.Import(context.Background(), strings.NewReader(sample))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Imported)
	assert.Equal(t, 1, rep.Skipped)
	require.Len(t, rep.Errors, 1)
	assert.Contains(t, rep.Errors[0], "line 5")
	assert.Equal(t, []string{"Who was Adi Shankara?", "What is maya?"}, teacher.seen)
}

func TestImportMergesDuplicates(t *testing.T) {
	store := knowledge.NewMemoryStore()
	p := NewProcessor(learning.NewEngine(store))

	in := "Q: What is maya?\nA: Maya is appearance.\n\nQ: What is maya?\nA: Maya is the power of appearance.\n"
	rep, err := p.Import(context.Background(), strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Imported)
	assert.Equal(t, 1, rep.Merged)
	assert.Equal(t, 1, store.Len())
}

func TestImportCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	teacher := &fakeTeacher{}
	_, err := NewProcessor(teacher).Import(ctx, strings.NewReader(sample))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, teacher.seen)
}

func TestImportFileHTML(t *testing.T) {
	page := `<html><head><script>var q = "Q: no";</script></head><body>
<nav>Q: menu</nav>
<p>Q: Where were you born?</p>
<p>A: I was born in Kaladi.</p>
<p>Q: Who was your guru?</p>
<p>A: Govinda Bhagavatpada was my guru.</p>
</body></html>`
	path := filepath.Join(t.TempDir(), "pairs.html")
	require.NoError(t, os.WriteFile(path, []byte(page), 0o644))

	teacher := &fakeTeacher{}
	rep, err := NewProcessor(teacher).ImportFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Imported)
	assert.Equal(t, []string{"Where were you born?", "Who was your guru?"}, teacher.seen)
}

func TestImportFileMissing(t *testing.T) {
	_, err := NewProcessor(&fakeTeacher{}).ImportFile(context.Background(), filepath.Join(t.TempDir(), "none.txt"))
	assert.Error(t, err)
}
