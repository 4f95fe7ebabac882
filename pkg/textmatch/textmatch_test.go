package textmatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const redactMark = "[…]"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "lowercases", in: "I'm READY", want: "im ready"},
		{name: "strips punctuation", in: "ok!!! let's go...", want: "ok lets go"},
		{name: "collapses whitespace", in: "  a \t b\n c ", want: "a b c"},
		{name: "symbols only", in: "?!#", want: ""},
		{name: "curly apostrophe", in: "don’t", want: "dont"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestWords(t *testing.T) {
	assert.Nil(t, Words("   "))
	assert.Equal(t, []string{"what", "is", "a", "thread"}, Words("What is a thread?"))
}

func TestMatcher_FindUsesStems(t *testing.T) {
	m := NewMatcher([]string{"thread", "deadlock", "context switch", ""})
	assert.Equal(t, 3, m.Len())

	found := m.Find("Deadlocks happen when Threads wait on each other during a context switch.")
	assert.Equal(t, []string{"thread", "deadlock", "context switch"}, found)
}

func TestMatcher_WordBoundaries(t *testing.T) {
	m := NewMatcher([]string{"class"})
	assert.False(t, m.Any("a subclass overrides behavior"))
	assert.True(t, m.Any("a derived Class overrides behavior"))
	assert.True(t, m.Any("classes group state"))
}

func TestMatcher_Possessives(t *testing.T) {
	tests := []struct {
		concept string
		text    string
	}{
		{concept: "process", text: "Think about each process's memory view."},
		{concept: "class", text: "Look at the class’s fields."},
		{concept: "access", text: "What limits the access's scope?"},
		{concept: "page table", text: "Where does the page table's entry live?"},
		{concept: "kernel's scheduler", text: "the kernel scheduler picks next"},
	}
	for _, tt := range tests {
		t.Run(tt.concept, func(t *testing.T) {
			m := NewMatcher([]string{tt.concept})
			assert.True(t, m.Any(tt.text))
			assert.False(t, m.Any(m.Redact(tt.text, redactMark)))
		})
	}
}

func TestStems_DropsClitic(t *testing.T) {
	assert.Equal(t, Stems("process"), Stems("process's"))
	assert.Equal(t, Stems("queue"), Stems("Queue’s"))
	assert.Equal(t, []string{Stem("lets"), Stem("go")}, Stems("lets go"))
}

func TestMatcher_MultiWordNeedsAdjacency(t *testing.T) {
	m := NewMatcher([]string{"context switch"})
	assert.False(t, m.Any("the context of a switch statement"))
	assert.True(t, m.Any("each context-switch costs time"))
}

func TestMatcher_Redact(t *testing.T) {
	m := NewMatcher([]string{"mutex", "critical section"})
	out := m.Redact("A Mutex guards the critical section; mutexes are cheap.", redactMark)
	assert.Equal(t, "A […] guards the […]; […] are cheap.", out)
	assert.False(t, m.Any(out))
}

func TestMatcher_RedactNoMatch(t *testing.T) {
	m := NewMatcher([]string{"mutex"})
	assert.Equal(t, "nothing here", m.Redact("nothing here", redactMark))
}

func TestContainsPhrase(t *testing.T) {
	assert.True(t, ContainsPhrase("Could you REPHRASE that, please?", "rephrase"))
	assert.True(t, ContainsPhrase("what do you mean by that", "what do you mean"))
	assert.False(t, ContainsPhrase("unrephrased", "rephrase"))
	assert.False(t, ContainsPhrase("anything", "  "))
}

func TestStem(t *testing.T) {
	assert.Equal(t, Stem("threads"), Stem("thread"))
	assert.Equal(t, "", Stem(""))
}
