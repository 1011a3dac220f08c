package textsim

import "sort"

// Match is a run of Size equal elements starting at A in the first sequence
// and B in the second.
type Match struct {
	A, B, Size int
}

// OpTag names an edit operation.
type OpTag string

const (
	OpEqual   OpTag = "equal"
	OpReplace OpTag = "replace"
	OpDelete  OpTag = "delete"
	OpInsert  OpTag = "insert"
)

// Opcode turns a[I1:I2] into b[J1:J2].
type Opcode struct {
	Tag    OpTag
	I1, I2 int
	J1, J2 int
}

// SequenceMatcher finds the longest contiguous matching subsequences of two
// sequences (Ratcliff/Obershelp). Elements of b occurring more than 1% of the
// time are ignored as match anchors once b has 200 or more elements.
type SequenceMatcher[T comparable] struct {
	a, b   []T
	b2j    map[T][]int
	blocks []Match
}

// NewSequenceMatcher prepares a matcher for a and b.
func NewSequenceMatcher[T comparable](a, b []T) *SequenceMatcher[T] {
	m := &SequenceMatcher[T]{a: a, b: b}
	m.indexB()
	return m
}

func (m *SequenceMatcher[T]) indexB() {
	m.b2j = make(map[T][]int)
	for j, elt := range m.b {
		m.b2j[elt] = append(m.b2j[elt], j)
	}

	n := len(m.b)
	if n < 200 {
		return
	}
	limit := n/100 + 1
	for elt, idx := range m.b2j {
		if len(idx) > limit {
			delete(m.b2j, elt)
		}
	}
}

func (m *SequenceMatcher[T]) longestMatch(alo, ahi, blo, bhi int) Match {
	besti, bestj, bestsize := alo, blo, 0
	j2len := map[int]int{}
	for i := alo; i < ahi; i++ {
		next := map[int]int{}
		for _, j := range m.b2j[m.a[i]] {
			if j < blo {
				continue
			}
			if j >= bhi {
				break
			}
			k := j2len[j-1] + 1
			next[j] = k
			if k > bestsize {
				besti, bestj, bestsize = i-k+1, j-k+1, k
			}
		}
		j2len = next
	}

	for besti > alo && bestj > blo && m.a[besti-1] == m.b[bestj-1] {
		besti, bestj, bestsize = besti-1, bestj-1, bestsize+1
	}
	for besti+bestsize < ahi && bestj+bestsize < bhi && m.a[besti+bestsize] == m.b[bestj+bestsize] {
		bestsize++
	}
	return Match{A: besti, B: bestj, Size: bestsize}
}

// MatchingBlocks returns the non-adjacent matching runs in increasing order,
// terminated by a zero-size sentinel at (len(a), len(b)).
func (m *SequenceMatcher[T]) MatchingBlocks() []Match {
	if m.blocks != nil {
		return m.blocks
	}

	type span struct{ alo, ahi, blo, bhi int }
	queue := []span{{0, len(m.a), 0, len(m.b)}}
	var found []Match
	for len(queue) > 0 {
		s := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		match := m.longestMatch(s.alo, s.ahi, s.blo, s.bhi)
		if match.Size == 0 {
			continue
		}
		found = append(found, match)
		if s.alo < match.A && s.blo < match.B {
			queue = append(queue, span{s.alo, match.A, s.blo, match.B})
		}
		if match.A+match.Size < s.ahi && match.B+match.Size < s.bhi {
			queue = append(queue, span{match.A + match.Size, s.ahi, match.B + match.Size, s.bhi})
		}
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].A != found[j].A {
			return found[i].A < found[j].A
		}
		return found[i].B < found[j].B
	})

	var blocks []Match
	var cur Match
	for _, next := range found {
		if cur.A+cur.Size == next.A && cur.B+cur.Size == next.B {
			cur.Size += next.Size
			continue
		}
		if cur.Size > 0 {
			blocks = append(blocks, cur)
		}
		cur = next
	}
	if cur.Size > 0 {
		blocks = append(blocks, cur)
	}
	blocks = append(blocks, Match{A: len(m.a), B: len(m.b)})
	m.blocks = blocks
	return blocks
}

// Opcodes describes how to turn a into b.
func (m *SequenceMatcher[T]) Opcodes() []Opcode {
	var ops []Opcode
	i, j := 0, 0
	for _, block := range m.MatchingBlocks() {
		var tag OpTag
		switch {
		case i < block.A && j < block.B:
			tag = OpReplace
		case i < block.A:
			tag = OpDelete
		case j < block.B:
			tag = OpInsert
		}
		if tag != "" {
			ops = append(ops, Opcode{Tag: tag, I1: i, I2: block.A, J1: j, J2: block.B})
		}
		i, j = block.A+block.Size, block.B+block.Size
		if block.Size > 0 {
			ops = append(ops, Opcode{Tag: OpEqual, I1: block.A, I2: i, J1: block.B, J2: j})
		}
	}
	return ops
}

// Ratio is 2*M/T where M is the number of matched elements and T the total
// length of both sequences. Two empty sequences have ratio 1.
func (m *SequenceMatcher[T]) Ratio() float64 {
	total := len(m.a) + len(m.b)
	if total == 0 {
		return 1
	}
	matches := 0
	for _, block := range m.MatchingBlocks() {
		matches += block.Size
	}
	return 2 * float64(matches) / float64(total)
}
