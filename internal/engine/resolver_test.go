package engine

import "testing"

func mustSpan(t *testing.T, typ string, start, end int, score float64) Span {
	t.Helper()
	s, err := NewSpan(typ, start, end, score, "test")
	if err != nil {
		t.Fatalf("构造 span 失败：%v", err)
	}
	return s
}

func assertNoOverlap(t *testing.T, spans []Span) {
	t.Helper()
	for i := range spans {
		for j := i + 1; j < len(spans); j++ {
			if spans[i].overlaps(spans[j]) {
				t.Fatalf("输出存在重叠：%+v 与 %+v", spans[i], spans[j])
			}
		}
	}
}

func TestResolve_输出不包含重叠(t *testing.T) {
	spans := []Span{
		mustSpan(t, "A", 0, 10, 0.5),
		mustSpan(t, "B", 5, 15, 0.6),
		mustSpan(t, "C", 12, 20, 0.7),
		mustSpan(t, "D", 20, 25, 0.4),
		mustSpan(t, "E", 0, 3, 0.9),
	}

	out := Resolve(spans)
	if len(out) == 0 {
		t.Fatalf("期望至少保留一个 span")
	}
	assertNoOverlap(t, out)
}

func TestResolve_重叠时高分胜出且与输入顺序无关(t *testing.T) {
	low := mustSpan(t, "PERSON", 0, 8, 0.9)
	high := mustSpan(t, "ORG", 4, 12, 0.95)

	orders := [][]Span{
		{low, high},
		{high, low},
	}
	for i, in := range orders {
		out := Resolve(in)
		if len(out) != 1 {
			t.Fatalf("顺序 %d：期望保留 1 个 span，实际 %d 个", i, len(out))
		}
		if out[0] != high {
			t.Fatalf("顺序 %d：期望保留高分 span %+v，实际：%+v", i, high, out[0])
		}
	}
}

func TestResolve_同分重叠保留先接受者(t *testing.T) {
	first := mustSpan(t, "PERSON", 2, 10, 0.8)
	second := mustSpan(t, "ORG", 2, 10, 0.8)

	out := Resolve([]Span{first, second})
	if len(out) != 1 {
		t.Fatalf("期望保留 1 个 span，实际 %d 个", len(out))
	}
	if out[0] != first {
		t.Fatalf("期望稳定保留先接受的 %+v，实际：%+v", first, out[0])
	}
}

func TestResolve_同起点先考虑更长的命中(t *testing.T) {
	short := mustSpan(t, "A", 0, 5, 0.8)
	long := mustSpan(t, "B", 0, 10, 0.8)

	out := Resolve([]Span{short, long})
	if len(out) != 1 || out[0] != long {
		t.Fatalf("期望同分时保留更长的 %+v，实际：%+v", long, out)
	}
}

func TestResolve_连环重叠按从左到右贪心裁决(t *testing.T) {
	// a 与 b 重叠、b 与 c 重叠，但 a 与 c 不重叠：
	// b 以更高分挤掉 a 后，c 又以更高分挤掉 b —— 贪心结果只剩 c。
	a := mustSpan(t, "A", 0, 6, 0.5)
	b := mustSpan(t, "B", 4, 10, 0.6)
	c := mustSpan(t, "C", 8, 14, 0.7)

	out := Resolve([]Span{a, b, c})
	assertNoOverlap(t, out)
	if len(out) != 1 || out[0] != c {
		t.Fatalf("期望贪心结果为 [c]，实际：%+v", out)
	}
}

func TestResolve_不重叠的低分span不受高分影响(t *testing.T) {
	a := mustSpan(t, "A", 0, 5, 0.3)
	b := mustSpan(t, "B", 10, 15, 0.99)

	out := Resolve([]Span{b, a})
	if len(out) != 2 {
		t.Fatalf("期望保留 2 个不重叠 span，实际：%+v", out)
	}
	assertNoOverlap(t, out)
}

func TestResolve_空输入返回空(t *testing.T) {
	if out := Resolve(nil); out != nil {
		t.Fatalf("期望 nil，实际：%+v", out)
	}
}
