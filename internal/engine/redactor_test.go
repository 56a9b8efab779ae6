package engine

import (
	"errors"
	"testing"
)

func TestRedact_端到端示例(t *testing.T) {
	text := "Contact John Doe at 555-1234."
	spans := []Span{
		mustSpan(t, "PERSON", 8, 16, 0.9),
		mustSpan(t, "PHONE", 20, 28, 0.85),
	}

	res, err := Redact(text, spans)
	if err != nil {
		t.Fatalf("Redact 失败：%v", err)
	}
	if res.RedactedText != "Contact <PERSON_1> at <PHONE_1>." {
		t.Fatalf("脱敏文本不符合预期：%q", res.RedactedText)
	}
	if len(res.Mapping) != 2 {
		t.Fatalf("期望 2 条映射，实际 %d 条：%+v", len(res.Mapping), res.Mapping)
	}
	want := map[string]MappingEntry{
		"<PERSON_1>": {Type: "PERSON", Original: "John Doe", Placeholder: "<PERSON_1>"},
		"<PHONE_1>":  {Type: "PHONE", Original: "555-1234", Placeholder: "<PHONE_1>"},
	}
	for _, e := range res.Mapping {
		if want[e.Placeholder] != e {
			t.Fatalf("映射条目不符合预期：%+v", e)
		}
	}

	if got := Reconstruct(res.RedactedText, res.Mapping); got != text {
		t.Fatalf("往返还原失败：%q", got)
	}
}

func TestRedact_相同值与类型只产生一条映射(t *testing.T) {
	text := "case A-100 relates to case A-100"
	spans := []Span{
		mustSpan(t, "CASE", 5, 10, 0.9),
		mustSpan(t, "CASE", 27, 32, 0.9),
	}

	res, err := Redact(text, spans)
	if err != nil {
		t.Fatalf("Redact 失败：%v", err)
	}
	if len(res.Mapping) != 1 {
		t.Fatalf("期望去重后只有 1 条映射，实际 %d 条：%+v", len(res.Mapping), res.Mapping)
	}
	if res.RedactedText != "case <CASE_1> relates to case <CASE_1>" {
		t.Fatalf("期望两处复用同一占位符，实际：%q", res.RedactedText)
	}
}

func TestRedact_计数器按从右往左的处理顺序分配(t *testing.T) {
	text := "Alice met Bob"
	spans := []Span{
		mustSpan(t, "PERSON", 0, 5, 0.9),  // Alice
		mustSpan(t, "PERSON", 10, 13, 0.9), // Bob
	}

	res, err := Redact(text, spans)
	if err != nil {
		t.Fatalf("Redact 失败：%v", err)
	}
	// 替换从右往左进行，最靠右的不同值先拿到 _1。
	if res.RedactedText != "<PERSON_2> met <PERSON_1>" {
		t.Fatalf("计数器分配顺序不符合契约，实际：%q", res.RedactedText)
	}
	if len(res.Mapping) != 2 {
		t.Fatalf("期望 2 条映射，实际：%+v", res.Mapping)
	}
	if res.Mapping[0].Original != "Bob" || res.Mapping[0].Placeholder != "<PERSON_1>" {
		t.Fatalf("期望第一条映射是 Bob → <PERSON_1>，实际：%+v", res.Mapping[0])
	}
	if res.Mapping[1].Original != "Alice" || res.Mapping[1].Placeholder != "<PERSON_2>" {
		t.Fatalf("期望第二条映射是 Alice → <PERSON_2>，实际：%+v", res.Mapping[1])
	}
}

func TestRedact_占位符变长不影响右侧span的落点(t *testing.T) {
	text := "01234567890123456789"
	spans := []Span{
		mustSpan(t, "AAAAA", 0, 5, 0.9),
		mustSpan(t, "B", 10, 15, 0.9),
	}

	res, err := Redact(text, spans)
	if err != nil {
		t.Fatalf("Redact 失败：%v", err)
	}
	// "<AAAAA_1>" 9 个字符，比原文 5 个字符长；B 的替换必须仍落在原文的 10..15。
	if res.RedactedText != "<AAAAA_1>56789<B_1>56789" {
		t.Fatalf("替换落点错位：%q", res.RedactedText)
	}
	if got := Reconstruct(res.RedactedText, res.Mapping); got != text {
		t.Fatalf("往返还原失败：%q", got)
	}
}

func TestRedact_越界span整体失败不做部分替换(t *testing.T) {
	text := "short"
	spans := []Span{
		mustSpan(t, "A", 0, 3, 0.9),
		mustSpan(t, "B", 2, 99, 0.9),
	}

	_, err := Redact(text, spans)
	if err == nil {
		t.Fatalf("期望越界 span 导致整体失败")
	}
	if !errors.Is(err, ErrInvalidSpan) {
		t.Fatalf("期望 ErrInvalidSpan，实际：%v", err)
	}
}

func TestRedact_重叠检测交给解析器处理(t *testing.T) {
	text := "send to alice@example.com please"
	spans := []Span{
		mustSpan(t, "EMAIL", 8, 25, 0.95),
		mustSpan(t, "TEXT", 8, 13, 0.5), // "alice"，与 EMAIL 重叠
	}

	res, err := Redact(text, spans)
	if err != nil {
		t.Fatalf("Redact 失败：%v", err)
	}
	if res.RedactedText != "send to <EMAIL_1> please" {
		t.Fatalf("期望高分 EMAIL 胜出，实际：%q", res.RedactedText)
	}
	if len(res.Mapping) != 1 {
		t.Fatalf("期望 1 条映射，实际：%+v", res.Mapping)
	}
}

func TestRedact_多字节文本按字节偏移往返(t *testing.T) {
	text := "姓名：张三，电话 555-1234"
	// "张三" 的字节范围
	start := len("姓名：")
	end := start + len("张三")
	spans := []Span{
		mustSpan(t, "PERSON", start, end, 0.9),
	}

	res, err := Redact(text, spans)
	if err != nil {
		t.Fatalf("Redact 失败：%v", err)
	}
	if res.RedactedText != "姓名：<PERSON_1>，电话 555-1234" {
		t.Fatalf("多字节替换错位：%q", res.RedactedText)
	}
	if got := Reconstruct(res.RedactedText, res.Mapping); got != text {
		t.Fatalf("往返还原失败：%q", got)
	}
}

func TestRedact_无span时原样返回(t *testing.T) {
	res, err := Redact("nothing here", nil)
	if err != nil {
		t.Fatalf("Redact 失败：%v", err)
	}
	if res.RedactedText != "nothing here" || len(res.Mapping) != 0 {
		t.Fatalf("期望原样返回，实际：%+v", res)
	}
}
