package detect

import (
	"context"
	"strings"
	"testing"

	"github.com/inkdust2021/promptveil/internal/engine"
)

func TestPatternDetector_关键词多处命中(t *testing.T) {
	d := NewPatternDetector()
	if err := d.AddKeyword("Alice", "NAME"); err != nil {
		t.Fatalf("添加关键词失败：%v", err)
	}

	text := "Alice called Alice"
	spans, err := d.Detect(context.Background(), text)
	if err != nil {
		t.Fatalf("Detect 失败：%v", err)
	}
	if len(spans) != 2 {
		t.Fatalf("期望命中 2 次，实际 %d 次：%+v", len(spans), spans)
	}
	for _, s := range spans {
		if s.Type != "NAME" || text[s.Start:s.End] != "Alice" {
			t.Fatalf("命中不符合预期：%+v", s)
		}
		if s.Score != keywordScore {
			t.Fatalf("关键词命中应为满分，实际：%v", s.Score)
		}
	}
}

func TestPatternDetector_捕获组只上报本体(t *testing.T) {
	d := NewPatternDetector()
	if err := d.AddBuiltin("china_phone"); err != nil {
		t.Fatalf("添加内置规则失败：%v", err)
	}

	text := "a13800138000b"
	spans, err := d.Detect(context.Background(), text)
	if err != nil {
		t.Fatalf("Detect 失败：%v", err)
	}
	if len(spans) != 1 {
		t.Fatalf("期望命中 1 次，实际：%+v", spans)
	}
	if text[spans[0].Start:spans[0].End] != "13800138000" {
		t.Fatalf("期望只命中号码本体，实际：%q", text[spans[0].Start:spans[0].End])
	}
	if spans[0].Type != "CHINA_PHONE" {
		t.Fatalf("分类不符合预期：%v", spans[0].Type)
	}
}

func TestPatternDetector_内置规则逐个生效(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		hit      string
		category engine.EntityType
	}{
		{name: "email", input: "mail test@example.com end", hit: "test@example.com", category: "EMAIL"},
		{name: "us_phone", input: "call (555) 867-5309 now", hit: "(555) 867-5309", category: "PHONE"},
		{name: "us_ssn", input: "ssn 078-05-1120.", hit: "078-05-1120", category: "SSN"},
		{name: "uuid", input: "id=550e8400-e29b-41d4-a716-446655440000", hit: "550e8400-e29b-41d4-a716-446655440000", category: "UUID"},
		{name: "ip_address", input: "from 192.168.0.1 port", hit: "192.168.0.1", category: "IP_ADDRESS"},
		{name: "mac_address", input: "nic 00:1b:44:11:3a:b7 up", hit: "00:1b:44:11:3a:b7", category: "MAC_ADDRESS"},
		{name: "api_key", input: "api_key: sk_live_abcdef0123456789", hit: "sk_live_abcdef0123456789", category: "API_KEY"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := NewPatternDetector()
			if err := d.AddBuiltin(tc.name); err != nil {
				t.Fatalf("添加内置规则失败：%v", err)
			}
			spans, err := d.Detect(context.Background(), tc.input)
			if err != nil {
				t.Fatalf("Detect 失败：%v", err)
			}
			if len(spans) != 1 {
				t.Fatalf("期望命中 1 次，实际：%+v", spans)
			}
			got := tc.input[spans[0].Start:spans[0].End]
			if got != tc.hit {
				t.Fatalf("命中内容不符合预期：%q（期望 %q）", got, tc.hit)
			}
			if spans[0].Type != tc.category {
				t.Fatalf("分类不符合预期：%v（期望 %v）", spans[0].Type, tc.category)
			}
		})
	}
}

func TestPatternDetector_未知内置规则返回错误(t *testing.T) {
	d := NewPatternDetector()
	if err := d.AddBuiltin("not-exists"); err == nil {
		t.Fatalf("期望未知内置规则返回错误")
	}
}

func TestPatternDetector_排除列表屏蔽命中(t *testing.T) {
	d := NewPatternDetector()
	if err := d.AddBuiltin("email"); err != nil {
		t.Fatalf("添加内置规则失败：%v", err)
	}
	d.AddExclude("noreply@example.com")

	spans, err := d.Detect(context.Background(), "from noreply@example.com and user@example.com")
	if err != nil {
		t.Fatalf("Detect 失败：%v", err)
	}
	if len(spans) != 1 {
		t.Fatalf("期望排除后剩 1 次命中，实际：%+v", spans)
	}
}

func TestPatternDetector_与引擎串联完成脱敏还原(t *testing.T) {
	d := NewPatternDetector()
	if err := d.AddBuiltin("email"); err != nil {
		t.Fatalf("添加内置规则失败：%v", err)
	}
	if err := d.AddKeyword("Samuel Porter", "PERSON"); err != nil {
		t.Fatalf("添加关键词失败：%v", err)
	}

	text := "hi I'm Samuel Porter. My email is samuel@gmail.com."
	p := NewPipeline(0.5, d)
	res, err := engine.Redact(text, p.Detect(context.Background(), text))
	if err != nil {
		t.Fatalf("Redact 失败：%v", err)
	}
	if strings.Contains(res.RedactedText, "Samuel Porter") || strings.Contains(res.RedactedText, "samuel@gmail.com") {
		t.Fatalf("输出仍包含原文：%q", res.RedactedText)
	}
	if !strings.Contains(res.RedactedText, "<PERSON_1>") || !strings.Contains(res.RedactedText, "<EMAIL_1>") {
		t.Fatalf("占位符不符合预期：%q", res.RedactedText)
	}
	if got := engine.Reconstruct(res.RedactedText, res.Mapping); got != text {
		t.Fatalf("往返还原失败：%q", got)
	}
}
