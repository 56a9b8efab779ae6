package engine

import (
	"errors"
	"testing"
)

func TestNewSpan_非法范围在构造期被拒绝(t *testing.T) {
	cases := []struct {
		name  string
		typ   string
		start int
		end   int
	}{
		{name: "零长度", typ: "PERSON", start: 3, end: 3},
		{name: "起止颠倒", typ: "PERSON", start: 5, end: 2},
		{name: "负起点", typ: "PERSON", start: -1, end: 4},
		{name: "空类型", typ: "", start: 0, end: 4},
		{name: "类型无可用字符", typ: "123", start: 0, end: 4},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewSpan(tc.typ, tc.start, tc.end, 0.9, "test")
			if err == nil {
				t.Fatalf("期望构造失败，实际成功")
			}
			if !errors.Is(err, ErrInvalidSpan) {
				t.Fatalf("期望 ErrInvalidSpan，实际：%v", err)
			}
		})
	}
}

func TestNewSpan_合法输入保留字段(t *testing.T) {
	s, err := NewSpan("person", 8, 16, 0.9, "pattern")
	if err != nil {
		t.Fatalf("构造失败：%v", err)
	}
	if s.Type != "PERSON" || s.Start != 8 || s.End != 16 || s.Score != 0.9 || s.Source != "pattern" {
		t.Fatalf("字段不符合预期：%+v", s)
	}
}

func TestNormalizeType_归一到占位符字母表(t *testing.T) {
	cases := []struct {
		in   string
		want EntityType
	}{
		{in: "person", want: "PERSON"},
		{in: "credit card", want: "CREDIT_CARD"},
		{in: "china-phone", want: "CHINA_PHONE"},
		{in: "  US_SSN  ", want: "US_SSN"},
		{in: "ipv4", want: "IPV"},
		{in: "__EMAIL__", want: "EMAIL"},
		{in: "a  -  b", want: "A_B"},
		{in: "0123", want: ""},
	}

	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			if got := NormalizeType(tc.in); got != tc.want {
				t.Fatalf("NormalizeType(%q) = %q，期望 %q", tc.in, got, tc.want)
			}
		})
	}
}
