package normalize

import (
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
)

func TestText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "promotional suffix",
			input: "民政部宣布新政策；公众号：每天100秒读懂世界",
			want:  "民政部宣布新政策",
		},
		{
			name:  "promotional suffix with trailing semicolon",
			input: "民政部宣布新政策；每天 100 秒知天下；",
			want:  "民政部宣布新政策",
		},
		{
			name:  "leading numbering",
			input: "3、宇树科技发布H2仿生人形机器人",
			want:  "宇树科技发布 H2 仿生人形机器人",
		},
		{
			name:  "trailing punctuation",
			input: "加拿大等国提醒本国赴美公民：小心被捕。",
			want:  "加拿大等国提醒本国赴美公民：小心被捕",
		},
		{
			name:  "stacked trailing punctuation",
			input: "今天天气不错！～ ",
			want:  "今天天气不错",
		},
		{
			name:  "percent stays attached",
			input: "我国60岁及以上老年人口占总人口22%",
			want:  "我国 60 岁及以上老年人口占总人口 22%",
		},
		{
			name:  "celsius stays attached",
			input: "大部地区气温下降8～12℃，",
			want:  "大部地区气温下降 8～12℃",
		},
		{
			name:  "percent followed by CJK",
			input: "增长5.2%的目标",
			want:  "增长 5.2% 的目标",
		},
		{
			name:  "already spaced",
			input: "截至 2024 年底",
			want:  "截至 2024 年底",
		},
		{
			name:  "all rules at once",
			input: "12、统计局：前三季度GDP同比增长5.2%；公众号：每天100秒读懂世界。",
			want:  "统计局：前三季度 GDP 同比增长 5.2%",
		},
		{
			name:  "empty",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Text(tt.input))
		})
	}
}

// TestText_Idempotent verifies that normalizing twice equals normalizing once
// for a fixed corpus and for random input.
func TestText_Idempotent(t *testing.T) {
	corpus := []string{
		"民政部宣布新政策；公众号：每天100秒读懂世界",
		"X；每天100秒读懂世界。",
		"1、2、3、内容",
		"新闻100秒读懂世界，",
		"iPhone17发布，售价5999元！",
		"温度12℃以上",
		"  、、。 ",
		"abc中文def",
		"中文　。",
	}
	for _, s := range corpus {
		once := Text(s)
		assert.Equal(t, once, Text(once), "input %q", s)
	}

	f := func(s string) bool {
		once := Text(s)
		return Text(once) == once
	}
	assert.NoError(t, quick.Check(f, &quick.Config{MaxCount: 2000}))
}

func TestSpacing(t *testing.T) {
	assert.Equal(t, "H2 仿生", Spacing("H2仿生"))
	assert.Equal(t, "发布 H2", Spacing("发布H2"))
	assert.Equal(t, "8～12℃", Spacing("8～12℃"))
	assert.Equal(t, "12℃ 以上", Spacing("12℃以上"))
	assert.Equal(t, "中：25 日", Spacing("中：25日"), "fullwidth punctuation is not CJK")
	assert.Equal(t, "a", Spacing("a"))
}

func TestItems_DropsEmpty(t *testing.T) {
	got := Items([]string{"1、第一条。", "  ", "2、", "第三条"})
	assert.Equal(t, []string{"第一条", "第三条"}, got)
}

func TestIsNumbered(t *testing.T) {
	assert.True(t, IsNumbered("1、内容"))
	assert.True(t, IsNumbered("  15、内容"))
	assert.False(t, IsNumbered("内容1、"))
	assert.False(t, IsNumbered("1. 内容"))
}

func TestTip(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"【微语】人生中有些事，不竭尽全力，你永远无法知晓自己的出色", "人生中有些事，不竭尽全力，你永远无法知晓自己的出色", true},
		{"【今日微语】 向前走", "向前走", true},
		{"【每日金句】相信自己", "相信自己", true},
		{"【每周金句】相信自己", "", false},
		{"普通段落", "", false},
	}

	for _, tt := range tests {
		got, ok := Tip(tt.input)
		assert.Equal(t, tt.ok, ok, tt.input)
		assert.Equal(t, tt.want, got, tt.input)
	}
}
