package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectMethod(t *testing.T) {
	cases := []struct {
		name string
		text string
		want InstallMethod
	}{
		{"docker 关键词", "I want to install with Docker", MethodDocker},
		{"compose 关键词", "docker compose up fails for me", MethodDocker},
		{"源码关键词", "I cloned the repo and want to compile from source", MethodSource},
		{"conda 关键词", "conda activate hummingbot does nothing", MethodSource},
		{"无信号", "hello, I need help installing", MethodUnknown},
		{"两种方式同时出现视为含糊", "should I use docker or install from source?", MethodUnknown},
		{"词元匹配不吃子串", "my dockerized workflow", MethodUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DetectMethod(tc.text))
		})
	}
}

func TestDetectOS(t *testing.T) {
	cases := []struct {
		name string
		text string
		want UserOS
	}{
		{"windows", "I'm on Windows 11", OSWindows},
		{"WSL 即 windows", "running inside WSL", OSWindows},
		{"macos", "I use a MacBook", OSMacOS},
		{"homebrew 即 macos", "installed python via brew", OSMacOS},
		{"linux", "Ubuntu 22.04 server", OSLinux},
		{"无信号", "my laptop is brand new", OSUnknown},
		{"多系统同时出现视为含糊", "it works on linux but not on windows", OSUnknown},
		{"machine 不误中 mac", "my machine is fast", OSUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DetectOS(tc.text))
		})
	}
}

func TestParseAnalysis(t *testing.T) {
	t.Run("纯 JSON", func(t *testing.T) {
		got, err := parseAnalysis(`{"summary":"user on linux","resolution":"progressing","installation_method":"docker","operating_system":"linux"}`)
		require.NoError(t, err)
		assert.Equal(t, "user on linux", got.Summary)
		assert.Equal(t, ResolutionProgressing, got.Resolution)
		assert.Equal(t, MethodDocker, got.Method)
		assert.Equal(t, OSLinux, got.OS)
	})

	t.Run("markdown 代码块包裹", func(t *testing.T) {
		got, err := parseAnalysis("```json\n{\"summary\":\"s\",\"resolution\":\"solved\",\"installation_method\":\"source\",\"operating_system\":\"macos\"}\n```")
		require.NoError(t, err)
		assert.Equal(t, ResolutionSolved, got.Resolution)
		assert.Equal(t, MethodSource, got.Method)
		assert.Equal(t, OSMacOS, got.OS)
	})

	t.Run("未知枚举值归一化", func(t *testing.T) {
		got, err := parseAnalysis(`{"summary":"s","resolution":"maybe","installation_method":"pip","operating_system":"freebsd"}`)
		require.NoError(t, err)
		assert.Equal(t, ResolutionProgressing, got.Resolution)
		assert.Equal(t, MethodUnknown, got.Method)
		assert.Equal(t, OSUnknown, got.OS)
	})

	t.Run("没有 JSON 报错", func(t *testing.T) {
		_, err := parseAnalysis("I could not produce the analysis.")
		assert.Error(t, err)
	})
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", truncateRunes("abc", 10))
	assert.Equal(t, "ab", truncateRunes("abcd", 2))
	assert.Equal(t, "你好", truncateRunes("你好世界", 2))
}
