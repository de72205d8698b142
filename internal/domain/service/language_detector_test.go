package service

import "testing"

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"fence wins", "Here you go:\n```python\nprint('hi')\n```", "python"},
		{"go markers", "package main\n\nfunc main() {\n\tx := 1\n\tfmt.Println(x)\n}", "go"},
		{"java markers", "public class A { public static void main(String[] a) { System.out.println(1); } }", "java"},
		{"nothing", "just prose here", "plaintext"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectLanguage(tt.content); got != tt.want {
				t.Errorf("DetectLanguage() = %q, want %q", got, tt.want)
			}
		})
	}
}
