package service

import (
	"regexp"
	"strings"
)

var fencedLangRe = regexp.MustCompile("(?m)^```\\s*([A-Za-z0-9_+#-]+)")

var languageHints = []struct {
	language string
	markers  []string
}{
	{"go", []string{"package main", "func main()", ":= ", "fmt.Println"}},
	{"python", []string{"def ", "import ", "print(", "elif ", "self."}},
	{"javascript", []string{"const ", "function ", "console.log", "=> ", "let "}},
	{"java", []string{"public class", "public static void main", "System.out.println"}},
	{"rust", []string{"fn main()", "let mut ", "println!"}},
	{"sql", []string{"select ", " from ", "insert into", "create table"}},
	{"bash", []string{"#!/bin/bash", "#!/bin/sh", "echo $"}},
}

// DetectLanguage guesses the programming language of generated code.
// A fenced block tag wins; otherwise the language with the most marker hits.
// Ties and no hits yield "plaintext".
func DetectLanguage(content string) string {
	if m := fencedLangRe.FindStringSubmatch(content); m != nil {
		return strings.ToLower(m[1])
	}

	lower := strings.ToLower(content)
	best, bestHits, tie := "plaintext", 0, false
	for _, hint := range languageHints {
		hits := 0
		for _, marker := range hint.markers {
			if strings.Contains(lower, strings.ToLower(marker)) {
				hits++
			}
		}
		switch {
		case hits > bestHits:
			best, bestHits, tie = hint.language, hits, false
		case hits == bestHits && hits > 0:
			tie = true
		}
	}
	if tie {
		return "plaintext"
	}
	return best
}
