package main

import "testing"

// TestSplitPositional covers both argument orders the subcommands accept:
// folders before flags and the flags-first order stdlib flag expects.
func TestSplitPositional(t *testing.T) {
	pos, rest := splitPositional([]string{"groupA", "groupB", "-alpha", "0.01"}, 2)
	if len(pos) != 2 || pos[0] != "groupA" || pos[1] != "groupB" {
		t.Errorf("Expected both folders peeled off, got %v", pos)
	}
	if len(rest) != 2 || rest[0] != "-alpha" {
		t.Errorf("Expected the flags left for parsing, got %v", rest)
	}

	pos, rest = splitPositional([]string{"-alpha", "0.01", "groupA", "groupB"}, 2)
	if len(pos) != 0 {
		t.Errorf("Expected no leading positionals, got %v", pos)
	}
	if len(rest) != 4 {
		t.Errorf("Expected the arguments untouched, got %v", rest)
	}

	pos, rest = splitPositional([]string{"a", "b", "c"}, 2)
	if len(pos) != 2 || len(rest) != 1 || rest[0] != "c" {
		t.Errorf("Expected the peel to stop after 2 arguments, got %v and %v", pos, rest)
	}
}
